// Copyright (C) 2025 The RouteMe Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package models

import "time"

// Conversation binds one listing, one buyer and one seller to a single
// symmetric key. EncryptionKey is the exported (base64) key and must never
// be serialized to clients.
type Conversation struct {
	ID            string     `json:"id" db:"id"`
	ListingID     string     `json:"listingId" db:"listing_id"`
	BuyerID       string     `json:"buyerId" db:"buyer_id"`
	SellerID      string     `json:"sellerId" db:"seller_id"`
	EncryptionKey string     `json:"-" db:"encryption_key"`
	CreatedAt     time.Time  `json:"createdAt" db:"created_at"`
	LastMessageAt *time.Time `json:"lastMessageAt,omitempty" db:"last_message_at"`
}

// HasParticipant reports whether userID is the buyer or the seller.
func (c *Conversation) HasParticipant(userID string) bool {
	return userID != "" && (userID == c.BuyerID || userID == c.SellerID)
}

// EncryptedMessage is a stored message body. Rows are immutable apart from ReadAt.
type EncryptedMessage struct {
	ID             string     `json:"id" db:"id"`
	ConversationID string     `json:"conversationId" db:"conversation_id"`
	SenderID       string     `json:"senderId" db:"sender_id"`
	Ciphertext     string     `json:"ciphertext" db:"ciphertext"`
	IV             string     `json:"iv" db:"iv"`
	CreatedAt      time.Time  `json:"createdAt" db:"created_at"`
	ReadAt         *time.Time `json:"readAt,omitempty" db:"read_at"`
	Seq            int64      `json:"-" db:"seq"`
}

// Message is a decrypted message as returned to a participant.
type Message struct {
	ID        string     `json:"id"`
	SenderID  string     `json:"senderId"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"createdAt"`
	ReadAt    *time.Time `json:"readAt"`
}
