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

package storage

import (
	"context"
	"errors"
	"time"

	"github.com/routeme/routeme/backend/models"
)

var (
	ErrNotFound = errors.New("storage: not found")
	// ErrConflict reports a lost uniqueness race; the caller should re-read.
	ErrConflict = errors.New("storage: conflict")
)

type ListingStore interface {
	GetListing(ctx context.Context, listingID string) (*models.Listing, error)
}

type ConversationStore interface {
	FindConversation(ctx context.Context, listingID, buyerID, sellerID string) (*models.Conversation, error)
	GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error)
	// CreateConversation returns ErrConflict when a row for the same
	// (listing, buyer, seller) triple already exists.
	CreateConversation(ctx context.Context, conv models.Conversation) error
	ListConversationsForUser(ctx context.Context, userID string, limit int) ([]models.Conversation, error)
}

type MessageStore interface {
	// SaveMessage stores msg and bumps the conversation's last_message_at.
	SaveMessage(ctx context.Context, msg models.EncryptedMessage) error
	// GetMessages returns a conversation's messages oldest first.
	GetMessages(ctx context.Context, conversationID string) ([]models.EncryptedMessage, error)
	GetMessage(ctx context.Context, messageID string) (*models.EncryptedMessage, error)
	// MarkMessageRead sets read_at only if it is still unset.
	MarkMessageRead(ctx context.Context, messageID string, at time.Time) error
}

type TransactionStore interface {
	CreateTransaction(ctx context.Context, tx models.Transaction) error
	GetTransaction(ctx context.Context, transactionID string) (*models.Transaction, error)
	GetTransactionByCorrelation(ctx context.Context, correlationID string) (*models.Transaction, error)
	SetCorrelation(ctx context.Context, transactionID, checkoutRequestID, merchantRequestID string) error
	// ResolvePending moves a pending transaction, addressed by local id, to a
	// terminal status. It reports false when the row was no longer pending.
	ResolvePending(ctx context.Context, transactionID string, status models.TransactionStatus, reason string) (bool, error)
	// ApplyTransition moves a pending transaction, addressed by correlation id,
	// to t.Status in a single conditional write. It returns the updated row, or
	// nil when no pending row matched.
	ApplyTransition(ctx context.Context, t models.Transition) (*models.Transaction, error)
}

type NotificationStore interface {
	CreateNotification(ctx context.Context, n models.Notification) error
}

type Store interface {
	ListingStore
	ConversationStore
	MessageStore
	TransactionStore
	NotificationStore

	Ping(ctx context.Context) error
}
