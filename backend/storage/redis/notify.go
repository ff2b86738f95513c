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

package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/routeme/routeme/backend/models"
)

const (
	UnreadTTL = 30 * 24 * time.Hour

	// Redis key prefixes
	notifyChannelPrefix = "notify:"     // notify:{userId} - realtime events
	unreadPrefix        = "msg:unread:" // msg:unread:{userId} - set of unread message IDs
)

// Event is the payload published on a user's notify channel.
type Event struct {
	Type           string `json:"type"`
	MessageID      string `json:"messageId,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
	SenderID       string `json:"senderId,omitempty"`
	Title          string `json:"title,omitempty"`
	Message        string `json:"message,omitempty"`
}

// Notifier fans out realtime events over Redis pub/sub and tracks unread
// message ids per user.
type Notifier struct {
	rdb *redis.Client
}

func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// MessageSent marks the message unread for the recipient and publishes a
// new_message event.
func (n *Notifier) MessageSent(ctx context.Context, recipientID string, msg models.EncryptedMessage) error {
	unreadKey := unreadPrefix + recipientID
	if err := n.rdb.SAdd(ctx, unreadKey, msg.ID).Err(); err != nil {
		return fmt.Errorf("failed to mark as unread: %w", err)
	}
	if err := n.rdb.Expire(ctx, unreadKey, UnreadTTL).Err(); err != nil {
		return fmt.Errorf("failed to set unread expiry: %w", err)
	}

	return n.publish(ctx, recipientID, Event{
		Type:           "new_message",
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
	})
}

// MessageRead clears a message from the reader's unread set.
func (n *Notifier) MessageRead(ctx context.Context, userID, messageID string) error {
	if err := n.rdb.SRem(ctx, unreadPrefix+userID, messageID).Err(); err != nil {
		return fmt.Errorf("failed to mark as read: %w", err)
	}
	return nil
}

// Notify publishes a stored notification to its owner.
func (n *Notifier) Notify(ctx context.Context, note models.Notification) error {
	return n.publish(ctx, note.UserID, Event{
		Type:    note.Type,
		Title:   note.Title,
		Message: note.Message,
	})
}

// UnreadCount returns the number of unread messages for a user
func (n *Notifier) UnreadCount(ctx context.Context, userID string) (int64, error) {
	return n.rdb.SCard(ctx, unreadPrefix+userID).Result()
}

func (n *Notifier) Ping(ctx context.Context) error {
	return n.rdb.Ping(ctx).Err()
}

func (n *Notifier) publish(ctx context.Context, userID string, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := n.rdb.Publish(ctx, notifyChannelPrefix+userID, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}
