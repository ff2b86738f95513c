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

// Package memory is a thread-safe storage.Store for tests. It enforces the
// same uniqueness and conditional-update rules as the Postgres schema.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/routeme/routeme/backend/models"
	"github.com/routeme/routeme/backend/storage"
)

type Store struct {
	mu            sync.RWMutex
	listings      map[string]models.Listing
	conversations map[string]models.Conversation
	messages      map[string]models.EncryptedMessage
	transactions  map[string]models.Transaction
	notifications []models.Notification
	seq           int64

	// Hooks let tests interleave a competing writer or inject failures.
	BeforeCreateConversation func(conv models.Conversation)
	BeforeApplyTransition    func(t models.Transition)
	FailNotifications        error
}

var _ storage.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		listings:      make(map[string]models.Listing),
		conversations: make(map[string]models.Conversation),
		messages:      make(map[string]models.EncryptedMessage),
		transactions:  make(map[string]models.Transaction),
	}
}

func (s *Store) Ping(ctx context.Context) error { return nil }

// PutListing seeds a listing.
func (s *Store) PutListing(l models.Listing) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listings[l.ID] = l
}

func (s *Store) GetListing(ctx context.Context, listingID string) (*models.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.listings[listingID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &l, nil
}

func (s *Store) FindConversation(ctx context.Context, listingID, buyerID, sellerID string) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.conversations {
		if c.ListingID == listingID && c.BuyerID == buyerID && c.SellerID == sellerID {
			c := c
			return &c, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *Store) GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[conversationID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &c, nil
}

func (s *Store) CreateConversation(ctx context.Context, conv models.Conversation) error {
	if s.BeforeCreateConversation != nil {
		s.BeforeCreateConversation(conv)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conversations {
		if c.ListingID == conv.ListingID && c.BuyerID == conv.BuyerID && c.SellerID == conv.SellerID {
			return storage.ErrConflict
		}
	}
	s.conversations[conv.ID] = conv
	return nil
}

func (s *Store) ListConversationsForUser(ctx context.Context, userID string, limit int) ([]models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Conversation
	for _, c := range s.conversations {
		if c.BuyerID == userID || c.SellerID == userID {
			out = append(out, c)
		}
	}
	activity := func(c models.Conversation) time.Time {
		if c.LastMessageAt != nil {
			return *c.LastMessageAt
		}
		return c.CreatedAt
	}
	sort.Slice(out, func(i, j int) bool { return activity(out[i]).After(activity(out[j])) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) SaveMessage(ctx context.Context, msg models.EncryptedMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[msg.ConversationID]
	if !ok {
		return storage.ErrNotFound
	}
	s.seq++
	msg.Seq = s.seq
	s.messages[msg.ID] = msg
	at := msg.CreatedAt
	c.LastMessageAt = &at
	s.conversations[c.ID] = c
	return nil
}

func (s *Store) GetMessages(ctx context.Context, conversationID string) ([]models.EncryptedMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.EncryptedMessage
	for _, m := range s.messages {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Seq < out[j].Seq
	})
	return out, nil
}

func (s *Store) GetMessage(ctx context.Context, messageID string) (*models.EncryptedMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[messageID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &m, nil
}

func (s *Store) MarkMessageRead(ctx context.Context, messageID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[messageID]
	if !ok || m.ReadAt != nil {
		return nil
	}
	m.ReadAt = &at
	s.messages[messageID] = m
	return nil
}

// CorruptMessage overwrites a stored message's ciphertext and IV.
func (s *Store) CorruptMessage(messageID string, mutate func(m *models.EncryptedMessage)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.messages[messageID]
	mutate(&m)
	s.messages[messageID] = m
}

func (s *Store) CreateTransaction(ctx context.Context, t models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions[t.ID] = t
	return nil
}

func (s *Store) GetTransaction(ctx context.Context, transactionID string) (*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.transactions[transactionID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &t, nil
}

func (s *Store) GetTransactionByCorrelation(ctx context.Context, correlationID string) (*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.transactions {
		if t.CheckoutRequestID != nil && *t.CheckoutRequestID == correlationID {
			t := t
			return &t, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *Store) SetCorrelation(ctx context.Context, transactionID, checkoutRequestID, merchantRequestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, other := range s.transactions {
		if id != transactionID && other.CheckoutRequestID != nil && *other.CheckoutRequestID == checkoutRequestID {
			return storage.ErrConflict
		}
	}
	t, ok := s.transactions[transactionID]
	if !ok {
		return storage.ErrNotFound
	}
	t.CheckoutRequestID = &checkoutRequestID
	if merchantRequestID != "" {
		t.MerchantRequestID = &merchantRequestID
	}
	t.UpdatedAt = time.Now()
	s.transactions[transactionID] = t
	return nil
}

func (s *Store) ResolvePending(ctx context.Context, transactionID string, status models.TransactionStatus, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transactions[transactionID]
	if !ok || t.Status != models.StatusPending {
		return false, nil
	}
	t.Status = status
	if reason != "" {
		t.FailureReason = &reason
	}
	t.UpdatedAt = time.Now()
	s.transactions[transactionID] = t
	return true, nil
}

func (s *Store) ApplyTransition(ctx context.Context, tr models.Transition) (*models.Transaction, error) {
	if s.BeforeApplyTransition != nil {
		s.BeforeApplyTransition(tr)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.transactions {
		if t.CheckoutRequestID == nil || *t.CheckoutRequestID != tr.CorrelationID {
			continue
		}
		if t.Status != models.StatusPending {
			return nil, nil
		}
		t.Status = tr.Status
		if tr.Reference != "" {
			ref := tr.Reference
			t.Reference = &ref
		}
		if tr.FailureReason != "" {
			reason := tr.FailureReason
			t.FailureReason = &reason
		}
		t.UpdatedAt = time.Now()
		s.transactions[id] = t
		return &t, nil
	}
	return nil, nil
}

func (s *Store) CreateNotification(ctx context.Context, n models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailNotifications != nil {
		return s.FailNotifications
	}
	s.notifications = append(s.notifications, n)
	return nil
}

// Notifications returns a copy of all stored notifications.
func (s *Store) Notifications() []models.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Notification(nil), s.notifications...)
}

// Transactions returns a copy of all stored transactions keyed by id.
func (s *Store) Transactions() map[string]models.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]models.Transaction, len(s.transactions))
	for k, v := range s.transactions {
		out[k] = v
	}
	return out
}
