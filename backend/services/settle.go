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

package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/routeme/routeme/backend/models"
	"github.com/routeme/routeme/backend/storage"
)

type PaymentStore interface {
	storage.TransactionStore
	storage.NotificationStore
}

// Settler applies provider outcomes to pending transactions. Both the
// callback path and the PayPal capture path go through it so a transaction
// settles exactly once and notifies its owner at most once.
type Settler struct {
	store    PaymentStore
	notifier Notifier
	log      zerolog.Logger
	now      func() time.Time
}

func NewSettler(store PaymentStore, notifier Notifier, log zerolog.Logger) *Settler {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Settler{
		store:    store,
		notifier: notifier,
		log:      log.With().Str("component", "settlement").Logger(),
		now:      time.Now,
	}
}

// Apply performs the conditional pending -> tr.Status write. It returns the
// updated transaction, or nil when the row was not pending (another delivery
// already settled it).
func (s *Settler) Apply(ctx context.Context, tr models.Transition) (*models.Transaction, error) {
	tx, err := s.store.ApplyTransition(ctx, tr)
	if err != nil {
		return nil, fmt.Errorf("apply transition for %s: %w", tr.CorrelationID, err)
	}
	if tx == nil {
		s.log.Info().Str("correlation_id", tr.CorrelationID).Msg("transaction already settled")
		return nil, nil
	}

	s.log.Info().
		Str("transaction_id", tx.ID).
		Str("status", string(tx.Status)).
		Msg("transaction settled")

	if tx.Status == models.StatusCompleted {
		s.notifyCompleted(ctx, tx)
	}
	return tx, nil
}

func (s *Settler) notifyCompleted(ctx context.Context, tx *models.Transaction) {
	note := models.Notification{
		ID:        uuid.New().String(),
		UserID:    tx.UserID,
		Title:     "Payment received",
		Message:   paymentReceivedMessage(tx),
		Type:      models.NotificationPayment,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.CreateNotification(ctx, note); err != nil {
		s.log.Error().Err(err).Str("transaction_id", tx.ID).Msg("failed to store payment notification")
		return
	}
	if err := s.notifier.Notify(ctx, note); err != nil {
		s.log.Warn().Err(err).Str("transaction_id", tx.ID).Msg("failed to publish payment notification")
	}
}

func paymentReceivedMessage(tx *models.Transaction) string {
	msg := fmt.Sprintf("Your payment of %s %s was received.", tx.Currency, tx.Amount.StringFixed(2))
	if tx.Reference != nil && *tx.Reference != "" {
		msg += " Reference: " + *tx.Reference
	}
	return msg
}
