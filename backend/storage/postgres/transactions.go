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

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/routeme/routeme/backend/models"
	"github.com/routeme/routeme/backend/storage"
)

const transactionColumns = `id, user_id, amount, currency, payment_method, status,
	checkout_request_id, merchant_request_id, reference, failure_reason,
	phone_number, email, description, created_at, updated_at`

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(&t.ID, &t.UserID, &t.Amount, &t.Currency, &t.Method, &t.Status,
		&t.CheckoutRequestID, &t.MerchantRequestID, &t.Reference, &t.FailureReason,
		&t.PhoneNumber, &t.Email, &t.Description, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) CreateTransaction(ctx context.Context, t models.Transaction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (id, user_id, amount, currency, payment_method, status,
			phone_number, email, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		t.ID, t.UserID, t.Amount, t.Currency, t.Method, t.Status,
		t.PhoneNumber, t.Email, t.Description, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (s *Store) GetTransaction(ctx context.Context, transactionID string) (*models.Transaction, error) {
	t, err := scanTransaction(s.db.QueryRowContext(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE id = $1`, transactionID))
	if err != nil {
		return nil, notFound(err, "get transaction")
	}
	return t, nil
}

func (s *Store) GetTransactionByCorrelation(ctx context.Context, correlationID string) (*models.Transaction, error) {
	t, err := scanTransaction(s.db.QueryRowContext(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE checkout_request_id = $1`, correlationID))
	if err != nil {
		return nil, notFound(err, "get transaction by correlation")
	}
	return t, nil
}

func (s *Store) SetCorrelation(ctx context.Context, transactionID, checkoutRequestID, merchantRequestID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET checkout_request_id = $2, merchant_request_id = $3, updated_at = NOW()
		WHERE id = $1`,
		transactionID, checkoutRequestID, nullString(merchantRequestID))
	if isUniqueViolation(err) {
		return storage.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("set correlation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) ResolvePending(ctx context.Context, transactionID string, status models.TransactionStatus, reason string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET status = $2, failure_reason = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`,
		transactionID, status, nullString(reason))
	if err != nil {
		return false, fmt.Errorf("resolve pending transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// ApplyTransition is the check-then-act of callback processing folded into
// one statement: only a row still in 'pending' is updated.
func (s *Store) ApplyTransition(ctx context.Context, tr models.Transition) (*models.Transaction, error) {
	t, err := scanTransaction(s.db.QueryRowContext(ctx, `
		UPDATE transactions
		SET status = $2,
			reference = COALESCE($3, reference),
			failure_reason = $4,
			updated_at = NOW()
		WHERE checkout_request_id = $1 AND status = 'pending'
		RETURNING `+transactionColumns,
		tr.CorrelationID, tr.Status, nullString(tr.Reference), nullString(tr.FailureReason)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("apply transition: %w", err)
	}
	return t, nil
}
