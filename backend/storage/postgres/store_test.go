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
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/routeme/routeme/backend/models"
	"github.com/routeme/routeme/backend/storage"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return NewStore(db), mock
}

var transactionCols = []string{"id", "user_id", "amount", "currency", "payment_method", "status",
	"checkout_request_id", "merchant_request_id", "reference", "failure_reason",
	"phone_number", "email", "description", "created_at", "updated_at"}

func TestGetListing(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT id, user_id, title, price FROM listings`).
		WithArgs("listing-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "title", "price"}).
			AddRow("listing-1", "seller-a", "Toyota Vitz", "650000.00"))

	l, err := s.GetListing(context.Background(), "listing-1")
	require.NoError(t, err)
	require.Equal(t, "seller-a", l.UserID)
	require.True(t, decimal.NewFromInt(650000).Equal(l.Price))
}

func TestGetListing_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`FROM listings`).WithArgs("missing").WillReturnError(sql.ErrNoRows)

	_, err := s.GetListing(context.Background(), "missing")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCreateConversation(t *testing.T) {
	now := time.Now()
	conv := models.Conversation{ID: "c1", ListingID: "l1", BuyerID: "b", SellerID: "s", EncryptionKey: "k", CreatedAt: now}

	t.Run("inserted", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery(`INSERT INTO conversations`).
			WithArgs("c1", "l1", "b", "s", "k", now).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("c1"))
		require.NoError(t, s.CreateConversation(context.Background(), conv))
	})

	t.Run("lost race", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery(`INSERT INTO conversations`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		require.ErrorIs(t, s.CreateConversation(context.Background(), conv), storage.ErrConflict)
	})

	t.Run("unique violation", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery(`INSERT INTO conversations`).
			WillReturnError(&pq.Error{Code: uniqueViolation})
		require.ErrorIs(t, s.CreateConversation(context.Background(), conv), storage.ErrConflict)
	})

	t.Run("other error", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery(`INSERT INTO conversations`).
			WillReturnError(errors.New("connection reset"))
		err := s.CreateConversation(context.Background(), conv)
		require.Error(t, err)
		require.False(t, errors.Is(err, storage.ErrConflict))
	})
}

func TestFindConversation(t *testing.T) {
	s, mock := newMockStore(t)
	created := time.Now().Add(-time.Hour)
	mock.ExpectQuery(`FROM conversations\s+WHERE listing_id = \$1 AND buyer_id = \$2 AND seller_id = \$3`).
		WithArgs("l1", "b", "s").
		WillReturnRows(sqlmock.NewRows([]string{"id", "listing_id", "buyer_id", "seller_id", "encryption_key", "created_at", "last_message_at"}).
			AddRow("c1", "l1", "b", "s", "a2V5", created, nil))

	c, err := s.FindConversation(context.Background(), "l1", "b", "s")
	require.NoError(t, err)
	require.Equal(t, "c1", c.ID)
	require.Equal(t, "a2V5", c.EncryptionKey)
	require.Nil(t, c.LastMessageAt)
}

func TestSaveMessage(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()
	msg := models.EncryptedMessage{ID: "m1", ConversationID: "c1", SenderID: "b", Ciphertext: "ct", IV: "iv", CreatedAt: now}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO messages`).
		WithArgs("m1", "c1", "b", "ct", "iv", now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`UPDATE conversations SET last_message_at`).
		WithArgs("c1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.SaveMessage(context.Background(), msg))
}

func TestSaveMessage_RollsBackOnError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO messages`).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	require.Error(t, s.SaveMessage(context.Background(), models.EncryptedMessage{ID: "m1"}))
}

func TestGetMessages_Ordered(t *testing.T) {
	s, mock := newMockStore(t)
	t0 := time.Now()
	mock.ExpectQuery(`ORDER BY created_at ASC, seq ASC`).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "conversation_id", "sender_id", "ciphertext", "iv", "created_at", "read_at", "seq"}).
			AddRow("m1", "c1", "b", "ct1", "iv1", t0, nil, 1).
			AddRow("m2", "c1", "s", "ct2", "iv2", t0.Add(time.Second), t0.Add(time.Minute), 2))

	msgs, err := s.GetMessages(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "m1", msgs[0].ID)
	require.Nil(t, msgs[0].ReadAt)
	require.NotNil(t, msgs[1].ReadAt)
	require.Equal(t, int64(2), msgs[1].Seq)
}

func TestMarkMessageRead_OnlyWhenUnset(t *testing.T) {
	s, mock := newMockStore(t)
	at := time.Now()
	mock.ExpectExec(`UPDATE messages SET read_at = \$2\s+WHERE id = \$1 AND read_at IS NULL`).
		WithArgs("m1", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.MarkMessageRead(context.Background(), "m1", at))
}

func TestCreateTransaction(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()
	phone := "254712345678"
	tx := models.Transaction{
		ID: "t1", UserID: "u1", Amount: decimal.NewFromInt(500), Currency: "KES",
		Method: models.MethodMPesa, Status: models.StatusPending, PhoneNumber: &phone,
		CreatedAt: now, UpdatedAt: now,
	}
	mock.ExpectExec(`INSERT INTO transactions`).
		WithArgs("t1", "u1", decimal.NewFromInt(500), "KES", "mpesa", "pending",
			phone, nil, "", now, now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, s.CreateTransaction(context.Background(), tx))
}

func TestSetCorrelation(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec(`UPDATE transactions\s+SET checkout_request_id`).
			WithArgs("t1", "ws_CO_1", "29115-34620561-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		require.NoError(t, s.SetCorrelation(context.Background(), "t1", "ws_CO_1", "29115-34620561-1"))
	})

	t.Run("missing row", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec(`UPDATE transactions`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		require.ErrorIs(t, s.SetCorrelation(context.Background(), "t1", "ws_CO_1", ""), storage.ErrNotFound)
	})

	t.Run("duplicate correlation", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec(`UPDATE transactions`).
			WillReturnError(&pq.Error{Code: uniqueViolation})
		require.ErrorIs(t, s.SetCorrelation(context.Background(), "t1", "ws_CO_1", ""), storage.ErrConflict)
	})
}

func TestResolvePending(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`WHERE id = \$1 AND status = 'pending'`).
		WithArgs("t1", "cancelled", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`WHERE id = \$1 AND status = 'pending'`).
		WithArgs("t1", "cancelled", nil).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := s.ResolvePending(context.Background(), "t1", models.StatusCancelled, "")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.ResolvePending(context.Background(), "t1", models.StatusCancelled, "")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestApplyTransition(t *testing.T) {
	now := time.Now()
	tr := models.Transition{CorrelationID: "ws_CO_1", Status: models.StatusCompleted, Reference: "NLJ7RT61SV"}

	t.Run("pending row updated", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery(`WHERE checkout_request_id = \$1 AND status = 'pending'\s+RETURNING`).
			WithArgs("ws_CO_1", "completed", "NLJ7RT61SV", nil).
			WillReturnRows(sqlmock.NewRows(transactionCols).
				AddRow("t1", "u1", "500.00", "KES", "mpesa", "completed",
					"ws_CO_1", "m1", "NLJ7RT61SV", nil, "254712345678", nil, "", now, now))

		got, err := s.ApplyTransition(context.Background(), tr)
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Equal(t, models.StatusCompleted, got.Status)
		require.Equal(t, "NLJ7RT61SV", *got.Reference)
		require.Nil(t, got.Email)
		require.True(t, decimal.NewFromInt(500).Equal(got.Amount))
	})

	t.Run("already terminal", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery(`UPDATE transactions`).
			WillReturnRows(sqlmock.NewRows(transactionCols))

		got, err := s.ApplyTransition(context.Background(), tr)
		require.NoError(t, err)
		require.Nil(t, got)
	})
}

func TestCreateNotification(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()
	mock.ExpectExec(`INSERT INTO notifications`).
		WithArgs("n1", "u1", "Payment received", "KES 500", "payment", false, now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, s.CreateNotification(context.Background(), models.Notification{
		ID: "n1", UserID: "u1", Title: "Payment received", Message: "KES 500", Type: "payment", CreatedAt: now,
	}))
}

func TestMigrate(t *testing.T) {
	s, mock := newMockStore(t)
	for range migrations {
		mock.ExpectExec(`CREATE`).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	require.NoError(t, s.Migrate(context.Background()))
}

func TestMigrate_StopsOnError(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS listings`).WillReturnError(errors.New("permission denied"))

	err := s.Migrate(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "migration 0")
}
