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
	"fmt"
)

var migrations = []string{
	// Listings are owned by the marketplace; this is the minimal shape we read.
	`CREATE TABLE IF NOT EXISTS listings (
		id VARCHAR(255) PRIMARY KEY,
		user_id VARCHAR(255) NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		price NUMERIC(12, 2) NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	// One row per (listing, buyer, seller); the key is written once.
	`CREATE TABLE IF NOT EXISTS conversations (
		id VARCHAR(255) PRIMARY KEY,
		listing_id VARCHAR(255) NOT NULL,
		buyer_id VARCHAR(255) NOT NULL,
		seller_id VARCHAR(255) NOT NULL,
		encryption_key TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		last_message_at TIMESTAMPTZ,
		CONSTRAINT unique_conversation UNIQUE (listing_id, buyer_id, seller_id)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_conversations_buyer
	ON conversations(buyer_id)`,

	`CREATE INDEX IF NOT EXISTS idx_conversations_seller
	ON conversations(seller_id)`,

	`CREATE TABLE IF NOT EXISTS messages (
		id VARCHAR(255) PRIMARY KEY,
		conversation_id VARCHAR(255) NOT NULL,
		sender_id VARCHAR(255) NOT NULL,
		ciphertext TEXT NOT NULL,
		iv TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		read_at TIMESTAMPTZ,
		seq BIGSERIAL NOT NULL,
		FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
	)`,

	`CREATE INDEX IF NOT EXISTS idx_messages_conversation
	ON messages(conversation_id, created_at, seq)`,

	`CREATE TABLE IF NOT EXISTS transactions (
		id VARCHAR(255) PRIMARY KEY,
		user_id VARCHAR(255) NOT NULL,
		amount NUMERIC(12, 2) NOT NULL CHECK (amount > 0),
		currency VARCHAR(3) NOT NULL,
		payment_method VARCHAR(20) NOT NULL CHECK (payment_method IN ('mpesa', 'paypal')),
		status VARCHAR(20) NOT NULL DEFAULT 'pending'
			CHECK (status IN ('pending', 'completed', 'failed', 'cancelled')),
		checkout_request_id VARCHAR(255),
		merchant_request_id VARCHAR(255),
		reference VARCHAR(255),
		failure_reason TEXT,
		phone_number VARCHAR(20),
		email VARCHAR(255),
		description TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_checkout
	ON transactions(checkout_request_id)
	WHERE checkout_request_id IS NOT NULL`,

	`CREATE INDEX IF NOT EXISTS idx_transactions_user
	ON transactions(user_id, created_at DESC)`,

	`CREATE TABLE IF NOT EXISTS notifications (
		id VARCHAR(255) PRIMARY KEY,
		user_id VARCHAR(255) NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		type VARCHAR(50) NOT NULL,
		read BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE INDEX IF NOT EXISTS idx_notifications_user
	ON notifications(user_id, created_at DESC)`,
}

func (s *Store) Migrate(ctx context.Context) error {
	for i, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
