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

const conversationColumns = `id, listing_id, buyer_id, seller_id, encryption_key, created_at, last_message_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*models.Conversation, error) {
	var c models.Conversation
	if err := row.Scan(&c.ID, &c.ListingID, &c.BuyerID, &c.SellerID,
		&c.EncryptionKey, &c.CreatedAt, &c.LastMessageAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) FindConversation(ctx context.Context, listingID, buyerID, sellerID string) (*models.Conversation, error) {
	c, err := scanConversation(s.db.QueryRowContext(ctx, `
		SELECT `+conversationColumns+` FROM conversations
		WHERE listing_id = $1 AND buyer_id = $2 AND seller_id = $3`,
		listingID, buyerID, sellerID))
	if err != nil {
		return nil, notFound(err, "find conversation")
	}
	return c, nil
}

func (s *Store) GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error) {
	c, err := scanConversation(s.db.QueryRowContext(ctx, `
		SELECT `+conversationColumns+` FROM conversations
		WHERE id = $1`, conversationID))
	if err != nil {
		return nil, notFound(err, "get conversation")
	}
	return c, nil
}

// CreateConversation relies on the unique (listing_id, buyer_id, seller_id)
// index: a concurrent insert for the same triple returns no row.
func (s *Store) CreateConversation(ctx context.Context, conv models.Conversation) error {
	var id string
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO conversations (id, listing_id, buyer_id, seller_id, encryption_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (listing_id, buyer_id, seller_id) DO NOTHING
		RETURNING id`,
		conv.ID, conv.ListingID, conv.BuyerID, conv.SellerID, conv.EncryptionKey, conv.CreatedAt).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) || isUniqueViolation(err) {
		return storage.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

func (s *Store) ListConversationsForUser(ctx context.Context, userID string, limit int) ([]models.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+conversationColumns+` FROM conversations
		WHERE buyer_id = $1 OR seller_id = $1
		ORDER BY COALESCE(last_message_at, created_at) DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var convs []models.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		convs = append(convs, *c)
	}
	return convs, rows.Err()
}
