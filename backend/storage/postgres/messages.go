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
	"time"

	"github.com/routeme/routeme/backend/models"
)

func (s *Store) SaveMessage(ctx context.Context, msg models.EncryptedMessage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, ciphertext, iv, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, msg.ConversationID, msg.SenderID, msg.Ciphertext, msg.IV, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE conversations SET last_message_at = $2
		WHERE id = $1`,
		msg.ConversationID, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}

	return tx.Commit()
}

func (s *Store) GetMessages(ctx context.Context, conversationID string) ([]models.EncryptedMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, sender_id, ciphertext, iv, created_at, read_at, seq
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC, seq ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var msgs []models.EncryptedMessage
	for rows.Next() {
		var m models.EncryptedMessage
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Ciphertext,
			&m.IV, &m.CreatedAt, &m.ReadAt, &m.Seq); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (s *Store) GetMessage(ctx context.Context, messageID string) (*models.EncryptedMessage, error) {
	var m models.EncryptedMessage
	err := s.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, sender_id, ciphertext, iv, created_at, read_at, seq
		FROM messages WHERE id = $1`, messageID).Scan(&m.ID, &m.ConversationID, &m.SenderID,
		&m.Ciphertext, &m.IV, &m.CreatedAt, &m.ReadAt, &m.Seq)
	if err != nil {
		return nil, notFound(err, "get message")
	}
	return &m, nil
}

func (s *Store) MarkMessageRead(ctx context.Context, messageID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE messages SET read_at = $2
		WHERE id = $1 AND read_at IS NULL`,
		messageID, at)
	if err != nil {
		return fmt.Errorf("mark message read: %w", err)
	}
	return nil
}
