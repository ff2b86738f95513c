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
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/routeme/routeme/backend/messagecrypto"
	"github.com/routeme/routeme/backend/metrics"
	"github.com/routeme/routeme/backend/models"
	"github.com/routeme/routeme/backend/storage"
)

const (
	MaxMessageLength = 1000

	// UndecryptablePlaceholder replaces the content of a message that fails
	// authentication or decoding.
	UndecryptablePlaceholder = "[This message could not be decrypted]"

	conversationListLimit = 50
)

type ConversationStore interface {
	storage.ListingStore
	storage.ConversationStore
	storage.MessageStore
}

type ConversationService struct {
	store    ConversationStore
	keys     *KeyStore
	notifier Notifier
	log      zerolog.Logger
	now      func() time.Time
}

func NewConversationService(store ConversationStore, notifier Notifier, log zerolog.Logger) *ConversationService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &ConversationService{
		store:    store,
		keys:     NewKeyStore(store, log),
		notifier: notifier,
		log:      log.With().Str("component", "conversations").Logger(),
		now:      time.Now,
	}
}

// SendMessage encrypts content under the conversation key for
// (listing, buyer, seller) and stores it. The listing owner is the seller.
func (s *ConversationService) SendMessage(ctx context.Context, senderID, listingID, recipientID, content string) (string, error) {
	content = strings.TrimSpace(content)
	switch {
	case senderID == "" || recipientID == "" || listingID == "":
		return "", newError(ErrorInvalidInput, ErrInvalidMessage, "listing and recipient are required", nil)
	case content == "":
		return "", newError(ErrorInvalidInput, ErrInvalidMessage, "message content is empty", nil)
	case utf8.RuneCountInString(content) > MaxMessageLength:
		return "", newError(ErrorInvalidInput, ErrInvalidMessage, "message content is too long", nil)
	case senderID == recipientID:
		return "", newError(ErrorInvalidInput, ErrInvalidMessage, "cannot message yourself", nil)
	}

	listing, err := s.store.GetListing(ctx, listingID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", newError(ErrorNotFound, ErrListingNotFound, "listing not found", nil)
		}
		return "", newError(ErrorUpstream, ErrConversationLookupFailed, "listing lookup failed", err)
	}

	var buyerID, sellerID string
	switch listing.UserID {
	case senderID:
		buyerID, sellerID = recipientID, senderID
	case recipientID:
		buyerID, sellerID = senderID, recipientID
	default:
		return "", newError(ErrorInvalidInput, ErrInvalidMessage, "neither party owns the listing", nil)
	}

	conv, key, err := s.keys.ResolveKey(ctx, listingID, buyerID, sellerID)
	if err != nil {
		return "", err
	}

	sealed, err := messagecrypto.Encrypt(content, key)
	if err != nil {
		return "", newError(ErrorInternal, ErrInvalidMessage, "encryption failed", err)
	}

	msg := models.EncryptedMessage{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		SenderID:       senderID,
		Ciphertext:     sealed.Ciphertext,
		IV:             sealed.IV,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.store.SaveMessage(ctx, msg); err != nil {
		return "", newError(ErrorUpstream, ErrConversationLookupFailed, "message save failed", err)
	}
	metrics.MessagesSentTotal.Inc()

	if err := s.notifier.MessageSent(ctx, recipientID, msg); err != nil {
		s.log.Warn().Err(err).
			Str("message_id", msg.ID).
			Str("recipient_id", recipientID).
			Msg("failed to publish new message event")
	}
	return msg.ID, nil
}

// GetMessages returns the conversation's messages oldest first. A message
// that fails to decrypt is returned with the placeholder content; the others
// are unaffected.
func (s *ConversationService) GetMessages(ctx context.Context, requesterID, conversationID string) ([]models.Message, error) {
	conv, err := s.authorize(ctx, requesterID, conversationID)
	if err != nil {
		return nil, err
	}

	stored, err := s.store.GetMessages(ctx, conversationID)
	if err != nil {
		return nil, newError(ErrorUpstream, ErrConversationLookupFailed, "message lookup failed", err)
	}

	key, keyErr := messagecrypto.ImportKey(conv.EncryptionKey)
	if keyErr != nil {
		s.log.Error().Err(keyErr).Str("conversation_id", conv.ID).Msg("stored conversation key is unreadable")
	}

	out := make([]models.Message, 0, len(stored))
	for _, m := range stored {
		content, err := UndecryptablePlaceholder, keyErr
		if err == nil {
			var plain string
			if plain, err = messagecrypto.Decrypt(m.Ciphertext, m.IV, key); err == nil {
				content = plain
			}
		}
		if err != nil {
			metrics.DecryptionFailuresTotal.Inc()
			s.log.Warn().
				Str("conversation_id", conv.ID).
				Str("message_id", m.ID).
				Msg("message could not be decrypted")
		}
		out = append(out, models.Message{
			ID:        m.ID,
			SenderID:  m.SenderID,
			Content:   content,
			CreatedAt: m.CreatedAt,
			ReadAt:    m.ReadAt,
		})
	}
	return out, nil
}

// ListConversations returns the user's conversations, most recent activity first.
func (s *ConversationService) ListConversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	convs, err := s.store.ListConversationsForUser(ctx, userID, conversationListLimit)
	if err != nil {
		return nil, newError(ErrorUpstream, ErrConversationLookupFailed, "conversation list failed", err)
	}
	if convs == nil {
		convs = []models.Conversation{}
	}
	return convs, nil
}

// MarkRead records that the recipient has read a message. Only the
// participant who did not send it may mark it.
func (s *ConversationService) MarkRead(ctx context.Context, requesterID, messageID string) error {
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return newError(ErrorNotFound, ErrMessageNotFound, "message not found", nil)
		}
		return newError(ErrorUpstream, ErrConversationLookupFailed, "message lookup failed", err)
	}
	if msg.SenderID == requesterID {
		return newError(ErrorNotFound, ErrMessageNotFound, "message not found", nil)
	}
	if _, err := s.authorize(ctx, requesterID, msg.ConversationID); err != nil {
		if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrConversationNotFound) {
			return newError(ErrorNotFound, ErrMessageNotFound, "message not found", nil)
		}
		return err
	}

	if err := s.store.MarkMessageRead(ctx, messageID, s.now().UTC()); err != nil {
		return newError(ErrorUpstream, ErrConversationLookupFailed, "mark read failed", err)
	}
	if err := s.notifier.MessageRead(ctx, requesterID, messageID); err != nil {
		s.log.Warn().Err(err).Str("message_id", messageID).Msg("failed to clear unread marker")
	}
	return nil
}

func (s *ConversationService) authorize(ctx context.Context, requesterID, conversationID string) (*models.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, newError(ErrorNotFound, ErrConversationNotFound, "conversation not found", nil)
		}
		return nil, newError(ErrorUpstream, ErrConversationLookupFailed, "conversation lookup failed", err)
	}
	if !conv.HasParticipant(requesterID) {
		s.log.Warn().
			Str("conversation_id", conversationID).
			Str("user_id", requesterID).
			Msg("non-participant requested conversation")
		return nil, newError(ErrorUnauthorized, ErrUnauthorized, "conversation not found", nil)
	}
	return conv, nil
}
