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
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/routeme/routeme/backend/messagecrypto"
	"github.com/routeme/routeme/backend/metrics"
	"github.com/routeme/routeme/backend/models"
	"github.com/routeme/routeme/backend/storage"
)

type KeyBackend interface {
	storage.ListingStore
	storage.ConversationStore
}

// KeyStore resolves the symmetric key of the conversation identified by
// (listing, buyer, seller), creating the conversation on first use. Exactly
// one key ever exists per triple.
type KeyStore struct {
	store KeyBackend
	log   zerolog.Logger
	now   func() time.Time
}

func NewKeyStore(store KeyBackend, log zerolog.Logger) *KeyStore {
	return &KeyStore{
		store: store,
		log:   log.With().Str("component", "keystore").Logger(),
		now:   time.Now,
	}
}

func (k *KeyStore) ResolveKey(ctx context.Context, listingID, buyerID, sellerID string) (*models.Conversation, messagecrypto.Key, error) {
	conv, err := k.store.FindConversation(ctx, listingID, buyerID, sellerID)
	switch {
	case err == nil:
		return k.importKey(conv)
	case !errors.Is(err, storage.ErrNotFound):
		return nil, messagecrypto.Key{}, newError(ErrorUpstream, ErrConversationLookupFailed, "conversation lookup failed", err)
	}

	if _, err := k.store.GetListing(ctx, listingID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, messagecrypto.Key{}, newError(ErrorNotFound, ErrListingNotFound, "listing not found", nil)
		}
		return nil, messagecrypto.Key{}, newError(ErrorUpstream, ErrConversationLookupFailed, "listing lookup failed", err)
	}

	key, err := messagecrypto.GenerateKey()
	if err != nil {
		return nil, messagecrypto.Key{}, newError(ErrorInternal, ErrConversationLookupFailed, "key generation failed", err)
	}
	created := models.Conversation{
		ID:            uuid.New().String(),
		ListingID:     listingID,
		BuyerID:       buyerID,
		SellerID:      sellerID,
		EncryptionKey: messagecrypto.ExportKey(key),
		CreatedAt:     k.now().UTC(),
	}

	err = k.store.CreateConversation(ctx, created)
	switch {
	case err == nil:
		metrics.ConversationsCreatedTotal.Inc()
		k.log.Info().
			Str("conversation_id", created.ID).
			Str("listing_id", listingID).
			Msg("conversation created")
		return &created, key, nil
	case errors.Is(err, storage.ErrConflict):
		// Another request created the conversation first; its key wins.
		winner, err := k.store.FindConversation(ctx, listingID, buyerID, sellerID)
		if err != nil {
			return nil, messagecrypto.Key{}, newError(ErrorUpstream, ErrConversationLookupFailed, "conversation lookup failed", err)
		}
		return k.importKey(winner)
	default:
		return nil, messagecrypto.Key{}, newError(ErrorUpstream, ErrConversationLookupFailed, "conversation create failed", err)
	}
}

func (k *KeyStore) importKey(conv *models.Conversation) (*models.Conversation, messagecrypto.Key, error) {
	key, err := messagecrypto.ImportKey(conv.EncryptionKey)
	if err != nil {
		k.log.Error().Err(err).Str("conversation_id", conv.ID).Msg("stored conversation key is unreadable")
		return nil, messagecrypto.Key{}, newError(ErrorUpstream, ErrConversationLookupFailed, "conversation key unreadable", err)
	}
	return conv, key, nil
}
