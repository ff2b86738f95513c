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
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/routeme/routeme/backend/gateway"
	"github.com/routeme/routeme/backend/metrics"
	"github.com/routeme/routeme/backend/models"
	"github.com/routeme/routeme/backend/storage"
)

const signaturePrefix = "sha256="

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a hex HMAC-SHA256 signature, optionally prefixed
// with "sha256=", in constant time.
func VerifySignature(secret, body []byte, signature string) bool {
	if len(secret) == 0 {
		return false
	}
	signature = strings.TrimPrefix(strings.TrimSpace(signature), signaturePrefix)
	got, err := hex.DecodeString(signature)
	if err != nil || len(got) != sha256.Size {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

type CallbackService struct {
	store   storage.TransactionStore
	parsers map[string]gateway.CallbackParser
	secret  []byte
	settler *Settler
	log     zerolog.Logger
}

func NewCallbackService(store storage.TransactionStore, parsers []gateway.CallbackParser, secret string, settler *Settler, log zerolog.Logger) *CallbackService {
	byName := make(map[string]gateway.CallbackParser, len(parsers))
	for _, p := range parsers {
		byName[string(p.Method())] = p
	}
	return &CallbackService{
		store:   store,
		parsers: byName,
		secret:  []byte(secret),
		settler: settler,
		log:     log.With().Str("component", "callbacks").Logger(),
	}
}

// HandleCallback authenticates and applies a provider callback, returning the
// acknowledgment body the provider expects. Once the signature is verified,
// internal failures are logged and the callback is still acknowledged so the
// provider does not retry-storm; only a malformed body is refused.
//
// reference is the local transaction id carried on the callback URL. It is
// only consulted when no transaction holds the callback's correlation id.
func (c *CallbackService) HandleCallback(ctx context.Context, provider string, body []byte, signature, reference string) (any, error) {
	parser, ok := c.parsers[provider]
	if !ok {
		return nil, newError(ErrorNotFound, ErrUnsupportedProvider, "unknown payment provider", nil)
	}
	log := c.log.With().Str("provider", provider).Logger()

	if !VerifySignature(c.secret, body, signature) {
		metrics.CallbacksTotal.WithLabelValues(provider, "invalid_signature").Inc()
		log.Warn().Int("body_bytes", len(body)).Msg("rejected callback with invalid signature")
		return nil, newError(ErrorSecurityViolation, ErrInvalidSignature, "invalid signature", nil)
	}

	res, err := parser.ParseCallback(body)
	if err != nil {
		metrics.CallbacksTotal.WithLabelValues(provider, "malformed").Inc()
		log.Warn().Err(err).Msg("malformed callback")
		return nil, newError(ErrorInvalidInput, ErrMalformedCallback, "malformed callback", err)
	}
	log = log.With().Str("correlation_id", res.CorrelationID).Str("result_code", res.ResultCode).Logger()

	if res.Outcome == gateway.OutcomeIgnored {
		metrics.CallbacksTotal.WithLabelValues(provider, "ignored").Inc()
		log.Debug().Msg("ignoring callback event")
		return parser.Ack(), nil
	}

	tx, err := c.store.GetTransactionByCorrelation(ctx, res.CorrelationID)
	if errors.Is(err, storage.ErrNotFound) && reference != "" {
		tx, err = c.recoverCorrelation(ctx, log, provider, reference, res.CorrelationID)
	}
	switch {
	case errors.Is(err, storage.ErrNotFound):
		metrics.CallbacksTotal.WithLabelValues(provider, "unknown").Inc()
		log.Warn().Msg("callback for unknown transaction")
		return parser.Ack(), nil
	case err != nil:
		metrics.CallbacksTotal.WithLabelValues(provider, "error").Inc()
		log.Error().Err(err).Msg("transaction lookup failed")
		return parser.Ack(), nil
	case tx.Status.Terminal():
		metrics.CallbacksTotal.WithLabelValues(provider, "duplicate").Inc()
		log.Info().Str("transaction_id", tx.ID).Str("status", string(tx.Status)).Msg("callback for settled transaction")
		return parser.Ack(), nil
	}

	transition := models.Transition{
		CorrelationID: res.CorrelationID,
		Status:        models.StatusCompleted,
		Reference:     res.Reference,
	}
	if res.Outcome == gateway.OutcomeFailed {
		transition.Status = models.StatusFailed
		transition.FailureReason = res.Description
		if transition.FailureReason == "" {
			transition.FailureReason = "payment failed (" + res.ResultCode + ")"
		}
	}

	updated, err := c.settler.Apply(ctx, transition)
	switch {
	case err != nil:
		metrics.CallbacksTotal.WithLabelValues(provider, "error").Inc()
		log.Error().Err(err).Str("transaction_id", tx.ID).Msg("failed to apply callback")
	case updated == nil:
		metrics.CallbacksTotal.WithLabelValues(provider, "duplicate").Inc()
	default:
		metrics.CallbacksTotal.WithLabelValues(provider, string(updated.Status)).Inc()
	}
	return parser.Ack(), nil
}

// recoverCorrelation binds correlationID to a pending transaction whose
// provider id was never recorded at initiation.
func (c *CallbackService) recoverCorrelation(ctx context.Context, log zerolog.Logger, provider, transactionID, correlationID string) (*models.Transaction, error) {
	tx, err := c.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if string(tx.Method) != provider || tx.Status != models.StatusPending || tx.CheckoutRequestID != nil {
		return nil, storage.ErrNotFound
	}
	if err := c.store.SetCorrelation(ctx, tx.ID, correlationID, ""); err != nil {
		return nil, fmt.Errorf("bind correlation for %s: %w", tx.ID, err)
	}
	log.Warn().Str("transaction_id", tx.ID).Msg("recovered missing provider reference from callback URL")
	return c.store.GetTransactionByCorrelation(ctx, correlationID)
}
