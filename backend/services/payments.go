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

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/routeme/routeme/backend/gateway"
	"github.com/routeme/routeme/backend/metrics"
	"github.com/routeme/routeme/backend/models"
	"github.com/routeme/routeme/backend/storage"
)

var defaultCurrency = map[models.PaymentMethod]string{
	models.MethodMPesa:  "KES",
	models.MethodPayPal: "USD",
}

type InitiateRequest struct {
	UserID      string
	Method      models.PaymentMethod
	Amount      decimal.Decimal
	Currency    string
	PhoneNumber string
	Email       string
	Description string
}

type InitiateResult struct {
	ProviderReference string
	MerchantReference string
	ApproveURL        string
	CustomerMessage   string
	Transaction       *models.Transaction
}

type PaymentService struct {
	store       PaymentStore
	gateways    map[models.PaymentMethod]gateway.Gateway
	callbackURL func(provider string) string
	settler     *Settler
	validate    *validator.Validate
	log         zerolog.Logger
	now         func() time.Time
}

func NewPaymentService(store PaymentStore, gateways []gateway.Gateway, callbackURL func(provider string) string, settler *Settler, log zerolog.Logger) *PaymentService {
	byMethod := make(map[models.PaymentMethod]gateway.Gateway, len(gateways))
	for _, gw := range gateways {
		byMethod[gw.Method()] = gw
	}
	return &PaymentService{
		store:       store,
		gateways:    byMethod,
		callbackURL: callbackURL,
		settler:     settler,
		validate:    validator.New(),
		log:         log.With().Str("component", "payments").Logger(),
		now:         time.Now,
	}
}

// Initiate records a pending transaction and submits it to the provider. The
// row exists before any gateway call so a late callback always finds it.
func (s *PaymentService) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	gw, ok := s.gateways[req.Method]
	if !ok {
		return nil, newError(ErrorInvalidInput, ErrUnsupportedProvider, "unsupported payment method", nil)
	}
	tx, err := s.newTransaction(req)
	if err != nil {
		return nil, err
	}

	log := s.log.With().Str("transaction_id", tx.ID).Str("provider", string(req.Method)).Logger()

	if err := s.store.CreateTransaction(ctx, *tx); err != nil {
		return nil, newError(ErrorUpstream, ErrGatewayRequestFailed, "could not record transaction", err)
	}

	token, err := gw.Authenticate(ctx)
	if err != nil {
		log.Error().Err(err).Msg("gateway authentication failed")
		metrics.PaymentsInitiatedTotal.WithLabelValues(string(req.Method), "auth_failed").Inc()
		s.fail(ctx, tx.ID, "gateway authentication failed")
		return nil, newError(ErrorUpstream, ErrGatewayAuthFailed, "payment provider unavailable", err)
	}

	resp, err := gw.Initiate(ctx, token, gateway.PaymentRequest{
		TransactionID: tx.ID,
		Amount:        tx.Amount,
		Currency:      tx.Currency,
		PhoneNumber:   req.PhoneNumber,
		Email:         req.Email,
		Description:   tx.Description,
		CallbackURL:   s.callbackURL(string(req.Method)),
	})
	if err != nil {
		var rejected *gateway.RejectedError
		if errors.As(err, &rejected) {
			log.Warn().Err(err).Msg("gateway rejected payment")
			metrics.PaymentsInitiatedTotal.WithLabelValues(string(req.Method), "rejected").Inc()
			s.fail(ctx, tx.ID, rejected.Reason)
			return nil, newError(ErrorUpstream, ErrGatewayRequestFailed, rejected.Reason, err)
		}
		// The request may have reached the provider; leave the row pending.
		log.Error().Err(err).Msg("gateway request failed")
		metrics.PaymentsInitiatedTotal.WithLabelValues(string(req.Method), "error").Inc()
		return nil, newError(ErrorUpstream, ErrGatewayRequestFailed, "payment provider unavailable", err)
	}

	// On failure the row stays pending and unbound; a callback carrying
	// ?reference=<tx id> rebinds it in CallbackService.
	if err := s.store.SetCorrelation(ctx, tx.ID, resp.CorrelationID, resp.MerchantRequestID); err != nil {
		log.Error().Err(err).Str("correlation_id", resp.CorrelationID).Msg("failed to record provider reference")
		return nil, newError(ErrorUpstream, ErrGatewayRequestFailed, "could not record transaction", err)
	}
	metrics.PaymentsInitiatedTotal.WithLabelValues(string(req.Method), "accepted").Inc()
	log.Info().Str("correlation_id", resp.CorrelationID).Msg("payment initiated")

	stored, err := s.store.GetTransaction(ctx, tx.ID)
	if err != nil {
		return nil, newError(ErrorUpstream, ErrTransactionNotFound, "could not load transaction", err)
	}
	return &InitiateResult{
		ProviderReference: resp.CorrelationID,
		MerchantReference: resp.MerchantRequestID,
		ApproveURL:        resp.ApproveURL,
		CustomerMessage:   resp.CustomerMessage,
		Transaction:       stored,
	}, nil
}

func (s *PaymentService) newTransaction(req InitiateRequest) (*models.Transaction, error) {
	if !req.Amount.IsPositive() {
		return nil, newError(ErrorInvalidInput, ErrInvalidInput, "amount must be positive", nil)
	}
	if !req.Amount.Equal(req.Amount.Round(2)) {
		return nil, newError(ErrorInvalidInput, ErrInvalidInput, "amount has too many decimal places", nil)
	}

	now := s.now().UTC()
	tx := &models.Transaction{
		ID:          uuid.New().String(),
		UserID:      req.UserID,
		Amount:      req.Amount,
		Currency:    strings.ToUpper(strings.TrimSpace(req.Currency)),
		Method:      req.Method,
		Status:      models.StatusPending,
		Description: strings.TrimSpace(req.Description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if tx.Currency == "" {
		tx.Currency = defaultCurrency[req.Method]
	}

	switch req.Method {
	case models.MethodMPesa:
		if !req.Amount.IsInteger() {
			return nil, newError(ErrorInvalidInput, ErrInvalidInput, "M-Pesa amounts must be whole shillings", nil)
		}
		if tx.Currency != "KES" {
			return nil, newError(ErrorInvalidInput, ErrInvalidInput, "M-Pesa only accepts KES", nil)
		}
		phone, ok := gateway.NormalizePhone(req.PhoneNumber)
		if !ok {
			return nil, newError(ErrorInvalidInput, ErrInvalidInput, "a valid Kenyan phone number is required", nil)
		}
		tx.PhoneNumber = &phone
	case models.MethodPayPal:
		email := strings.TrimSpace(req.Email)
		if err := s.validate.Var(email, "required,email"); err != nil {
			return nil, newError(ErrorInvalidInput, ErrInvalidInput, "a valid email address is required", nil)
		}
		tx.Email = &email
	}
	return tx, nil
}

func (s *PaymentService) fail(ctx context.Context, transactionID, reason string) {
	if _, err := s.store.ResolvePending(ctx, transactionID, models.StatusFailed, reason); err != nil {
		s.log.Error().Err(err).Str("transaction_id", transactionID).Msg("failed to mark transaction failed")
	}
}

// Get returns the caller's transaction. Transactions owned by someone else
// are reported as not found.
func (s *PaymentService) Get(ctx context.Context, userID, transactionID string) (*models.Transaction, error) {
	tx, err := s.store.GetTransaction(ctx, transactionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, newError(ErrorNotFound, ErrTransactionNotFound, "transaction not found", nil)
		}
		return nil, newError(ErrorUpstream, ErrTransactionNotFound, "transaction lookup failed", err)
	}
	if tx.UserID != userID {
		return nil, newError(ErrorNotFound, ErrTransactionNotFound, "transaction not found", nil)
	}
	return tx, nil
}

// Cancel moves the caller's pending transaction to cancelled.
func (s *PaymentService) Cancel(ctx context.Context, userID, transactionID string) (*models.Transaction, error) {
	tx, err := s.Get(ctx, userID, transactionID)
	if err != nil {
		return nil, err
	}
	ok, err := s.store.ResolvePending(ctx, tx.ID, models.StatusCancelled, "cancelled by user")
	if err != nil {
		return nil, newError(ErrorUpstream, ErrTransactionNotFound, "transaction update failed", err)
	}
	if !ok {
		return nil, newError(ErrorInvalidInput, ErrInvalidInput, "transaction is no longer pending", nil)
	}
	s.log.Info().Str("transaction_id", tx.ID).Msg("transaction cancelled")
	return s.Get(ctx, userID, transactionID)
}

// CapturePayPal captures an approved PayPal order after the buyer returns
// from the hosted checkout, settling the transaction the same way a webhook
// would. Whichever of the two arrives first wins.
func (s *PaymentService) CapturePayPal(ctx context.Context, userID, orderID string) (*models.Transaction, error) {
	gw, ok := s.gateways[models.MethodPayPal]
	capturer, canCapture := gw.(gateway.Capturer)
	if !ok || !canCapture {
		return nil, newError(ErrorInvalidInput, ErrUnsupportedProvider, "PayPal is not enabled", nil)
	}

	tx, err := s.store.GetTransactionByCorrelation(ctx, orderID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, newError(ErrorNotFound, ErrTransactionNotFound, "transaction not found", nil)
		}
		return nil, newError(ErrorUpstream, ErrTransactionNotFound, "transaction lookup failed", err)
	}
	if tx.UserID != userID {
		return nil, newError(ErrorNotFound, ErrTransactionNotFound, "transaction not found", nil)
	}
	if tx.Status.Terminal() {
		return tx, nil
	}

	log := s.log.With().Str("transaction_id", tx.ID).Str("order_id", orderID).Logger()

	token, err := gw.Authenticate(ctx)
	if err != nil {
		log.Error().Err(err).Msg("gateway authentication failed")
		return nil, newError(ErrorUpstream, ErrGatewayAuthFailed, "payment provider unavailable", err)
	}

	transition := models.Transition{CorrelationID: orderID}
	res, err := capturer.Capture(ctx, token, orderID)
	if err != nil {
		var rejected *gateway.RejectedError
		if !errors.As(err, &rejected) {
			log.Error().Err(err).Msg("capture request failed")
			return nil, newError(ErrorUpstream, ErrGatewayRequestFailed, "payment provider unavailable", err)
		}
		log.Warn().Err(err).Msg("capture rejected")
		transition.Status = models.StatusFailed
		transition.FailureReason = rejected.Reason
	} else if res.Completed {
		transition.Status = models.StatusCompleted
		transition.Reference = res.CaptureID
	} else {
		// Capture pending on PayPal's side; the webhook settles it later.
		log.Info().Str("status", res.Status).Msg("capture not yet completed")
		return tx, nil
	}

	if _, err := s.settler.Apply(ctx, transition); err != nil {
		return nil, newError(ErrorUpstream, ErrGatewayRequestFailed, "transaction update failed", err)
	}
	return s.Get(ctx, userID, tx.ID)
}
