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

// Package gateway talks to the external payment providers and parses their
// asynchronous callbacks.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/routeme/routeme/backend/models"
)

var ErrMalformedCallback = errors.New("malformed callback")

// PaymentRequest is a provider-neutral payment submission. TransactionID is
// round-tripped through the provider so callbacks can be traced back.
type PaymentRequest struct {
	TransactionID string
	Amount        decimal.Decimal
	Currency      string
	PhoneNumber   string
	Email         string
	Description   string
	CallbackURL   string
}

type PaymentResponse struct {
	// CorrelationID is what the provider's callback carries (CheckoutRequestID or order id).
	CorrelationID     string
	MerchantRequestID string
	ApproveURL        string
	CustomerMessage   string
}

type Gateway interface {
	Method() models.PaymentMethod
	Authenticate(ctx context.Context) (string, error)
	Initiate(ctx context.Context, token string, req PaymentRequest) (*PaymentResponse, error)
}

type CaptureResult struct {
	OrderID   string
	CaptureID string
	Status    string
	Completed bool
}

// Capturer is implemented by redirect-flow gateways that need an explicit
// capture after buyer approval.
type Capturer interface {
	Capture(ctx context.Context, token, orderID string) (*CaptureResult, error)
}

type Outcome int

const (
	OutcomeIgnored Outcome = iota
	OutcomeSucceeded
	OutcomeFailed
)

type CallbackResult struct {
	CorrelationID string
	ResultCode    string
	Description   string
	Reference     string
	Outcome       Outcome
}

type CallbackParser interface {
	Method() models.PaymentMethod
	ParseCallback(body []byte) (*CallbackResult, error)
	// Ack is the body the provider expects in every response.
	Ack() any
}

// RejectedError is an explicit refusal from the provider, as opposed to a
// transport failure where the request outcome is unknown.
type RejectedError struct {
	Provider   models.PaymentMethod
	StatusCode int
	Code       string
	Reason     string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s rejected request (status %d, code %s): %s", e.Provider, e.StatusCode, e.Code, e.Reason)
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedCallback, fmt.Sprintf(format, args...))
}
