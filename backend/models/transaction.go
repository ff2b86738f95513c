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

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
	StatusCancelled TransactionStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed from s.
func (s TransactionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

type PaymentMethod string

const (
	MethodMPesa  PaymentMethod = "mpesa"
	MethodPayPal PaymentMethod = "paypal"
)

// Transaction is one payment attempt. CheckoutRequestID is the provider
// correlation identifier (M-Pesa CheckoutRequestID or PayPal order id).
type Transaction struct {
	ID                string            `json:"id" db:"id"`
	UserID            string            `json:"userId" db:"user_id"`
	Amount            decimal.Decimal   `json:"amount" db:"amount"`
	Currency          string            `json:"currency" db:"currency"`
	Method            PaymentMethod     `json:"paymentMethod" db:"payment_method"`
	Status            TransactionStatus `json:"status" db:"status"`
	CheckoutRequestID *string           `json:"checkoutRequestId,omitempty" db:"checkout_request_id"`
	MerchantRequestID *string           `json:"merchantRequestId,omitempty" db:"merchant_request_id"`
	Reference         *string           `json:"reference,omitempty" db:"reference"`
	FailureReason     *string           `json:"failureReason,omitempty" db:"failure_reason"`
	PhoneNumber       *string           `json:"phoneNumber,omitempty" db:"phone_number"`
	Email             *string           `json:"email,omitempty" db:"email"`
	Description       string            `json:"description,omitempty" db:"description"`
	CreatedAt         time.Time         `json:"createdAt" db:"created_at"`
	UpdatedAt         time.Time         `json:"updatedAt" db:"updated_at"`
}

// Transition is a terminal state change applied by correlation identifier.
type Transition struct {
	CorrelationID string
	Status        TransactionStatus
	Reference     string
	FailureReason string
}
