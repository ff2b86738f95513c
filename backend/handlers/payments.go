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

package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/routeme/routeme/backend/models"
	"github.com/routeme/routeme/backend/services"
)

type Payments interface {
	Initiate(ctx context.Context, req services.InitiateRequest) (*services.InitiateResult, error)
	Get(ctx context.Context, userID, transactionID string) (*models.Transaction, error)
	Cancel(ctx context.Context, userID, transactionID string) (*models.Transaction, error)
	CapturePayPal(ctx context.Context, userID, orderID string) (*models.Transaction, error)
}

type PaymentHandler struct {
	payments Payments
}

func NewPaymentHandler(payments Payments) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

type initiatePaymentRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency" validate:"omitempty,len=3,alpha"`
	PhoneNumber string          `json:"phoneNumber" validate:"omitempty,max=20"`
	Email       string          `json:"email" validate:"omitempty,email"`
	Description string          `json:"description" validate:"max=140"`
}

type initiatePaymentResponse struct {
	Success           bool                `json:"success"`
	ProviderReference string              `json:"providerReference"`
	MerchantReference string              `json:"merchantReference,omitempty"`
	ApproveURL        string              `json:"approveUrl,omitempty"`
	CustomerMessage   string              `json:"customerMessage,omitempty"`
	Transaction       *models.Transaction `json:"transaction"`
}

// Initiate handles POST /api/payments/{provider}
func (h *PaymentHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req initiatePaymentRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.payments.Initiate(r.Context(), services.InitiateRequest{
		UserID:      userID,
		Method:      models.PaymentMethod(mux.Vars(r)["provider"]),
		Amount:      req.Amount,
		Currency:    req.Currency,
		PhoneNumber: req.PhoneNumber,
		Email:       req.Email,
		Description: req.Description,
	})
	if err != nil {
		writeError(w, r, "initiate_payment", err)
		return
	}
	writeJSON(w, http.StatusOK, initiatePaymentResponse{
		Success:           true,
		ProviderReference: res.ProviderReference,
		MerchantReference: res.MerchantReference,
		ApproveURL:        res.ApproveURL,
		CustomerMessage:   res.CustomerMessage,
		Transaction:       res.Transaction,
	})
}

// GetTransaction handles GET /api/payments/transactions/{id}; clients poll it
// until the status is terminal.
func (h *PaymentHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	tx, err := h.payments.Get(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, "get_transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transaction": tx})
}

func (h *PaymentHandler) CancelTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	tx, err := h.payments.Cancel(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, "cancel_transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transaction": tx})
}

type captureRequest struct {
	OrderID string `json:"orderId" validate:"required"`
}

// CapturePayPal handles POST /api/payments/paypal/capture after the buyer
// returns from PayPal.
func (h *PaymentHandler) CapturePayPal(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req captureRequest
	if !decodeBody(w, r, &req) {
		return
	}
	tx, err := h.payments.CapturePayPal(r.Context(), userID, req.OrderID)
	if err != nil {
		writeError(w, r, "capture_paypal", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transaction": tx})
}
