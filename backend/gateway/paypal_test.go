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

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newTestPayPal(t *testing.T, handler http.HandlerFunc) *PayPal {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewPayPal(PayPalConfig{
		BaseURL:      srv.URL,
		ClientID:     "client",
		ClientSecret: "secret",
		ReturnURL:    "https://routeme.test/return",
		CancelURL:    "https://routeme.test/cancel",
	})
}

func TestPayPalAuthenticate(t *testing.T) {
	p := newTestPayPal(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, paypalTokenPath, r.URL.Path)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "client", user)
		require.Equal(t, "secret", pass)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"A21AA","token_type":"Bearer"}`))
	})

	token, err := p.Authenticate(context.Background())
	require.NoError(t, err)
	require.Equal(t, "A21AA", token)
}

func TestPayPalAuthenticate_Unauthorized(t *testing.T) {
	p := newTestPayPal(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid_client","error_description":"Client Authentication failed"}`))
	})

	_, err := p.Authenticate(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "Client Authentication failed")
}

func TestPayPalInitiate(t *testing.T) {
	var got paypalOrderRequest
	p := newTestPayPal(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, paypalOrdersPath, r.URL.Path)
		require.Equal(t, "Bearer A21AA", r.Header.Get("Authorization"))
		require.Equal(t, "tx-9", r.Header.Get("PayPal-Request-Id"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"5O190127TN364715T","status":"CREATED","links":[
			{"href":"https://api.paypal.com/v2/checkout/orders/5O190127TN364715T","rel":"self"},
			{"href":"https://www.paypal.com/checkoutnow?token=5O190127TN364715T","rel":"approve"}]}`))
	})

	resp, err := p.Initiate(context.Background(), "A21AA", PaymentRequest{
		TransactionID: "tx-9",
		Amount:        decimal.RequireFromString("12.5"),
		Currency:      "USD",
		Email:         "buyer@example.com",
		Description:   "Featured listing",
	})
	require.NoError(t, err)
	require.Equal(t, "5O190127TN364715T", resp.CorrelationID)
	require.Equal(t, "https://www.paypal.com/checkoutnow?token=5O190127TN364715T", resp.ApproveURL)

	require.Equal(t, "CAPTURE", got.Intent)
	require.Len(t, got.PurchaseUnits, 1)
	require.Equal(t, "tx-9", got.PurchaseUnits[0].CustomID)
	require.Equal(t, "12.50", got.PurchaseUnits[0].Amount.Value)
	require.Equal(t, "USD", got.PurchaseUnits[0].Amount.CurrencyCode)
	require.NotNil(t, got.Payer)
	require.Equal(t, "buyer@example.com", got.Payer.EmailAddress)
	require.Equal(t, "https://routeme.test/return", got.ApplicationContext.ReturnURL)
}

func TestPayPalInitiate_Rejected(t *testing.T) {
	p := newTestPayPal(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"name":"UNPROCESSABLE_ENTITY","message":"The requested action could not be performed",
			"details":[{"issue":"CURRENCY_NOT_SUPPORTED","description":"Currency code is not supported."}]}`))
	})

	_, err := p.Initiate(context.Background(), "tok", PaymentRequest{TransactionID: "tx", Amount: decimal.NewFromInt(1), Currency: "KES"})
	var rejected *RejectedError
	require.True(t, errors.As(err, &rejected))
	require.Equal(t, "UNPROCESSABLE_ENTITY", rejected.Code)
	require.Equal(t, "Currency code is not supported.", rejected.Reason)
}

func TestPayPalCapture(t *testing.T) {
	p := newTestPayPal(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, paypalOrdersPath+"/ORDER-1/capture", r.URL.Path)
		require.Equal(t, "capture-ORDER-1", r.Header.Get("PayPal-Request-Id"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"ORDER-1","status":"COMPLETED","purchase_units":[{"payments":{"captures":[{"id":"3C679366HH908993F","status":"COMPLETED"}]}}]}`))
	})

	res, err := p.Capture(context.Background(), "tok", "ORDER-1")
	require.NoError(t, err)
	require.True(t, res.Completed)
	require.Equal(t, "3C679366HH908993F", res.CaptureID)
}

func TestPayPalParseCallback(t *testing.T) {
	p := NewPayPal(PayPalConfig{})

	res, err := p.ParseCallback([]byte(`{"id":"WH-1","event_type":"PAYMENT.CAPTURE.COMPLETED",
		"resource":{"id":"3C679366HH908993F","status":"COMPLETED","custom_id":"tx-9",
		"supplementary_data":{"related_ids":{"order_id":"ORDER-1"}}}}`))
	require.NoError(t, err)
	require.Equal(t, "ORDER-1", res.CorrelationID)
	require.Equal(t, "3C679366HH908993F", res.Reference)
	require.Equal(t, OutcomeSucceeded, res.Outcome)

	res, err = p.ParseCallback([]byte(`{"event_type":"PAYMENT.CAPTURE.DENIED",
		"resource":{"id":"CAP-2","supplementary_data":{"related_ids":{"order_id":"ORDER-2"}}}}`))
	require.NoError(t, err)
	require.Equal(t, OutcomeFailed, res.Outcome)

	res, err = p.ParseCallback([]byte(`{"event_type":"CHECKOUT.ORDER.APPROVED","resource":{"id":"ORDER-3"}}`))
	require.NoError(t, err)
	require.Equal(t, OutcomeIgnored, res.Outcome)
	require.Equal(t, "ORDER-3", res.CorrelationID)

	_, err = p.ParseCallback([]byte(`{"event_type":"PAYMENT.CAPTURE.COMPLETED","resource":{"id":"CAP"}}`))
	require.ErrorIs(t, err, ErrMalformedCallback)

	_, err = p.ParseCallback([]byte(`{"resource":{}}`))
	require.ErrorIs(t, err, ErrMalformedCallback)
}
