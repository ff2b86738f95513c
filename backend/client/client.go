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

// Package client is a Go client for the RouteMe API and the checkout status
// polling loop built on it.
package client

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/routeme/routeme/backend/models"
)

type Client struct {
	http *resty.Client
}

func NewClient(baseURL, token string) *Client {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("User-Agent", "RouteMe-Client/1.0").
		SetAuthToken(token).
		SetTimeout(20 * time.Second)
	return &Client{http: client}
}

type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("routeme api error (%d %s): %s", e.StatusCode, e.Code, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var failure apiError
	req := c.http.R().
		SetContext(ctx).
		SetResult(result).
		SetError(&failure)
	if body != nil {
		req.SetBody(body)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("routeme request %s %s: %w", method, path, err)
	}
	if resp.IsError() {
		msg := failure.Error
		if msg == "" {
			msg = resp.Status()
		}
		return &APIError{StatusCode: resp.StatusCode(), Code: failure.Code, Message: msg}
	}
	return nil
}

type SendMessageRequest struct {
	ListingID   string `json:"listingId"`
	RecipientID string `json:"recipientId"`
	Content     string `json:"content"`
}

func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (string, error) {
	var out struct {
		MessageID string `json:"messageId"`
	}
	if err := c.do(ctx, resty.MethodPost, "/api/messages", req, &out); err != nil {
		return "", err
	}
	return out.MessageID, nil
}

func (c *Client) Messages(ctx context.Context, conversationID string) ([]models.Message, error) {
	var out struct {
		Messages []models.Message `json:"messages"`
	}
	path := "/api/messages?conversationId=" + url.QueryEscape(conversationID)
	if err := c.do(ctx, resty.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

type PaymentRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency,omitempty"`
	PhoneNumber string          `json:"phoneNumber,omitempty"`
	Email       string          `json:"email,omitempty"`
	Description string          `json:"description,omitempty"`
}

type PaymentResponse struct {
	ProviderReference string             `json:"providerReference"`
	MerchantReference string             `json:"merchantReference,omitempty"`
	ApproveURL        string             `json:"approveUrl,omitempty"`
	Transaction       models.Transaction `json:"transaction"`
}

func (c *Client) InitiatePayment(ctx context.Context, method models.PaymentMethod, req PaymentRequest) (*PaymentResponse, error) {
	var out PaymentResponse
	if err := c.do(ctx, resty.MethodPost, "/api/payments/"+string(method), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Transaction(ctx context.Context, transactionID string) (*models.Transaction, error) {
	var out struct {
		Transaction models.Transaction `json:"transaction"`
	}
	if err := c.do(ctx, resty.MethodGet, "/api/payments/transactions/"+transactionID, nil, &out); err != nil {
		return nil, err
	}
	return &out.Transaction, nil
}

// TransactionStatus implements StatusFetcher.
func (c *Client) TransactionStatus(ctx context.Context, transactionID string) (models.TransactionStatus, error) {
	tx, err := c.Transaction(ctx, transactionID)
	if err != nil {
		return "", err
	}
	return tx.Status, nil
}
