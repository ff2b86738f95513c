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
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/routeme/routeme/backend/models"
)

const (
	paypalTokenPath  = "/v1/oauth2/token"
	paypalOrdersPath = "/v2/checkout/orders"
)

type PayPalConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	ReturnURL    string
	CancelURL    string
	Timeout      time.Duration
}

// PayPal is a hosted-checkout (Orders v2) client.
type PayPal struct {
	http *resty.Client
	cfg  PayPalConfig
}

var (
	_ Gateway        = (*PayPal)(nil)
	_ Capturer       = (*PayPal)(nil)
	_ CallbackParser = (*PayPal)(nil)
)

func NewPayPal(cfg PayPalConfig) *PayPal {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("User-Agent", "RouteMe/1.0")
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	return &PayPal{http: client, cfg: cfg}
}

func (p *PayPal) Method() models.PaymentMethod { return models.MethodPayPal }

type paypalError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Details []struct {
		Issue       string `json:"issue"`
		Description string `json:"description"`
	} `json:"details"`
	// OAuth errors use a different shape.
	ErrorCode        string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (e *paypalError) reason() string {
	if len(e.Details) > 0 && e.Details[0].Description != "" {
		return e.Details[0].Description
	}
	if e.Message != "" {
		return e.Message
	}
	return e.ErrorDescription
}

func (p *PayPal) Authenticate(ctx context.Context) (string, error) {
	var result struct {
		AccessToken string `json:"access_token"`
	}
	var failure paypalError
	resp, err := p.http.R().
		SetContext(ctx).
		SetBasicAuth(p.cfg.ClientID, p.cfg.ClientSecret).
		SetFormData(map[string]string{"grant_type": "client_credentials"}).
		SetResult(&result).
		SetError(&failure).
		Post(paypalTokenPath)
	if err != nil {
		return "", fmt.Errorf("paypal token request: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("paypal token request failed (status %d): %s", resp.StatusCode(), failure.reason())
	}
	if result.AccessToken == "" {
		return "", fmt.Errorf("paypal token response missing access_token")
	}
	return result.AccessToken, nil
}

type paypalAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type paypalPurchaseUnit struct {
	ReferenceID string       `json:"reference_id"`
	CustomID    string       `json:"custom_id"`
	Description string       `json:"description,omitempty"`
	Amount      paypalAmount `json:"amount"`
}

type paypalOrderRequest struct {
	Intent        string               `json:"intent"`
	PurchaseUnits []paypalPurchaseUnit `json:"purchase_units"`
	Payer         *struct {
		EmailAddress string `json:"email_address"`
	} `json:"payer,omitempty"`
	ApplicationContext struct {
		BrandName  string `json:"brand_name"`
		UserAction string `json:"user_action"`
		ReturnURL  string `json:"return_url"`
		CancelURL  string `json:"cancel_url"`
	} `json:"application_context"`
}

type paypalOrder struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []struct {
		Href string `json:"href"`
		Rel  string `json:"rel"`
	} `json:"links"`
	PurchaseUnits []struct {
		Payments struct {
			Captures []struct {
				ID     string `json:"id"`
				Status string `json:"status"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

// Initiate creates a CAPTURE order. The transaction id is both the
// idempotency key and the purchase unit custom_id echoed in webhooks.
func (p *PayPal) Initiate(ctx context.Context, token string, req PaymentRequest) (*PaymentResponse, error) {
	body := paypalOrderRequest{
		Intent: "CAPTURE",
		PurchaseUnits: []paypalPurchaseUnit{{
			ReferenceID: req.TransactionID,
			CustomID:    req.TransactionID,
			Description: req.Description,
			Amount: paypalAmount{
				CurrencyCode: req.Currency,
				Value:        req.Amount.StringFixed(2),
			},
		}},
	}
	if req.Email != "" {
		body.Payer = &struct {
			EmailAddress string `json:"email_address"`
		}{EmailAddress: req.Email}
	}
	body.ApplicationContext.BrandName = "RouteMe"
	body.ApplicationContext.UserAction = "PAY_NOW"
	body.ApplicationContext.ReturnURL = p.cfg.ReturnURL
	body.ApplicationContext.CancelURL = p.cfg.CancelURL

	var order paypalOrder
	var failure paypalError
	resp, err := p.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("PayPal-Request-Id", req.TransactionID).
		SetBody(body).
		SetResult(&order).
		SetError(&failure).
		Post(paypalOrdersPath)
	if err != nil {
		return nil, fmt.Errorf("paypal create order: %w", err)
	}
	if resp.IsError() {
		return nil, &RejectedError{Provider: models.MethodPayPal, StatusCode: resp.StatusCode(), Code: failure.Name, Reason: failure.reason()}
	}
	if order.ID == "" {
		return nil, fmt.Errorf("paypal create order: response missing id")
	}

	out := &PaymentResponse{CorrelationID: order.ID}
	for _, link := range order.Links {
		if link.Rel == "approve" || link.Rel == "payer-action" {
			out.ApproveURL = link.Href
		}
	}
	return out, nil
}

func (p *PayPal) Capture(ctx context.Context, token, orderID string) (*CaptureResult, error) {
	var order paypalOrder
	var failure paypalError
	resp, err := p.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("PayPal-Request-Id", "capture-"+orderID).
		SetHeader("Content-Type", "application/json").
		SetBody("{}").
		SetResult(&order).
		SetError(&failure).
		Post(paypalOrdersPath + "/" + orderID + "/capture")
	if err != nil {
		return nil, fmt.Errorf("paypal capture order: %w", err)
	}
	if resp.IsError() {
		return nil, &RejectedError{Provider: models.MethodPayPal, StatusCode: resp.StatusCode(), Code: failure.Name, Reason: failure.reason()}
	}

	res := &CaptureResult{OrderID: orderID, Status: order.Status, Completed: order.Status == "COMPLETED"}
	if len(order.PurchaseUnits) > 0 && len(order.PurchaseUnits[0].Payments.Captures) > 0 {
		res.CaptureID = order.PurchaseUnits[0].Payments.Captures[0].ID
	}
	return res, nil
}

type paypalWebhook struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Summary   string `json:"summary"`
	Resource  *struct {
		ID                string `json:"id"`
		Status            string `json:"status"`
		CustomID          string `json:"custom_id"`
		SupplementaryData struct {
			RelatedIDs struct {
				OrderID string `json:"order_id"`
			} `json:"related_ids"`
		} `json:"supplementary_data"`
	} `json:"resource"`
}

func (p *PayPal) ParseCallback(body []byte) (*CallbackResult, error) {
	var hook paypalWebhook
	if err := json.Unmarshal(body, &hook); err != nil {
		return nil, malformed("decode paypal webhook: %v", err)
	}
	if hook.EventType == "" {
		return nil, malformed("missing event_type")
	}
	if hook.Resource == nil {
		return nil, malformed("missing resource")
	}

	res := &CallbackResult{
		ResultCode:  hook.EventType,
		Description: hook.Summary,
		Outcome:     OutcomeIgnored,
	}
	switch hook.EventType {
	case "PAYMENT.CAPTURE.COMPLETED":
		res.CorrelationID = hook.Resource.SupplementaryData.RelatedIDs.OrderID
		res.Reference = hook.Resource.ID
		res.Outcome = OutcomeSucceeded
	case "PAYMENT.CAPTURE.DENIED", "PAYMENT.CAPTURE.DECLINED":
		res.CorrelationID = hook.Resource.SupplementaryData.RelatedIDs.OrderID
		res.Reference = hook.Resource.ID
		res.Outcome = OutcomeFailed
	default:
		res.CorrelationID = hook.Resource.ID
	}
	if res.CorrelationID == "" {
		return nil, malformed("missing order id for %s", hook.EventType)
	}
	return res, nil
}

func (p *PayPal) Ack() any {
	return map[string]string{"status": "received"}
}
