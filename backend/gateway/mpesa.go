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
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/routeme/routeme/backend/models"
)

const (
	mpesaTokenPath = "/oauth/v1/generate"
	mpesaSTKPath   = "/mpesa/stkpush/v1/processrequest"
)

var (
	eat          = time.FixedZone("EAT", 3*60*60)
	kenyanMobile = regexp.MustCompile(`^254[17]\d{8}$`)
)

type MPesaConfig struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	Passkey        string
	Timeout        time.Duration
}

// MPesa is a Daraja STK push client.
type MPesa struct {
	http *resty.Client
	cfg  MPesaConfig
	now  func() time.Time
}

var (
	_ Gateway        = (*MPesa)(nil)
	_ CallbackParser = (*MPesa)(nil)
)

func NewMPesa(cfg MPesaConfig) *MPesa {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("User-Agent", "RouteMe/1.0")
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	return &MPesa{http: client, cfg: cfg, now: time.Now}
}

func (m *MPesa) Method() models.PaymentMethod { return models.MethodMPesa }

type mpesaTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

type mpesaError struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

func (m *MPesa) Authenticate(ctx context.Context) (string, error) {
	var result mpesaTokenResponse
	resp, err := m.http.R().
		SetContext(ctx).
		SetBasicAuth(m.cfg.ConsumerKey, m.cfg.ConsumerSecret).
		SetQueryParam("grant_type", "client_credentials").
		SetResult(&result).
		Get(mpesaTokenPath)
	if err != nil {
		return "", fmt.Errorf("mpesa token request: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("mpesa token request failed (status %d): %s", resp.StatusCode(), resp.String())
	}
	if result.AccessToken == "" {
		return "", fmt.Errorf("mpesa token response missing access_token")
	}
	return result.AccessToken, nil
}

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// Initiate sends an STK push to the payer's phone. The local transaction id
// rides along as a query parameter on the callback URL.
func (m *MPesa) Initiate(ctx context.Context, token string, req PaymentRequest) (*PaymentResponse, error) {
	if !req.Amount.IsInteger() {
		return nil, &RejectedError{Provider: models.MethodMPesa, Code: "amount", Reason: "M-Pesa amounts must be whole shillings"}
	}
	timestamp := m.now().In(eat).Format("20060102150405")
	desc := req.Description
	if desc == "" {
		desc = "RouteMe payment"
	}

	body := stkPushRequest{
		BusinessShortCode: m.cfg.ShortCode,
		Password:          base64.StdEncoding.EncodeToString([]byte(m.cfg.ShortCode + m.cfg.Passkey + timestamp)),
		Timestamp:         timestamp,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            req.Amount.IntPart(),
		PartyA:            req.PhoneNumber,
		PartyB:            m.cfg.ShortCode,
		PhoneNumber:       req.PhoneNumber,
		CallBackURL:       withReference(req.CallbackURL, req.TransactionID),
		AccountReference:  "RouteMe",
		TransactionDesc:   truncate(desc, 13),
	}

	var result stkPushResponse
	var failure mpesaError
	resp, err := m.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(body).
		SetResult(&result).
		SetError(&failure).
		Post(mpesaSTKPath)
	if err != nil {
		return nil, fmt.Errorf("mpesa stk push: %w", err)
	}
	if resp.IsError() {
		reason := failure.ErrorMessage
		if reason == "" {
			reason = resp.Status()
		}
		return nil, &RejectedError{Provider: models.MethodMPesa, StatusCode: resp.StatusCode(), Code: failure.ErrorCode, Reason: reason}
	}
	if result.ResponseCode != "0" || result.CheckoutRequestID == "" {
		return nil, &RejectedError{Provider: models.MethodMPesa, StatusCode: resp.StatusCode(), Code: result.ResponseCode, Reason: result.ResponseDescription}
	}

	return &PaymentResponse{
		CorrelationID:     result.CheckoutRequestID,
		MerchantRequestID: result.MerchantRequestID,
		CustomerMessage:   result.CustomerMessage,
	}, nil
}

type stkCallbackEnvelope struct {
	Body struct {
		STKCallback *struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        *int   `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  *struct {
				Item []struct {
					Name  string `json:"Name"`
					Value any    `json:"Value"`
				} `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

func (m *MPesa) ParseCallback(body []byte) (*CallbackResult, error) {
	var env stkCallbackEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, malformed("decode stk callback: %v", err)
	}
	cb := env.Body.STKCallback
	if cb == nil {
		return nil, malformed("missing Body.stkCallback")
	}
	if cb.ResultCode == nil {
		return nil, malformed("missing ResultCode")
	}
	if cb.CheckoutRequestID == "" {
		return nil, malformed("missing CheckoutRequestID")
	}

	res := &CallbackResult{
		CorrelationID: cb.CheckoutRequestID,
		ResultCode:    strconv.Itoa(*cb.ResultCode),
		Description:   cb.ResultDesc,
		Outcome:       OutcomeFailed,
	}
	if *cb.ResultCode == 0 {
		res.Outcome = OutcomeSucceeded
	}
	if cb.CallbackMetadata != nil {
		for _, item := range cb.CallbackMetadata.Item {
			if item.Name == "MpesaReceiptNumber" {
				res.Reference = fmt.Sprint(item.Value)
			}
		}
	}
	return res, nil
}

func (m *MPesa) Ack() any {
	return map[string]any{"ResultCode": 0, "ResultDesc": "Accepted"}
}

// NormalizePhone converts common Kenyan mobile formats (07.., 01.., +254..,
// 254..) to the 2547XXXXXXXX form Daraja requires.
func NormalizePhone(phone string) (string, bool) {
	p := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(strings.TrimSpace(phone))
	p = strings.TrimPrefix(p, "+")
	if strings.HasPrefix(p, "0") {
		p = "254" + p[1:]
	}
	if !kenyanMobile.MatchString(p) {
		return "", false
	}
	return p, true
}

func withReference(callbackURL, transactionID string) string {
	u, err := url.Parse(callbackURL)
	if err != nil {
		return callbackURL
	}
	q := u.Query()
	q.Set("reference", transactionID)
	u.RawQuery = q.Encode()
	return u.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
