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
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/routeme/routeme/backend/gateway"
	"github.com/routeme/routeme/backend/models"
)

var testLogger = zerolog.Nop()

type recordingNotifier struct {
	mu    sync.Mutex
	sent  []models.EncryptedMessage
	read  []string
	notes []models.Notification
	err   error
}

func (n *recordingNotifier) MessageSent(_ context.Context, _ string, msg models.EncryptedMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return n.err
}

func (n *recordingNotifier) MessageRead(_ context.Context, _ string, messageID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.read = append(n.read, messageID)
	return n.err
}

func (n *recordingNotifier) Notify(_ context.Context, note models.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, note)
	return n.err
}

// fakeGateway is a scriptable gateway.Gateway and gateway.Capturer.
type fakeGateway struct {
	method     models.PaymentMethod
	authErr    error
	resp       *gateway.PaymentResponse
	initErr    error
	capture    *gateway.CaptureResult
	captureErr error

	requests []gateway.PaymentRequest
	captures []string
}

func (g *fakeGateway) Method() models.PaymentMethod { return g.method }

func (g *fakeGateway) Authenticate(context.Context) (string, error) {
	if g.authErr != nil {
		return "", g.authErr
	}
	return "token", nil
}

func (g *fakeGateway) Initiate(_ context.Context, _ string, req gateway.PaymentRequest) (*gateway.PaymentResponse, error) {
	g.requests = append(g.requests, req)
	if g.initErr != nil {
		return nil, g.initErr
	}
	return g.resp, nil
}

func (g *fakeGateway) Capture(_ context.Context, _ string, orderID string) (*gateway.CaptureResult, error) {
	g.captures = append(g.captures, orderID)
	if g.captureErr != nil {
		return nil, g.captureErr
	}
	return g.capture, nil
}

func callbackURL(provider string) string {
	return "https://api.routeme.test/payments/" + provider + "/callback"
}

func mustDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
