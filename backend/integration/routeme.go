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

// Package integration assembles the RouteMe services and mounts their HTTP
// routes on a router, either standalone or embedded in a host application.
package integration

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/routeme/routeme/backend/config"
	"github.com/routeme/routeme/backend/gateway"
	"github.com/routeme/routeme/backend/handlers"
	"github.com/routeme/routeme/backend/metrics"
	"github.com/routeme/routeme/backend/middleware"
	"github.com/routeme/routeme/backend/services"
	"github.com/routeme/routeme/backend/storage"
	redisstore "github.com/routeme/routeme/backend/storage/redis"
)

// Config holds the collaborators the app is built from.
type Config struct {
	Store storage.Store
	// Redis is optional; without it realtime events and unread counts are off.
	Redis *redis.Client

	JWTSecret      string
	JWTIssuer      string
	CallbackSecret string
	CallbackURL    func(provider string) string

	Gateways []gateway.Gateway
	Parsers  []gateway.CallbackParser

	Logger zerolog.Logger
}

type App struct {
	Conversations *services.ConversationService
	Payments      *services.PaymentService
	Callbacks     *services.CallbackService

	messageHandler  *handlers.MessageHandler
	paymentHandler  *handlers.PaymentHandler
	callbackHandler *handlers.CallbackHandler
	healthHandler   *handlers.HealthHandler

	jwtSecret string
	jwtIssuer string
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, &ValidationError{Message: "store is not configured"}
	}
	if cfg.JWTSecret == "" {
		return nil, &ValidationError{Message: "JWT secret is not configured"}
	}
	if cfg.CallbackSecret == "" {
		return nil, &ValidationError{Message: "callback secret is not configured"}
	}
	if cfg.CallbackURL == nil {
		return nil, &ValidationError{Message: "callback URL is not configured"}
	}

	var notifier services.Notifier = services.NopNotifier{}
	var unread handlers.UnreadCounter
	checks := map[string]handlers.Pinger{"database": cfg.Store}
	if cfg.Redis != nil {
		rn := redisstore.NewNotifier(cfg.Redis)
		notifier, unread = rn, rn
		checks["redis"] = rn
	}

	settler := services.NewSettler(cfg.Store, notifier, cfg.Logger)
	app := &App{
		Conversations: services.NewConversationService(cfg.Store, notifier, cfg.Logger),
		Payments:      services.NewPaymentService(cfg.Store, cfg.Gateways, cfg.CallbackURL, settler, cfg.Logger),
		Callbacks:     services.NewCallbackService(cfg.Store, cfg.Parsers, cfg.CallbackSecret, settler, cfg.Logger),
		jwtSecret:     cfg.JWTSecret,
		jwtIssuer:     cfg.JWTIssuer,
	}
	app.messageHandler = handlers.NewMessageHandler(app.Conversations, unread)
	app.paymentHandler = handlers.NewPaymentHandler(app.Payments)
	app.callbackHandler = handlers.NewCallbackHandler(app.Callbacks)
	app.healthHandler = handlers.NewHealthHandler(checks)
	return app, nil
}

// RegisterRoutes adds RouteMe routes to an existing router.
// If authMiddleware is nil, it will use the built-in JWT validation
func (a *App) RegisterRoutes(router *mux.Router, authMiddleware func(http.Handler) http.Handler) {
	api := router.PathPrefix("/api").Subrouter()
	if authMiddleware != nil {
		api.Use(authMiddleware)
	} else {
		api.Use(middleware.NewAuthMiddleware(a.jwtSecret, a.jwtIssuer))
	}

	// Messaging
	api.HandleFunc("/messages", a.messageHandler.SendMessage).Methods("POST", "OPTIONS")
	api.HandleFunc("/messages", a.messageHandler.GetMessages).Methods("GET", "OPTIONS")
	api.HandleFunc("/messages/unread", a.messageHandler.UnreadCount).Methods("GET", "OPTIONS")
	api.HandleFunc("/messages/{messageId}/read", a.messageHandler.MarkRead).Methods("POST", "OPTIONS")
	api.HandleFunc("/conversations", a.messageHandler.ListConversations).Methods("GET", "OPTIONS")

	// Payments. Static paths are registered before /payments/{provider}.
	api.HandleFunc("/payments/paypal/capture", a.paymentHandler.CapturePayPal).Methods("POST", "OPTIONS")
	api.HandleFunc("/payments/transactions/{id}", a.paymentHandler.GetTransaction).Methods("GET", "OPTIONS")
	api.HandleFunc("/payments/transactions/{id}/cancel", a.paymentHandler.CancelTransaction).Methods("POST", "OPTIONS")
	api.HandleFunc("/payments/{provider}", a.paymentHandler.Initiate).Methods("POST", "OPTIONS")

	// Gateway callbacks authenticate by signature, not JWT.
	router.HandleFunc("/payments/{provider}/callback", a.callbackHandler.Handle).Methods("POST")

	router.HandleFunc("/health", a.healthHandler.Health).Methods("GET")
	router.Handle("/metrics", metrics.Handler()).Methods("GET")
}

// GatewaysFromConfig builds the enabled payment gateways. Each gateway also
// parses its own callbacks.
func GatewaysFromConfig(cfg *config.Config) ([]gateway.Gateway, []gateway.CallbackParser) {
	var gateways []gateway.Gateway
	var parsers []gateway.CallbackParser
	if cfg.MPesa.Enabled {
		m := gateway.NewMPesa(gateway.MPesaConfig{
			BaseURL:        cfg.MPesa.BaseURL,
			ConsumerKey:    cfg.MPesa.ConsumerKey,
			ConsumerSecret: cfg.MPesa.ConsumerSecret,
			ShortCode:      cfg.MPesa.ShortCode,
			Passkey:        cfg.MPesa.Passkey,
			Timeout:        cfg.MPesa.Timeout,
		})
		gateways = append(gateways, m)
		parsers = append(parsers, m)
	}
	if cfg.PayPal.Enabled {
		p := gateway.NewPayPal(gateway.PayPalConfig{
			BaseURL:      cfg.PayPal.BaseURL,
			ClientID:     cfg.PayPal.ClientID,
			ClientSecret: cfg.PayPal.ClientSecret,
			ReturnURL:    cfg.PayPal.ReturnURL,
			CancelURL:    cfg.PayPal.CancelURL,
			Timeout:      cfg.PayPal.Timeout,
		})
		gateways = append(gateways, p)
		parsers = append(parsers, p)
	}
	return gateways, parsers
}
