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

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds the environment driven configuration for the RouteMe backend.
type Config struct {
	Port            int           `env:"PORT" envDefault:"8081"`
	Environment     string        `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"json"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`

	DatabaseURL    string        `env:"DATABASE_URL" envDefault:"postgres://localhost/routeme?sslmode=disable"`
	DBMaxOpenConns int           `env:"DB_MAX_OPEN_CONNS" envDefault:"15"`
	DBMaxIdleConns int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBConnLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`
	RedisURL       string        `env:"REDIS_URL" envDefault:"localhost:6379"`

	JWTSecret string `env:"JWT_SECRET"`
	JWTIssuer string `env:"JWT_ISSUER" envDefault:"routeme"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`

	// CallbackSecret signs inbound gateway callbacks (HMAC-SHA256).
	CallbackSecret  string `env:"PAYMENT_CALLBACK_SECRET"`
	CallbackBaseURL string `env:"PAYMENT_CALLBACK_BASE_URL" envDefault:"http://localhost:8081"`

	MPesa  MPesaConfig  `envPrefix:"MPESA_"`
	PayPal PayPalConfig `envPrefix:"PAYPAL_"`
}

// MPesaConfig configures the Daraja STK push integration.
type MPesaConfig struct {
	Enabled        bool          `env:"ENABLED" envDefault:"false"`
	BaseURL        string        `env:"BASE_URL" envDefault:"https://sandbox.safaricom.co.ke"`
	ConsumerKey    string        `env:"CONSUMER_KEY"`
	ConsumerSecret string        `env:"CONSUMER_SECRET"`
	ShortCode      string        `env:"SHORTCODE" envDefault:"174379"`
	Passkey        string        `env:"PASSKEY"`
	Timeout        time.Duration `env:"TIMEOUT" envDefault:"20s"`
}

// PayPalConfig configures the PayPal orders integration.
type PayPalConfig struct {
	Enabled      bool          `env:"ENABLED" envDefault:"false"`
	BaseURL      string        `env:"BASE_URL" envDefault:"https://api-m.sandbox.paypal.com"`
	ClientID     string        `env:"CLIENT_ID"`
	ClientSecret string        `env:"CLIENT_SECRET"`
	ReturnURL    string        `env:"RETURN_URL" envDefault:"http://localhost:3000/payments/paypal/return"`
	CancelURL    string        `env:"CANCEL_URL" envDefault:"http://localhost:3000/payments/paypal/cancel"`
	Timeout      time.Duration `env:"TIMEOUT" envDefault:"20s"`
}

// Load parses environment variables into Config.
//
// A .env file in the working directory is loaded first when present; real
// environment variables always win over it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if strings.TrimSpace(c.CallbackSecret) == "" {
		return fmt.Errorf("PAYMENT_CALLBACK_SECRET is required")
	}
	if c.MPesa.Enabled {
		if c.MPesa.ConsumerKey == "" || c.MPesa.ConsumerSecret == "" {
			return fmt.Errorf("MPESA_CONSUMER_KEY and MPESA_CONSUMER_SECRET are required when MPESA_ENABLED is true")
		}
		if c.MPesa.Passkey == "" {
			return fmt.Errorf("MPESA_PASSKEY is required when MPESA_ENABLED is true")
		}
	}
	if c.PayPal.Enabled {
		if c.PayPal.ClientID == "" || c.PayPal.ClientSecret == "" {
			return fmt.Errorf("PAYPAL_CLIENT_ID and PAYPAL_CLIENT_SECRET are required when PAYPAL_ENABLED is true")
		}
	}
	return nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// CallbackURL returns the public callback endpoint for a payment provider.
func (c *Config) CallbackURL(provider string) string {
	return strings.TrimRight(c.CallbackBaseURL, "/") + "/payments/" + provider + "/callback"
}
