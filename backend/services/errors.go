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
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrorInvalidInput      ErrorCode = "INVALID_INPUT"
	ErrorNotFound          ErrorCode = "NOT_FOUND"
	ErrorUnauthorized      ErrorCode = "UNAUTHORIZED"
	ErrorUpstream          ErrorCode = "UPSTREAM_ERROR"
	ErrorSecurityViolation ErrorCode = "SECURITY_VIOLATION"
	ErrorInternal          ErrorCode = "INTERNAL_ERROR"
)

var (
	ErrInvalidMessage           = errors.New("invalid message")
	ErrInvalidInput             = errors.New("invalid input")
	ErrListingNotFound          = errors.New("listing not found")
	ErrConversationNotFound     = errors.New("conversation not found")
	ErrMessageNotFound          = errors.New("message not found")
	ErrUnauthorized             = errors.New("unauthorized")
	ErrConversationLookupFailed = errors.New("conversation lookup failed")
	ErrGatewayAuthFailed        = errors.New("gateway authentication failed")
	ErrGatewayRequestFailed     = errors.New("gateway request failed")
	ErrInvalidSignature         = errors.New("invalid callback signature")
	ErrMalformedCallback        = errors.New("malformed callback")
	ErrTransactionNotFound      = errors.New("transaction not found")
	ErrUnsupportedProvider      = errors.New("unsupported payment provider")
)

// Error carries a stable code for the HTTP layer. Err chains the sentinel and,
// when present, the underlying cause, so errors.Is matches either.
type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("services: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("services: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, sentinel error, reason string, cause error) *Error {
	err := sentinel
	if cause != nil {
		err = fmt.Errorf("%w: %w", sentinel, cause)
	}
	return &Error{Code: code, Reason: reason, Err: err}
}

// CodeOf returns the code of the first *Error in err's chain, or
// ErrorInternal when there is none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrorInternal
}

// ReasonOf returns the client-safe reason of the first *Error in err's chain.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return "internal error"
}
