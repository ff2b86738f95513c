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
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/routeme/routeme/backend/middleware"
	"github.com/routeme/routeme/backend/services"
)

const maxBodyBytes = 64 << 10

var validate = validator.New(validator.WithRequiredStructEnabled())

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg, Code: string(services.ErrorInvalidInput)})
}

// writeError maps a service error to its HTTP status. Unauthorized is
// reported exactly like not-found so callers cannot test for existence.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	code := services.CodeOf(err)
	reason := services.ReasonOf(err)
	log := zerolog.Ctx(r.Context())

	var status int
	switch code {
	case services.ErrorInvalidInput:
		status = http.StatusBadRequest
	case services.ErrorNotFound, services.ErrorUnauthorized:
		status = http.StatusNotFound
		code = services.ErrorNotFound
	case services.ErrorSecurityViolation:
		status = http.StatusUnauthorized
	case services.ErrorUpstream:
		status = http.StatusBadGateway
	default:
		status = http.StatusInternalServerError
		reason = "internal error"
	}

	event := log.Debug()
	if status >= http.StatusInternalServerError {
		event = log.Error()
	}
	event.Err(err).Str("op", op).Int("status", status).Msg("request failed")

	writeJSON(w, status, errorResponse{Error: reason, Code: string(code)})
}

// decodeBody decodes and validates a JSON request body into dst.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large", Code: string(services.ErrorInvalidInput)})
		case errors.Is(err, io.EOF):
			writeBadRequest(w, "request body is empty")
		default:
			writeBadRequest(w, "invalid request body")
		}
		return false
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			writeBadRequest(w, "invalid field: "+verrs[0].Field())
			return false
		}
		writeBadRequest(w, "invalid request body")
		return false
	}
	return true
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized", Code: "UNAUTHENTICATED"})
		return "", false
	}
	return userID, true
}
