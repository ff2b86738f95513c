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
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/routeme/routeme/backend/services"
)

const (
	SignatureHeader = "X-Callback-Signature"

	maxCallbackBytes = 1 << 20
)

type Callbacks interface {
	HandleCallback(ctx context.Context, provider string, body []byte, signature, reference string) (any, error)
}

type CallbackHandler struct {
	callbacks Callbacks
}

func NewCallbackHandler(callbacks Callbacks) *CallbackHandler {
	return &CallbackHandler{callbacks: callbacks}
}

// Handle serves POST /payments/{provider}/callback. The signature is computed
// over the exact bytes received, so the body is read raw and never re-encoded.
func (h *CallbackHandler) Handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCallbackBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large", Code: string(services.ErrorInvalidInput)})
			return
		}
		writeBadRequest(w, "could not read body")
		return
	}

	ack, err := h.callbacks.HandleCallback(r.Context(), mux.Vars(r)["provider"], body,
		r.Header.Get(SignatureHeader), r.URL.Query().Get("reference"))
	if err != nil {
		writeError(w, r, "payment_callback", err)
		return
	}
	writeJSON(w, http.StatusOK, ack)
}
