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
	"net/http"

	"github.com/gorilla/mux"

	"github.com/routeme/routeme/backend/models"
)

type Conversations interface {
	SendMessage(ctx context.Context, senderID, listingID, recipientID, content string) (string, error)
	GetMessages(ctx context.Context, requesterID, conversationID string) ([]models.Message, error)
	ListConversations(ctx context.Context, userID string) ([]models.Conversation, error)
	MarkRead(ctx context.Context, requesterID, messageID string) error
}

type UnreadCounter interface {
	UnreadCount(ctx context.Context, userID string) (int64, error)
}

type MessageHandler struct {
	conversations Conversations
	unread        UnreadCounter
}

func NewMessageHandler(conversations Conversations, unread UnreadCounter) *MessageHandler {
	return &MessageHandler{conversations: conversations, unread: unread}
}

type sendMessageRequest struct {
	ListingID   string `json:"listingId" validate:"required"`
	RecipientID string `json:"recipientId" validate:"required"`
	Content     string `json:"content" validate:"required"`
}

// SendMessage handles POST /api/messages
func (h *MessageHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req sendMessageRequest
	if !decodeBody(w, r, &req) {
		return
	}

	messageID, err := h.conversations.SendMessage(r.Context(), userID, req.ListingID, req.RecipientID, req.Content)
	if err != nil {
		writeError(w, r, "send_message", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success":   true,
		"messageId": messageID,
	})
}

// GetMessages handles GET /api/messages?conversationId=
func (h *MessageHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	conversationID := r.URL.Query().Get("conversationId")
	if conversationID == "" {
		writeBadRequest(w, "conversationId is required")
		return
	}

	messages, err := h.conversations.GetMessages(r.Context(), userID, conversationID)
	if err != nil {
		writeError(w, r, "get_messages", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func (h *MessageHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	convs, err := h.conversations.ListConversations(r.Context(), userID)
	if err != nil {
		writeError(w, r, "list_conversations", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": convs})
}

func (h *MessageHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := h.conversations.MarkRead(r.Context(), userID, mux.Vars(r)["messageId"]); err != nil {
		writeError(w, r, "mark_read", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// UnreadCount handles GET /api/messages/unread
func (h *MessageHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var count int64
	if h.unread != nil {
		n, err := h.unread.UnreadCount(r.Context(), userID)
		if err != nil {
			writeJSON(w, http.StatusBadGateway, errorResponse{Error: "unread count unavailable", Code: "UPSTREAM_ERROR"})
			return
		}
		count = n
	}
	writeJSON(w, http.StatusOK, map[string]int64{"unread": count})
}
