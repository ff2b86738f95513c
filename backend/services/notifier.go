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

	"github.com/routeme/routeme/backend/models"
)

// Notifier delivers realtime side effects. Every call is best effort: callers
// log failures and carry on.
type Notifier interface {
	MessageSent(ctx context.Context, recipientID string, msg models.EncryptedMessage) error
	MessageRead(ctx context.Context, userID, messageID string) error
	Notify(ctx context.Context, n models.Notification) error
}

// NopNotifier drops every event.
type NopNotifier struct{}

func (NopNotifier) MessageSent(context.Context, string, models.EncryptedMessage) error { return nil }
func (NopNotifier) MessageRead(context.Context, string, string) error                  { return nil }
func (NopNotifier) Notify(context.Context, models.Notification) error                  { return nil }
