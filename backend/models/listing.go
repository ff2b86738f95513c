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

package models

import "github.com/shopspring/decimal"

// Listing is the subset of the externally owned listings table this service reads.
type Listing struct {
	ID     string          `json:"id" db:"id"`
	UserID string          `json:"userId" db:"user_id"`
	Title  string          `json:"title" db:"title"`
	Price  decimal.Decimal `json:"price" db:"price"`
}
