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

package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter(&buf, "info", "json")
	require.NoError(t, err)

	log.Debug().Msg("hidden")
	log.Info().Str("component", "test").Msg("visible")

	out := buf.String()
	require.NotContains(t, out, "hidden")
	require.Contains(t, out, `"component":"test"`)
	require.Contains(t, out, `"message":"visible"`)
}

func TestNewWithWriter_BadInput(t *testing.T) {
	_, err := NewWithWriter(&bytes.Buffer{}, "loud", "json")
	require.Error(t, err)

	_, err = NewWithWriter(&bytes.Buffer{}, "info", "xml")
	require.Error(t, err)
}
