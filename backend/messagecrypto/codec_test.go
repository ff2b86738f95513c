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

package messagecrypto

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	for _, pt := range []string{"", "Is this available?", "Habari! Bei ni ngapi? 🚗", string(make([]byte, 1000))} {
		sealed, err := Encrypt(pt, key)
		require.NoError(t, err)
		got, err := Decrypt(sealed.Ciphertext, sealed.IV, key)
		require.NoError(t, err)
		require.Equal(t, pt, got)
	}
}

func TestEncrypt_FreshIVPerMessage(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	a, err := Encrypt("same", key)
	require.NoError(t, err)
	b, err := Encrypt("same", key)
	require.NoError(t, err)
	require.NotEqual(t, a.IV, b.IV)
	require.NotEqual(t, a.Ciphertext, b.Ciphertext)
}

func TestExportImport(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	exported := ExportKey(key)
	imported, err := ImportKey(exported)
	require.NoError(t, err)
	require.True(t, key.Equal(imported))

	sealed, err := Encrypt("hello", key)
	require.NoError(t, err)
	got, err := Decrypt(sealed.Ciphertext, sealed.IV, imported)
	require.NoError(t, err)
	require.Equal(t, "hello", got)
}

func TestImportKey_Invalid(t *testing.T) {
	_, err := ImportKey("not base64!")
	require.ErrorIs(t, err, ErrInvalidKey)

	_, err = ImportKey(base64.StdEncoding.EncodeToString([]byte("short")))
	require.ErrorIs(t, err, ErrInvalidKey)
}

func TestDecrypt_FailsClosed(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	other, err := GenerateKey()
	require.NoError(t, err)

	sealed, err := Encrypt("Yes, still available", key)
	require.NoError(t, err)

	flip := func(s string) string {
		b, err := base64.StdEncoding.DecodeString(s)
		require.NoError(t, err)
		b[0] ^= 0xff
		return base64.StdEncoding.EncodeToString(b)
	}

	cases := map[string]struct {
		ct, iv string
		key    Key
	}{
		"wrong key":           {sealed.Ciphertext, sealed.IV, other},
		"tampered ciphertext": {flip(sealed.Ciphertext), sealed.IV, key},
		"tampered iv":         {sealed.Ciphertext, flip(sealed.IV), key},
		"bad base64":          {"%%%", sealed.IV, key},
		"short iv":            {sealed.Ciphertext, base64.StdEncoding.EncodeToString([]byte("x")), key},
		"zero key":            {sealed.Ciphertext, sealed.IV, Key{}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			pt, err := Decrypt(tc.ct, tc.iv, tc.key)
			require.ErrorIs(t, err, ErrDecryptionFailed)
			require.Empty(t, pt)
		})
	}
}

func TestGenerateKey_Distinct(t *testing.T) {
	a, err := GenerateKey()
	require.NoError(t, err)
	b, err := GenerateKey()
	require.NoError(t, err)
	require.False(t, a.Equal(b))
	require.NotEqual(t, ExportKey(a), ExportKey(b))
}
