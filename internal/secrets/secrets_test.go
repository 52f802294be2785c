// File: internal/secrets/secrets_test.go
package secrets

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	fuzzheaders "github.com/AdaLogics/go-fuzz-headers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCookies = []Cookie{
	{
		Name:     "c_user",
		Value:    "100001",
		Domain:   ".facebook.com",
		Path:     "/",
		Expiry:   1767225600,
		HTTPOnly: false,
		Secure:   true,
		SameSite: "None",
	},
	{
		Name:     "xs",
		Value:    "18%3Aabcdef",
		Domain:   ".facebook.com",
		Path:     "/",
		HTTPOnly: true,
		Secure:   true,
	},
}

func sealToTemp(t *testing.T, passphrase string, cookies []Cookie) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cookies.json.encrypted")
	require.NoError(t, Seal(path, passphrase, cookies))
	return path
}

func TestSealUnlock_RoundTrip(t *testing.T) {
	path := sealToTemp(t, "correct horse", testCookies)

	got, err := Unlock(path, "correct horse")
	require.NoError(t, err)
	assert.Equal(t, testCookies, got)
}

func TestUnlock_WrongPassphrase(t *testing.T) {
	path := sealToTemp(t, "correct horse", testCookies)

	got, err := Unlock(path, "battery staple")
	assert.Nil(t, got)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestUnlock_TruncatedCiphertext(t *testing.T) {
	path := sealToTemp(t, "pw", testCookies)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var b struct {
		Salt       string `json:"s"`
		Nonce      string `json:"n"`
		Ciphertext string `json:"ct"`
	}
	require.NoError(t, json.Unmarshal(raw, &b))

	ct, err := base64.StdEncoding.DecodeString(b.Ciphertext)
	require.NoError(t, err)
	b.Ciphertext = base64.StdEncoding.EncodeToString(ct[:len(ct)/2])

	mangled, err := json.Marshal(b)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, mangled, 0o600))

	_, err = Unlock(path, "pw")
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestUnlock_MissingFile(t *testing.T) {
	_, err := Unlock(filepath.Join(t.TempDir(), "nope.encrypted"), "pw")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUnlock_MalformedPayload(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "][ definitely not json"},
		{"missing fields", `{"s": "c2FsdA=="}`},
		{"bad base64", `{"s": "!!", "n": "!!", "ct": "!!"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "blob")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o600))

			_, err := Unlock(path, "pw")
			assert.ErrorIs(t, err, ErrMalformedPayload)
		})
	}
}

func TestCookie_Usable(t *testing.T) {
	assert.True(t, Cookie{Name: "a", Value: "b", Domain: "c"}.Usable())
	assert.False(t, Cookie{Name: "a", Value: "b"}.Usable())
	assert.False(t, Cookie{Name: "a", Domain: "c"}.Usable())
	assert.False(t, Cookie{Value: "b", Domain: "c"}.Usable())
}

func TestSanitize(t *testing.T) {
	in := []Cookie{
		{Name: "keep", Value: "v", Domain: "d"},
		{Name: "drop-me"},
		{Name: "keep2", Value: "v2", Domain: "d2"},
	}
	out := Sanitize(in)
	require.Len(t, out, 2)
	assert.Equal(t, "keep", out[0].Name)
	assert.Equal(t, "keep2", out[1].Name)
}

func TestUnixSeconds_FractionalInput(t *testing.T) {
	var c Cookie
	require.NoError(t, json.Unmarshal([]byte(`{"name":"a","value":"b","domain":"c","expiry":1767225600.73}`), &c))
	assert.Equal(t, UnixSeconds(1767225600), c.Expiry)
}

// FuzzUnlock throws structured garbage at the blob decoder. The only
// acceptable outcomes are the documented error kinds; it must never panic or
// return cookies from an unauthenticated payload.
func FuzzUnlock(f *testing.F) {
	f.Add([]byte(`{"s":"c2FsdHNhbHRzYWx0c2FsdA==","n":"bm9uY2Vub25jZW5v","ct":"Y2lwaGVydGV4dA=="}`))
	f.Add([]byte(`{"descriptions":["a"]}`))
	f.Add([]byte("{"))

	f.Fuzz(func(t *testing.T, data []byte) {
		fz := fuzzheaders.NewConsumer(data)
		body, err := fz.GetBytes()
		if err != nil {
			body = data
		}

		path := filepath.Join(t.TempDir(), "blob")
		if err := os.WriteFile(path, body, 0o600); err != nil {
			t.Skip()
		}

		cookies, err := Unlock(path, "fuzz-pw")
		if err == nil {
			t.Fatalf("Unlock accepted unauthenticated payload: %v", cookies)
		}
	})
}
