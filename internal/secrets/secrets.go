// File: internal/secrets/secrets.go

// Package secrets stores the browser session as an AES-GCM encrypted cookie
// blob on disk. The blob is a JSON object {s, n, ct} holding base64-encoded
// salt, nonce and ciphertext; the key is derived from a passphrase with
// PBKDF2-SHA256. Decryption fails closed: a wrong passphrase or a truncated
// ciphertext yields ErrDecryptionFailed, never partial plaintext.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/crypto/pbkdf2"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Key derivation parameters. Changing these invalidates existing blobs.
const (
	pbkdf2Iterations = 200_000
	keyLength        = 32
	saltLength       = 16
)

var (
	// ErrNotFound indicates the blob file does not exist.
	ErrNotFound = errors.New("secrets: blob not found")
	// ErrMalformedPayload indicates the blob is not valid JSON or is missing
	// one of its required fields.
	ErrMalformedPayload = errors.New("secrets: malformed payload")
	// ErrDecryptionFailed indicates the authenticated decryption rejected the
	// ciphertext (wrong passphrase or corruption).
	ErrDecryptionFailed = errors.New("secrets: decryption failed")
)

// UnixSeconds is an epoch-second timestamp that tolerates fractional JSON
// numbers; exported cookie dumps occasionally carry float expiries.
type UnixSeconds int64

func (u *UnixSeconds) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == "" {
		*u = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid expiry %q: %w", s, err)
	}
	*u = UnixSeconds(int64(f))
	return nil
}

func (u UnixSeconds) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(int64(u), 10)), nil
}

// Cookie is one session record in the shape the browser driver consumes.
// Only the keys below survive sanitization; anything else an exporter adds
// is dropped at decode time.
type Cookie struct {
	Name     string      `json:"name"`
	Value    string      `json:"value"`
	Domain   string      `json:"domain"`
	Path     string      `json:"path,omitempty"`
	Expiry   UnixSeconds `json:"expiry,omitempty"`
	HTTPOnly bool        `json:"httpOnly,omitempty"`
	Secure   bool        `json:"secure,omitempty"`
	SameSite string      `json:"sameSite,omitempty"`
}

// Usable reports whether the record carries the minimum fields the driver
// requires to set it.
func (c Cookie) Usable() bool {
	return c.Domain != "" && c.Name != "" && c.Value != ""
}

// blob is the on-disk envelope.
type blob struct {
	Salt       string `json:"s"`
	Nonce      string `json:"n"`
	Ciphertext string `json:"ct"`
}

func deriveKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iterations, keyLength, sha256.New)
}

// Unlock reads and decrypts the blob at path, returning the session cookies.
// It has no side effects besides reading the file.
func Unlock(path, passphrase string) ([]Cookie, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("secrets: reading blob: %w", err)
	}

	var b blob
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if b.Salt == "" || b.Nonce == "" || b.Ciphertext == "" {
		return nil, fmt.Errorf("%w: missing required fields", ErrMalformedPayload)
	}

	salt, err := base64.StdEncoding.DecodeString(b.Salt)
	if err != nil {
		return nil, fmt.Errorf("%w: bad salt encoding", ErrMalformedPayload)
	}
	nonce, err := base64.StdEncoding.DecodeString(b.Nonce)
	if err != nil {
		return nil, fmt.Errorf("%w: bad nonce encoding", ErrMalformedPayload)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(b.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: bad ciphertext encoding", ErrMalformedPayload)
	}

	aead, err := newAEAD(passphrase, salt)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("%w: nonce length %d", ErrDecryptionFailed, len(nonce))
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		// GCM tag mismatch: wrong passphrase or corrupted ciphertext.
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	var cookies []Cookie
	if err := json.Unmarshal(plaintext, &cookies); err != nil {
		return nil, fmt.Errorf("%w: plaintext is not a cookie list", ErrMalformedPayload)
	}
	return cookies, nil
}

// Seal encrypts the cookies under the passphrase and writes the blob to path.
// A fresh salt and nonce are generated on every call.
func Seal(path, passphrase string, cookies []Cookie) error {
	plaintext, err := json.Marshal(cookies)
	if err != nil {
		return fmt.Errorf("secrets: encoding cookies: %w", err)
	}

	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("secrets: generating salt: %w", err)
	}

	aead, err := newAEAD(passphrase, salt)
	if err != nil {
		return err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("secrets: generating nonce: %w", err)
	}

	b := blob{
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(aead.Seal(nil, nonce, plaintext, nil)),
	}
	raw, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("secrets: encoding blob: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("secrets: writing blob: %w", err)
	}
	return nil
}

// Sanitize filters the list down to usable records, preserving order.
func Sanitize(cookies []Cookie) []Cookie {
	usable := make([]Cookie, 0, len(cookies))
	for _, c := range cookies {
		if c.Usable() {
			usable = append(usable, c)
		}
	}
	return usable
}

func newAEAD(passphrase string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("secrets: cipher init: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secrets: gcm init: %w", err)
	}
	return aead, nil
}
