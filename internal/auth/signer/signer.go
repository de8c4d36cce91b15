// Package signer provides tamper-evident signing for opaque cookie values.
package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Delimiter separates the value from its signature. The signature is hex,
// so the delimiter can never appear inside it.
const Delimiter = "."

// Signer signs and verifies opaque string values with HMAC-SHA256.
type Signer struct {
	secret []byte
}

func New(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Sign returns value plus a hex HMAC-SHA256 signature, joined by Delimiter.
func (s *Signer) Sign(value string) string {
	return value + Delimiter + s.signature(value)
}

// Unsign recovers the original value from a signed token. It splits on the
// last delimiter so the value itself may contain the delimiter. Malformed or
// tampered tokens return ok=false, never an error or panic.
func (s *Signer) Unsign(token string) (string, bool) {
	idx := strings.LastIndex(token, Delimiter)
	if idx < 0 {
		return "", false
	}
	value, sig := token[:idx], token[idx+len(Delimiter):]
	if sig == "" {
		return "", false
	}
	if !hmac.Equal([]byte(sig), []byte(s.signature(value))) {
		return "", false
	}
	return value, true
}

func (s *Signer) signature(value string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))
}
