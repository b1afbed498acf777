package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureHeader carries the hex HMAC-SHA256 of the callback body.
const SignatureHeader = "X-Payhero-Signature"

// SignatureVerifier checks that a callback body was signed with the shared
// webhook secret. Without a secret every body is rejected.
type SignatureVerifier struct {
	secret []byte
}

func NewSignatureVerifier(secret string) *SignatureVerifier {
	return &SignatureVerifier{secret: []byte(secret)}
}

// Configured reports whether a webhook secret is set.
func (v *SignatureVerifier) Configured() bool {
	return len(v.secret) > 0
}

// Sign returns the lower-case hex signature of body.
func (v *SignatureVerifier) Sign(body []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (v *SignatureVerifier) Verify(body []byte, header string) bool {
	if !v.Configured() {
		return false
	}
	sig := strings.ToLower(strings.TrimSpace(header))
	sig = strings.TrimPrefix(sig, "sha256=")
	if sig == "" {
		return false
	}
	return hmac.Equal([]byte(v.Sign(body)), []byte(sig))
}
