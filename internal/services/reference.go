package services

import (
	"encoding/base32"
	"strings"

	"github.com/google/uuid"
)

const maxReferenceUserPart = 24

var referenceEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewAccountReference returns a deposit reference of the form
// dep-<user>-<random>, where the random part encodes a v4 UUID.
func NewAccountReference(userID string) string {
	id := uuid.New()
	return "dep-" + referenceUserPart(userID) + "-" + strings.ToLower(referenceEncoding.EncodeToString(id[:]))
}

// IdempotencyKey is sent with every STK push for the given reference so that
// a retried request is not charged twice.
func IdempotencyKey(accountRef string) string {
	return "stk-" + accountRef
}

func referenceUserPart(userID string) string {
	var b strings.Builder
	for _, r := range userID {
		if b.Len() >= maxReferenceUserPart {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "anon"
	}
	return b.String()
}
