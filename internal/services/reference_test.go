package services

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var referencePattern = regexp.MustCompile(`^dep-[A-Za-z0-9_]{1,24}-[a-z2-7]{26}$`)

func TestNewAccountReference(t *testing.T) {
	tests := []struct {
		name     string
		userID   string
		wantUser string
	}{
		{"plain", "u1", "u1"},
		{"sanitized", "user@example.com", "user_example_com"},
		{"truncated", "abcdefghijklmnopqrstuvwxyz0123", "abcdefghijklmnopqrstuvwx"},
		{"empty", "", "anon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref := NewAccountReference(tt.userID)
			require.Regexp(t, referencePattern, ref)
			assert.Equal(t, "dep-"+tt.wantUser+"-", ref[:len("dep-"+tt.wantUser+"-")])
		})
	}
}

func TestNewAccountReferenceIsUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		ref := NewAccountReference("u1")
		_, dup := seen[ref]
		require.False(t, dup, "duplicate reference %s", ref)
		seen[ref] = struct{}{}
	}
}

func TestIdempotencyKey(t *testing.T) {
	assert.Equal(t, "stk-dep-u1-abc", IdempotencyKey("dep-u1-abc"))
}
