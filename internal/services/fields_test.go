package services

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, raw string) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &payload))
	return payload
}

func TestLookupString(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		paths   []FieldPath
		want    string
		found   bool
	}{
		{"top level", `{"account_reference":"dep-a"}`, callbackReferencePaths, "dep-a", true},
		{"first match wins", `{"account_reference":"dep-a","merchant_ref":"dep-b"}`, callbackReferencePaths, "dep-a", true},
		{"falls through missing", `{"merchant_ref":"dep-b"}`, callbackReferencePaths, "dep-b", true},
		{"nested metadata", `{"metadata":{"payment_doc":"dep-c"}}`, callbackReferencePaths, "dep-c", true},
		{"nested response", `{"response":{"ExternalReference":"dep-d"}}`, callbackReferencePaths, "dep-d", true},
		{"empty string skipped", `{"account_reference":"  ","merchant_ref":"dep-e"}`, callbackReferencePaths, "dep-e", true},
		{"numbers match", `{"id":12345}`, callbackRequestIDPaths, "12345", true},
		{"bool skipped", `{"status":true,"response":{"Status":"Success"}}`, callbackStatusPaths, "Success", true},
		{"object is not a value", `{"metadata":"dep-x"}`, []FieldPath{{"metadata", "payment_doc"}}, "", false},
		{"null skipped", `{"account_reference":null}`, callbackReferencePaths, "", false},
		{"nothing", `{}`, callbackStatusPaths, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := LookupString(decode(t, tt.payload), tt.paths)
			assert.Equal(t, tt.found, found)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFieldPathString(t *testing.T) {
	assert.Equal(t, "response.Status", FieldPath{"response", "Status"}.String())
}

func TestStatusClassification(t *testing.T) {
	for _, s := range []string{"success", "SUCCESS", " Paid ", "completed"} {
		assert.True(t, IsSuccessStatus(s), s)
	}
	for _, s := range []string{"failed", "", "pending", "successful", "cancelled"} {
		assert.False(t, IsSuccessStatus(s), s)
	}

	for _, s := range []string{"", "queued", "Pending", "processing"} {
		assert.True(t, IsInconclusiveStatus(s), s)
	}
	for _, s := range []string{"failed", "success", "cancelled"} {
		assert.False(t, IsInconclusiveStatus(s), s)
	}
}
