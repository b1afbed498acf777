package services

import (
	"strconv"
	"strings"
)

// FieldPath addresses a value inside a decoded JSON object, one key per level.
type FieldPath []string

func (p FieldPath) String() string {
	return strings.Join(p, ".")
}

// PayHero has not been consistent about field names across API versions, so
// every value is looked up through an ordered list of candidates.
var (
	callbackReferencePaths = []FieldPath{
		{"account_reference"},
		{"merchant_ref"},
		{"metadata", "payment_doc"},
		{"response", "ExternalReference"},
		{"response", "external_reference"},
	}
	callbackStatusPaths = []FieldPath{
		{"status"},
		{"result"},
		{"payment_status"},
		{"response", "Status"},
		{"response", "status"},
	}
	callbackRequestIDPaths = []FieldPath{
		{"request_id"},
		{"id"},
		{"response", "CheckoutRequestID"},
	}

	ackRequestIDPaths = []FieldPath{
		{"request_id"},
		{"id"},
		{"reference"},
		{"CheckoutRequestID"},
	}

	transactionStatusPaths = []FieldPath{
		{"status"},
		{"Status"},
		{"payment_status"},
		{"response", "Status"},
	}
)

// LookupString returns the value at the first path that resolves to a
// non-empty string or a number. Booleans, objects and nulls never match.
func LookupString(payload map[string]any, paths []FieldPath) (string, bool) {
	for _, path := range paths {
		if value, ok := lookup(payload, path); ok {
			return value, true
		}
	}
	return "", false
}

func lookup(payload map[string]any, path FieldPath) (string, bool) {
	if len(path) == 0 {
		return "", false
	}
	var current any = payload
	for _, key := range path {
		obj, ok := current.(map[string]any)
		if !ok {
			return "", false
		}
		current, ok = obj[key]
		if !ok {
			return "", false
		}
	}

	switch v := current.(type) {
	case string:
		v = strings.TrimSpace(v)
		return v, v != ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	}
	return "", false
}

var (
	successStatuses = map[string]struct{}{
		"success":   {},
		"paid":      {},
		"completed": {},
	}
	inconclusiveStatuses = map[string]struct{}{
		"":           {},
		"queued":     {},
		"pending":    {},
		"processing": {},
		"initiated":  {},
	}
)

// IsSuccessStatus reports whether a provider status means the money arrived.
func IsSuccessStatus(status string) bool {
	_, ok := successStatuses[strings.ToLower(strings.TrimSpace(status))]
	return ok
}

// IsInconclusiveStatus reports whether a provider status says the payment is
// still in flight.
func IsInconclusiveStatus(status string) bool {
	_, ok := inconclusiveStatuses[strings.ToLower(strings.TrimSpace(status))]
	return ok
}
