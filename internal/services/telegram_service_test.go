package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatAmount(t *testing.T) {
	tests := map[string]string{
		"0":          "0.00 KES",
		"100":        "100.00 KES",
		"1234.5":     "1,234.50 KES",
		"1234567.89": "1,234,567.89 KES",
		"-1000":      "-1,000.00 KES",
	}
	for in, want := range tests {
		assert.Equal(t, want, FormatAmount(decimal.RequireFromString(in), ""), in)
	}
	assert.Equal(t, "5.00 USD", FormatAmount(decimal.NewFromInt(5), "USD"))
}

func TestNotifyDepositCredited(t *testing.T) {
	var got telegramMessage
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	svc := NewTelegramService("token123", "-100200").WithAPIBase(srv.URL)
	err := svc.NotifyDepositCredited(DepositNotification{
		AccountReference: "dep-u1-a",
		UserID:           "<u1>",
		Phone:            "0712345678",
		Amount:           decimal.NewFromInt(1500),
		Balance:          decimal.NewFromInt(2500),
	})
	require.NoError(t, err)

	assert.Equal(t, "/bottoken123/sendMessage", path)
	assert.Equal(t, "-100200", got.ChatID)
	assert.Equal(t, "HTML", got.ParseMode)
	assert.True(t, strings.Contains(got.Text, "1,500.00 KES"))
	assert.True(t, strings.Contains(got.Text, "&lt;u1&gt;"))
}

func TestTelegramUnconfiguredIsNoop(t *testing.T) {
	assert.NoError(t, NewTelegramService("", "-1").SendToAdmin("hi"))
	assert.NoError(t, NewTelegramService("token", "").NotifyDepositCredited(DepositNotification{}))
}

func TestTelegramErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	err := NewTelegramService("token", "-1").WithAPIBase(srv.URL).SendToAdmin("hi")
	assert.Error(t, err)
}
