package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"
)

const defaultTelegramAPI = "https://api.telegram.org"

// TelegramService posts deposit notifications to an admin chat.
type TelegramService struct {
	botToken    string
	adminChatID string
	apiBase     string
	http        *http.Client
}

func NewTelegramService(botToken, adminChatID string) *TelegramService {
	return &TelegramService{
		botToken:    botToken,
		adminChatID: adminChatID,
		apiBase:     defaultTelegramAPI,
		http:        &http.Client{Timeout: 10 * time.Second},
	}
}

// WithAPIBase points the service at a different Bot API host.
func (s *TelegramService) WithAPIBase(base string) *TelegramService {
	s.apiBase = strings.TrimRight(base, "/")
	return s
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// SendMessage sends an HTML message to chatID. A missing bot token is not an error.
func (s *TelegramService) SendMessage(chatID, text string) error {
	if s.botToken == "" {
		log.Debug("[Telegram] bot token not configured")
		return nil
	}

	body, err := json.Marshal(telegramMessage{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "HTML",
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.apiBase, s.botToken)
	resp, err := s.http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}
	return nil
}

// SendToAdmin sends a message to the admin chat, if one is configured.
func (s *TelegramService) SendToAdmin(text string) error {
	if s.adminChatID == "" {
		return nil
	}
	return s.SendMessage(s.adminChatID, text)
}

// DepositNotification describes one credited deposit.
type DepositNotification struct {
	AccountReference string
	UserID           string
	Phone            string
	Amount           decimal.Decimal
	Balance          decimal.Decimal
}

// FormatAmount renders an amount with thousand separators and two decimals.
func FormatAmount(amount decimal.Decimal, currency string) string {
	if currency == "" {
		currency = "KES"
	}
	fixed := amount.StringFixed(2)
	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign, fixed = "-", fixed[1:]
	}
	whole, frac, _ := strings.Cut(fixed, ".")

	var result strings.Builder
	for i, digit := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			result.WriteByte(',')
		}
		result.WriteRune(digit)
	}
	return sign + result.String() + "." + frac + " " + currency
}

func (s *TelegramService) NotifyDepositCredited(n DepositNotification) error {
	message := fmt.Sprintf(`<b>✅ DEPOSIT RECEIVED</b>
<b>📋 Reference:</b> %s
<b>👤 User:</b> %s
<b>📞 Phone:</b> %s
<b>💰 Amount:</b> %s
<b>🏦 Balance:</b> %s
━━━━━━━━━━━━━━━━━━`,
		html.EscapeString(n.AccountReference),
		html.EscapeString(n.UserID),
		html.EscapeString(n.Phone),
		FormatAmount(n.Amount, ""),
		FormatAmount(n.Balance, ""),
	)
	return s.SendToAdmin(message)
}
