package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/payhero/internal/metrics"
)

// ErrTransactionUnknown is returned by TransactionStatus when PayHero has no
// record of the reference.
var ErrTransactionUnknown = errors.New("payhero: transaction not found")

// Gateway is the outbound side of PayHero.
type Gateway interface {
	InitiateSTKPush(ctx context.Context, req STKPushRequest) (*GatewayResponse, error)
	TransactionStatus(ctx context.Context, reference string) (*GatewayResponse, error)
}

type STKPushRequest struct {
	Phone            string
	Amount           decimal.Decimal
	AccountReference string
	IdempotencyKey   string
}

// GatewayResponse keeps the raw body next to its decoded form so it can be
// stored as the provider payload unchanged.
type GatewayResponse struct {
	StatusCode int
	Body       []byte
	Payload    map[string]any
}

// PayHeroConfig holds the credentials and endpoints of the PayHero API.
type PayHeroConfig struct {
	BaseURL     string
	Username    string
	Password    string
	ChannelID   string
	CallbackURL string
	Timeout     time.Duration
}

// PayHeroClient talks to the PayHero REST API.
type PayHeroClient struct {
	cfg  PayHeroConfig
	http *http.Client
}

func NewPayHeroClient(cfg PayHeroConfig) *PayHeroClient {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &PayHeroClient{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

type stkPushPayload struct {
	Username         string            `json:"username"`
	Password         string            `json:"password"`
	ChannelID        string            `json:"channel_id"`
	Phone            string            `json:"phone"`
	Amount           json.Number       `json:"amount"`
	AccountReference string            `json:"account_reference"`
	CallbackURL      string            `json:"callback_url"`
	Metadata         map[string]string `json:"metadata"`
}

// InitiateSTKPush asks PayHero to prompt the payer's phone. Any non-2xx
// answer or a body that is not a JSON object is an error.
func (p *PayHeroClient) InitiateSTKPush(ctx context.Context, req STKPushRequest) (*GatewayResponse, error) {
	payload, err := json.Marshal(stkPushPayload{
		Username:         p.cfg.Username,
		Password:         p.cfg.Password,
		ChannelID:        p.cfg.ChannelID,
		Phone:            req.Phone,
		Amount:           json.Number(req.Amount.String()),
		AccountReference: req.AccountReference,
		CallbackURL:      p.cfg.CallbackURL,
		Metadata:         map[string]string{"payment_doc": req.AccountReference},
	})
	if err != nil {
		return nil, fmt.Errorf("payhero stk push marshal: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/stkpush", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("payhero stk push request build: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}

	return p.do(httpReq, "stkpush")
}

// TransactionStatus looks up a payment by provider request id or account
// reference.
func (p *PayHeroClient) TransactionStatus(ctx context.Context, reference string) (*GatewayResponse, error) {
	endpoint := p.cfg.BaseURL + "/transaction-status?reference=" + url.QueryEscape(reference)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("payhero status request build: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := p.do(httpReq, "transaction_status")
	if err != nil && resp != nil && resp.StatusCode == http.StatusNotFound {
		return resp, ErrTransactionUnknown
	}
	return resp, err
}

func (p *PayHeroClient) do(req *http.Request, operation string) (*GatewayResponse, error) {
	if p.cfg.Username != "" {
		req.SetBasicAuth(p.cfg.Username, p.cfg.Password)
	}

	start := time.Now()
	resp, err := p.http.Do(req)
	if err != nil {
		metrics.GatewayLatency.WithLabelValues(operation, "transport_error").Observe(time.Since(start).Seconds())
		return nil, fmt.Errorf("payhero %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	metrics.GatewayLatency.WithLabelValues(operation, strconv.Itoa(resp.StatusCode)).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("payhero %s read body: %w", operation, err)
	}

	out := &GatewayResponse{StatusCode: resp.StatusCode, Body: body}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return out, fmt.Errorf("payhero %s failed: status %d, body: %s", operation, resp.StatusCode, truncate(string(body), 512))
	}

	if err := json.Unmarshal(body, &out.Payload); err != nil || out.Payload == nil {
		return out, fmt.Errorf("payhero %s: response is not a JSON object", operation)
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
