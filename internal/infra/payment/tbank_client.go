package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"course-billing/internal/domain/ports/adapter"
	"course-billing/internal/infra/metrics"
)

// ProviderError is the unified failure for any provider call: non-2xx HTTP,
// an envelope with Success=false, or a non-zero error code all end up here.
type ProviderError struct {
	Op      string
	Code    string
	Message string
	Details string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s failed: code=%s %s", e.Op, e.Code, e.Message)
}

const (
	defaultBaseURL = "https://securepay.tinkoff.ru/v2"

	epInit     = "/Init"
	epGetQr    = "/GetQr"
	epGetState = "/GetState"
	epCancel   = "/Cancel"
)

// dueDateLayout is the provider's expected timestamp format with an explicit
// UTC offset.
const dueDateLayout = "2006-01-02T15:04:05-07:00"

var _ adapter.PaymentProvider = (*TBankClient)(nil)

// TBankClient implements the PaymentProvider port against the T-Bank acquiring
// API. Every request body carries a Token computed by the signature engine.
// The client never retries and never logs the signing secret or tokens.
type TBankClient struct {
	terminalKey     string
	secret          string
	baseURL         string
	successURL      string
	failURL         string
	notificationURL string
	client          *http.Client
	log             *zerolog.Logger
}

type TBankOptions struct {
	TerminalKey     string
	Secret          string
	BaseURL         string
	SuccessURL      string
	FailURL         string
	NotificationURL string
	Timeout         time.Duration
}

func NewTBankClient(opts TBankOptions, logger *zerolog.Logger) (*TBankClient, error) {
	if opts.TerminalKey == "" || opts.Secret == "" {
		return nil, fmt.Errorf("tbank: terminal key and secret are required")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	return &TBankClient{
		terminalKey:     opts.TerminalKey,
		secret:          opts.Secret,
		baseURL:         opts.BaseURL,
		successURL:      opts.SuccessURL,
		failURL:         opts.FailURL,
		notificationURL: opts.NotificationURL,
		client:          &http.Client{Timeout: opts.Timeout},
		log:             logger,
	}, nil
}

// Secret exposes the signing secret to the webhook verifier; it is the single
// place the value leaves this package.
func (c *TBankClient) Secret() string { return c.secret }

type envelope struct {
	Success    bool   `json:"Success"`
	ErrorCode  string `json:"ErrorCode"`
	Message    string `json:"Message"`
	Details    string `json:"Details"`
	Status     string `json:"Status"`
	PaymentID  any    `json:"PaymentId"` // string on Init/GetState, number on GetQr
	PaymentURL string `json:"PaymentURL"`
	Data       string `json:"Data"`
	Amount     int64  `json:"Amount"`
}

func (c *TBankClient) Init(ctx context.Context, p adapter.InitParams) (adapter.InitResult, error) {
	params := map[string]any{
		"TerminalKey":     c.terminalKey,
		"Amount":          p.Amount,
		"OrderId":         p.OrderID,
		"Description":     p.Description,
		"PayType":         "O", // single-stage payment
		"Language":        "ru",
		"RedirectDueDate": p.DueDate.Format(dueDateLayout),
		"SuccessURL":      c.successURL,
		"FailURL":         c.failURL,
		"NotificationURL": c.notificationURL,
		"CustomerKey":     p.CustomerKey,
	}
	body := map[string]any{}
	for k, v := range params {
		body[k] = v
	}
	body["Token"] = Sign(params, c.secret)
	if p.Email != "" {
		body["DATA"] = map[string]string{"Email": p.Email}
	}

	env, err := c.post(ctx, epInit, body)
	if err != nil {
		return adapter.InitResult{}, err
	}
	return adapter.InitResult{
		PaymentID:  paymentIDString(env.PaymentID),
		PaymentURL: env.PaymentURL,
		Status:     env.Status,
	}, nil
}

func (c *TBankClient) FetchQR(ctx context.Context, paymentID string) (string, error) {
	id, err := strconv.ParseInt(paymentID, 10, 64)
	if err != nil {
		return "", &ProviderError{Op: "GetQr", Code: "BAD_PAYMENT_ID", Message: err.Error()}
	}
	params := map[string]any{
		"TerminalKey": c.terminalKey,
		"PaymentId":   id,
		"DataType":    "PAYLOAD",
	}
	body := map[string]any{}
	for k, v := range params {
		body[k] = v
	}
	body["Token"] = Sign(params, c.secret)

	env, err := c.post(ctx, epGetQr, body)
	if err != nil {
		return "", err
	}
	return env.Data, nil
}

func (c *TBankClient) FetchState(ctx context.Context, paymentID string) (adapter.StateResult, error) {
	params := map[string]any{
		"TerminalKey": c.terminalKey,
		"PaymentId":   paymentID,
	}
	body := map[string]any{}
	for k, v := range params {
		body[k] = v
	}
	body["Token"] = Sign(params, c.secret)

	env, err := c.post(ctx, epGetState, body)
	if err != nil {
		return adapter.StateResult{}, err
	}
	return adapter.StateResult{
		PaymentID: paymentIDString(env.PaymentID),
		Status:    env.Status,
		Amount:    env.Amount,
	}, nil
}

func (c *TBankClient) Cancel(ctx context.Context, paymentID string, amount *int64) (adapter.StateResult, error) {
	params := map[string]any{
		"TerminalKey": c.terminalKey,
		"PaymentId":   paymentID,
	}
	if amount != nil {
		params["Amount"] = *amount
	}
	body := map[string]any{}
	for k, v := range params {
		body[k] = v
	}
	body["Token"] = Sign(params, c.secret)

	env, err := c.post(ctx, epCancel, body)
	if err != nil {
		return adapter.StateResult{}, err
	}
	return adapter.StateResult{
		PaymentID: paymentIDString(env.PaymentID),
		Status:    env.Status,
		Amount:    env.Amount,
	}, nil
}

func (c *TBankClient) post(ctx context.Context, endpoint string, body map[string]any) (env *envelope, err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		metrics.ObserveProviderRequest(endpoint, outcome, time.Since(start).Seconds())
	}()

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("tbank %s: marshal request: %w", endpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("tbank %s: build request: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tbank %s: send request: %w", endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tbank %s: read response: %w", endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ProviderError{
			Op:      endpoint,
			Code:    "HTTP_" + strconv.Itoa(resp.StatusCode),
			Message: "unexpected HTTP status",
			Details: string(raw),
		}
	}

	var decoded envelope
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("tbank %s: decode response: %w", endpoint, err)
	}

	c.log.Debug().
		Str("endpoint", endpoint).
		Bool("success", decoded.Success).
		Str("error_code", decoded.ErrorCode).
		Str("status", decoded.Status).
		Msg("provider response")

	if !decoded.Success || (decoded.ErrorCode != "" && decoded.ErrorCode != "0") {
		code := decoded.ErrorCode
		if code == "" {
			code = "UNKNOWN"
		}
		msg := decoded.Message
		if msg == "" {
			msg = "provider reported failure"
		}
		return nil, &ProviderError{Op: endpoint, Code: code, Message: msg, Details: decoded.Details}
	}
	return &decoded, nil
}

// paymentIDString normalizes PaymentId, which the provider serializes as a
// string in some envelopes and a number in others.
func paymentIDString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatInt(int64(t), 10)
	default:
		return ""
	}
}
