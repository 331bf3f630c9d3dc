package flutterwave

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yungbote/coursehub-backend/internal/platform/ctxutil"
	"github.com/yungbote/coursehub-backend/internal/platform/envutil"
	"github.com/yungbote/coursehub-backend/internal/platform/httpx"
	"github.com/yungbote/coursehub-backend/internal/platform/logger"
)

// Gateway is the subset of the Flutterwave v3 API the payment flow relies on.
type Gateway interface {
	Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error)
	VerifyTransaction(ctx context.Context, transactionID string) (*Transaction, error)
	VerifyByReference(ctx context.Context, txRef string) (*Transaction, error)
	VerifyWebhookSignature(rawBody []byte, signature string) bool
}

type Config struct {
	SecretKey  string
	SecretHash string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

func ConfigFromEnv() Config {
	return Config{
		SecretKey:  envutil.String("FLW_SECRET_KEY", ""),
		SecretHash: envutil.String("FLW_SECRET_HASH", ""),
		BaseURL:    envutil.String("FLW_BASE_URL", ""),
		Timeout:    envutil.Seconds("FLW_TIMEOUT_SECONDS", 20*time.Second),
		MaxRetries: envutil.Int("FLW_MAX_RETRIES", 3),
	}
}

func New(log *logger.Logger, cfg Config) (Gateway, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, fmt.Errorf("missing FLW_SECRET_KEY")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.flutterwave.com"
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &client{
		log:        log.With("client", "FlutterwaveClient"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		backoff:    500 * time.Millisecond,
	}, nil
}

type client struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client
	backoff    time.Duration
}

type initializeData struct {
	Link string `json:"link"`
}

func (c *client) Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error) {
	req.TxRef = strings.TrimSpace(req.TxRef)
	if req.TxRef == "" {
		return nil, fmt.Errorf("flutterwave: tx_ref required")
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("flutterwave: amount must be positive")
	}
	if strings.TrimSpace(req.Customer.Email) == "" {
		return nil, fmt.Errorf("flutterwave: customer email required")
	}
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))

	// Initialization is not idempotent on the gateway side, so it is sent once.
	env, err := c.doOnce(ctx, http.MethodPost, "/v3/payments", req)
	if err != nil {
		return nil, err
	}
	var data initializeData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("flutterwave: decode initialize: %w", err)
	}
	if strings.TrimSpace(data.Link) == "" {
		return nil, fmt.Errorf("flutterwave: initialize returned no payment link")
	}
	return &InitializeResult{PaymentURL: data.Link, TxRef: req.TxRef}, nil
}

func (c *client) VerifyTransaction(ctx context.Context, transactionID string) (*Transaction, error) {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return nil, fmt.Errorf("flutterwave: transaction id required")
	}
	return c.verify(ctx, "/v3/transactions/"+url.PathEscape(transactionID)+"/verify")
}

func (c *client) VerifyByReference(ctx context.Context, txRef string) (*Transaction, error) {
	txRef = strings.TrimSpace(txRef)
	if txRef == "" {
		return nil, fmt.Errorf("flutterwave: tx_ref required")
	}
	return c.verify(ctx, "/v3/transactions/verify_by_reference?tx_ref="+url.QueryEscape(txRef))
}

func (c *client) verify(ctx context.Context, path string) (*Transaction, error) {
	env, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	tx := &Transaction{}
	if err := json.Unmarshal(env.Data, tx); err != nil {
		return nil, fmt.Errorf("flutterwave: decode transaction: %w", err)
	}
	tx.Raw = append(json.RawMessage(nil), env.Data...)
	return tx, nil
}

// VerifyWebhookSignature compares the verif-hash header with the configured
// secret hash. An unset secret rejects everything.
func (c *client) VerifyWebhookSignature(_ []byte, signature string) bool {
	return VerifySignature(c.cfg.SecretHash, signature)
}

func VerifySignature(secretHash, signature string) bool {
	secretHash = strings.TrimSpace(secretHash)
	signature = strings.TrimSpace(signature)
	if secretHash == "" || signature == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(secretHash), []byte(signature)) == 1
}

type HTTPError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "flutterwave: <nil error>"
	}
	if strings.TrimSpace(e.Message) != "" {
		return fmt.Sprintf("flutterwave http %d: %s", e.StatusCode, e.Message)
	}
	msg := strings.TrimSpace(e.Body)
	if msg == "" {
		msg = "<empty body>"
	}
	if len(msg) > 2000 {
		msg = msg[:2000] + "..."
	}
	return fmt.Sprintf("flutterwave http %d: %s", e.StatusCode, msg)
}

func (e *HTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

// do retries GETs only; other methods are sent once.
func (c *client) do(ctx context.Context, method, path string, body any) (*envelope, error) {
	if method != http.MethodGet {
		return c.doOnce(ctx, method, path, body)
	}
	backoff := c.backoff
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if err := ctxutil.Default(ctx).Err(); err != nil {
			return nil, err
		}
		env, err := c.doOnce(ctx, method, path, body)
		if err == nil {
			return env, nil
		}
		if !httpx.IsRetryableError(err) || attempt == c.cfg.MaxRetries {
			return nil, err
		}
		sleepFor := httpx.JitterSleep(backoff)
		c.log.Warn("Flutterwave request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.cfg.MaxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		if err := httpx.Sleep(ctxutil.Default(ctx), sleepFor); err != nil {
			return nil, err
		}
		backoff *= 2
	}
	return nil, errors.New("unreachable retry loop")
}

func (c *client) doOnce(ctx context.Context, method, path string, body any) (*envelope, error) {
	var rdr io.Reader
	if body != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
		rdr = &buf
	}
	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), method, c.cfg.BaseURL+path, rdr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, readErr
	}

	env := &envelope{}
	decodeErr := json.Unmarshal(raw, env)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		he := &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
		if decodeErr == nil {
			he.Message = env.Message
		}
		return nil, he
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("flutterwave: decode response: %w", decodeErr)
	}
	if !strings.EqualFold(env.Status, "success") {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Message: env.Message, Body: string(raw)}
	}
	return env, nil
}
