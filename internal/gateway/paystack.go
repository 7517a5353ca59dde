package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/frahmantamala/marketplace-payments/internal/core/datamodel/payment"
)

const ProviderPaystack = "paystack"

// PaystackConfig configures the Paystack HTTP client.
type PaystackConfig struct {
	BaseURL    string
	SecretKey  string
	Timeout    time.Duration
	MaxRetries int
}

// PaystackClient implements Adapter against the Paystack REST API.
type PaystackClient struct {
	baseURL    string
	secretKey  string
	maxRetries uint64
	client     *http.Client
	logger     *slog.Logger
}

func NewPaystackClient(cfg PaystackConfig, logger *slog.Logger) *PaystackClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	return &PaystackClient{
		baseURL:    cfg.BaseURL,
		secretKey:  cfg.SecretKey,
		maxRetries: uint64(maxRetries),
		client:     &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (c *PaystackClient) Provider() string {
	return ProviderPaystack
}

type paystackEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *PaystackClient) Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error) {
	payload := map[string]interface{}{
		"reference": req.Reference,
		"amount":    req.Amount,
		"currency":  req.Currency,
		"email":     req.PayerEmail,
	}
	if req.Method != "" {
		payload["channels"] = []string{req.Method}
	}
	if req.CallbackURL != "" {
		payload["callback_url"] = req.CallbackURL
	}
	if len(req.Metadata) > 0 {
		payload["metadata"] = req.Metadata
	}

	var data struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	}
	if err := c.doRequest(ctx, http.MethodPost, "/transaction/initialize", payload, &data); err != nil {
		return nil, err
	}

	c.logger.Info("gateway charge initialized",
		"provider", ProviderPaystack,
		"reference", req.Reference,
		"amount", req.Amount)

	return &InitializeResult{
		RedirectURL: data.AuthorizationURL,
		AccessCode:  data.AccessCode,
	}, nil
}

func (c *PaystackClient) Verify(ctx context.Context, reference string) (*VerifyResult, error) {
	var data struct {
		Status   string     `json:"status"`
		Amount   int64      `json:"amount"`
		Currency string     `json:"currency"`
		Channel  string     `json:"channel"`
		PaidAt   *time.Time `json:"paid_at"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/transaction/verify/"+reference, nil, &data); err != nil {
		return nil, err
	}

	return &VerifyResult{
		Status:   data.Status,
		Amount:   data.Amount,
		Currency: data.Currency,
		Channel:  data.Channel,
		PaidAt:   data.PaidAt,
	}, nil
}

func (c *PaystackClient) CreateTransferRecipient(ctx context.Context, info RecipientInfo) (string, error) {
	payload := map[string]interface{}{
		"type":           "nuban",
		"name":           info.Name,
		"account_number": info.AccountNumber,
		"bank_code":      info.BankCode,
		"currency":       info.Currency,
	}

	var data struct {
		RecipientCode string `json:"recipient_code"`
	}
	if err := c.doRequest(ctx, http.MethodPost, "/transferrecipient", payload, &data); err != nil {
		return "", err
	}

	return data.RecipientCode, nil
}

func (c *PaystackClient) InitiateTransfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	payload := map[string]interface{}{
		"source":    "balance",
		"recipient": req.Recipient,
		"amount":    req.Amount,
		"currency":  req.Currency,
		"reason":    req.Reason,
	}
	if req.Reference != "" {
		payload["reference"] = req.Reference
	}

	var data struct {
		TransferCode string `json:"transfer_code"`
		Status       string `json:"status"`
	}
	if err := c.doRequest(ctx, http.MethodPost, "/transfer", payload, &data); err != nil {
		return nil, err
	}

	c.logger.Info("gateway transfer initiated",
		"provider", ProviderPaystack,
		"recipient", req.Recipient,
		"amount", req.Amount,
		"transfer_code", data.TransferCode)

	return &TransferResult{
		TransferReference: data.TransferCode,
		Status:            data.Status,
	}, nil
}

// VerifyWebhookSignature checks the x-paystack-signature header: an
// HMAC-SHA512 of the raw body keyed with the secret key, hex encoded.
func (c *PaystackClient) VerifyWebhookSignature(rawPayload []byte, signatureHeader string) bool {
	if signatureHeader == "" {
		return false
	}

	mac := hmac.New(sha512.New, []byte(c.secretKey))
	mac.Write(rawPayload)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signatureHeader))
}

func (c *PaystackClient) ParseWebhook(rawPayload []byte) (*WebhookEvent, error) {
	var body struct {
		Event string `json:"event"`
		Data  struct {
			ID        json.Number `json:"id"`
			Reference string      `json:"reference"`
			Status    string      `json:"status"`
			Amount    int64       `json:"amount"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rawPayload, &body); err != nil {
		return nil, fmt.Errorf("failed to parse webhook payload: %w", err)
	}
	if body.Data.Reference == "" {
		return nil, fmt.Errorf("webhook payload missing reference")
	}

	eventID := body.Data.ID.String()
	if eventID == "" {
		eventID = body.Event + ":" + body.Data.Reference
	}

	return &WebhookEvent{
		EventID:   eventID,
		Event:     body.Event,
		Reference: body.Data.Reference,
		Status:    body.Data.Status,
		Amount:    body.Data.Amount,
	}, nil
}

// paystackStatusMap is the fixed provider vocabulary table. Unmapped
// statuses are treated as processing, never as failed, to avoid false
// negatives on vocabulary drift.
var paystackStatusMap = map[string]string{
	"success":    payment.StatusCompleted,
	"failed":     payment.StatusFailed,
	"abandoned":  payment.StatusFailed,
	"reversed":   payment.StatusRefunded,
	"ongoing":    payment.StatusProcessing,
	"pending":    payment.StatusProcessing,
	"queued":     payment.StatusProcessing,
	"processing": payment.StatusProcessing,
}

func (c *PaystackClient) MapStatus(externalStatus string) string {
	if internal, ok := paystackStatusMap[externalStatus]; ok {
		return internal
	}
	return payment.StatusProcessing
}

// doRequest performs one API call with capped exponential backoff on
// network errors and 5xx responses. 4xx responses are terminal.
func (c *PaystackClient) doRequest(ctx context.Context, method, path string, payload interface{}, out interface{}) error {
	var reqBody []byte
	if payload != nil {
		var err error
		reqBody, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal gateway request: %w", err)
		}
	}

	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(500*time.Millisecond))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		var bodyReader io.Reader
		if reqBody != nil {
			bodyReader = bytes.NewReader(reqBody)
		}

		httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
		if err != nil {
			return fmt.Errorf("failed to create gateway request: %w", err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+c.secretKey)
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(httpReq)
		if err != nil {
			c.logger.Warn("gateway request failed, retrying", "path", path, "error", err)
			return retry.RetryableError(&Error{Code: "NETWORK", Message: err.Error(), Retryable: true})
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return retry.RetryableError(&Error{Code: "READ", Message: err.Error(), Retryable: true})
		}

		if resp.StatusCode >= 500 {
			c.logger.Warn("gateway returned server error, retrying",
				"path", path,
				"status", resp.StatusCode)
			return retry.RetryableError(&Error{
				Code:      strconv.Itoa(resp.StatusCode),
				Message:   string(respBody),
				Retryable: true,
			})
		}

		var envelope paystackEnvelope
		if err := json.Unmarshal(respBody, &envelope); err != nil {
			return &Error{Code: "DECODE", Message: err.Error(), Retryable: false}
		}

		if resp.StatusCode >= 400 || !envelope.Status {
			return &Error{
				Code:      strconv.Itoa(resp.StatusCode),
				Message:   envelope.Message,
				Retryable: false,
			}
		}

		if out != nil && len(envelope.Data) > 0 {
			if err := json.Unmarshal(envelope.Data, out); err != nil {
				return &Error{Code: "DECODE", Message: err.Error(), Retryable: false}
			}
		}

		return nil
	})
}
