package gateway

import (
	"context"
	"fmt"
	"time"
)

// InitializeRequest asks the provider to open a charge for a reference.
type InitializeRequest struct {
	Reference   string
	Amount      int64
	Currency    string
	PayerEmail  string
	Method      string
	CallbackURL string
	Metadata    map[string]interface{}
}

// InitializeResult carries whichever continuation the provider returned:
// a redirect URL for card flows, bank transfer instructions, or a QR code.
type InitializeResult struct {
	RedirectURL  string `json:"redirect_url,omitempty"`
	Instructions string `json:"instructions,omitempty"`
	QRCode       string `json:"qr_code,omitempty"`
	AccessCode   string `json:"access_code,omitempty"`
}

// VerifyResult is the provider's externally-reported view of a charge.
type VerifyResult struct {
	Status   string
	Amount   int64
	Currency string
	Channel  string
	PaidAt   *time.Time
}

// RecipientInfo identifies a payout destination account.
type RecipientInfo struct {
	Name          string
	AccountNumber string
	BankCode      string
	Currency      string
}

// TransferRequest moves funds to a previously created recipient.
type TransferRequest struct {
	Recipient string
	Amount    int64
	Currency  string
	Reason    string
	Reference string
}

// TransferResult is the provider's handle for an initiated transfer.
type TransferResult struct {
	TransferReference string
	Status            string
}

// WebhookEvent is the provider-agnostic shape extracted from a raw
// callback payload.
type WebhookEvent struct {
	EventID   string
	Event     string
	Reference string
	Status    string
	Amount    int64
}

// Adapter is the full capability set a payment provider must implement.
// The rest of the system is provider-agnostic; variants are selected by
// configuration, never by runtime type inspection. Retryable transport
// failures are handled inside implementations, not by callers.
type Adapter interface {
	Provider() string
	Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error)
	Verify(ctx context.Context, reference string) (*VerifyResult, error)
	CreateTransferRecipient(ctx context.Context, info RecipientInfo) (string, error)
	InitiateTransfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
	VerifyWebhookSignature(rawPayload []byte, signatureHeader string) bool
	ParseWebhook(rawPayload []byte) (*WebhookEvent, error)
	MapStatus(externalStatus string) string
}

// Error is a terminal gateway failure. Retryable errors have already
// exhausted the adapter's backoff budget by the time callers see them.
type Error struct {
	Code      string
	Message   string
	Retryable bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("gateway error %s: %s", e.Code, e.Message)
}

// IsRetryable reports whether err is a gateway error flagged retryable.
func IsRetryable(err error) bool {
	if gwErr, ok := err.(*Error); ok {
		return gwErr.Retryable
	}
	return false
}
