package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sahilchouksey/learnbridge/model"
)

const (
	// DefaultTimeout bounds the synchronous intent-creation call so a slow
	// gateway cannot hang an interactive checkout
	DefaultTimeout = 15 * time.Second
)

// Sentinel errors surfaced to the payment service
var (
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrInvalidSignature   = errors.New("webhook signature verification failed")
	ErrMalformedPayload   = errors.New("malformed webhook payload")
	// ErrEventIgnored marks webhook event types the system does not care
	// about. Callers acknowledge and drop these, they are not failures.
	ErrEventIgnored = errors.New("webhook event type ignored")
)

// Outcome is the normalized result of a payment attempt
type Outcome string

const (
	OutcomeSucceeded Outcome = "SUCCEEDED"
	OutcomeFailed    Outcome = "FAILED"
)

// Event is the normalized internal shape of a provider webhook
type Event struct {
	ExternalPaymentID string // the intent/order id issued at checkout
	Outcome           Outcome
	Amount            int64  // minor units as reported by the provider
	ProviderTxnID     string // the provider's own transaction/capture id
}

// Intent is the provider-side payment session created at checkout
type Intent struct {
	ExternalID   string // stable id used later to reconcile the webhook
	ClientSecret string // client secret or redirect URL for the frontend
}

// IntentRequest describes the payment intent to create
type IntentRequest struct {
	Amount   int64 // minor units
	Currency string
	Receipt  string // local receipt number, round-tripped for reconciliation
	Notes    map[string]string
}

// Client is implemented once per supported payment processor. The
// provider set is closed; selection happens via configuration, never by
// string comparison at call sites.
type Client interface {
	Provider() model.PaymentGateway
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	// VerifySignature authenticates a raw webhook body against its
	// signature header. This is the sole boundary protecting the ledger
	// from forged completions.
	VerifySignature(payload []byte, signature string) bool
	// ParseWebhookEvent normalizes a provider payload. Returns
	// ErrEventIgnored for event types the system does not consume.
	ParseWebhookEvent(payload []byte) (*Event, error)
}

// Config holds provider credentials
type Config struct {
	Provider      model.PaymentGateway
	KeyID         string
	KeySecret     string
	WebhookSecret string
	BaseURL       string // override for sandboxes and tests
	Timeout       time.Duration
}

// New builds the client for the configured provider
func New(cfg Config) (Client, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	switch cfg.Provider {
	case model.GatewayRazorpay:
		return newRazorpayClient(cfg), nil
	case model.GatewayStripe:
		return newStripeClient(cfg), nil
	case model.GatewayPaypal:
		return newPaypalClient(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported payment gateway: %q", cfg.Provider)
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}
