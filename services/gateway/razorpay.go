package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/sahilchouksey/learnbridge/model"
	"github.com/sahilchouksey/learnbridge/utils/crypto"
)

const razorpayBaseURL = "https://api.razorpay.com"

// razorpayClient talks to the Razorpay Orders API
type razorpayClient struct {
	keyID         string
	keySecret     string
	webhookSecret string
	baseURL       string
	httpClient    *http.Client
}

func newRazorpayClient(cfg Config) *razorpayClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = razorpayBaseURL
	}
	return &razorpayClient{
		keyID:         cfg.KeyID,
		keySecret:     cfg.KeySecret,
		webhookSecret: cfg.WebhookSecret,
		baseURL:       baseURL,
		httpClient:    newHTTPClient(cfg.Timeout),
	}
}

func (c *razorpayClient) Provider() model.PaymentGateway {
	return model.GatewayRazorpay
}

type razorpayOrderRequest struct {
	Amount   int64             `json:"amount"` // minor units (paise)
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type razorpayOrderResponse struct {
	ID string `json:"id"`
}

// CreateIntent creates a Razorpay order. The returned order id is what
// the completion webhook later carries, so it doubles as the lookup key.
func (c *razorpayClient) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	body, err := json.Marshal(razorpayOrderRequest{
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Notes:    req.Notes,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal razorpay order: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build razorpay request: %w", err)
	}
	httpReq.SetBasicAuth(c.keyID, c.keySecret)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: razorpay returned %d: %s", ErrGatewayUnavailable, resp.StatusCode, raw)
	}

	var order razorpayOrderResponse
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return nil, fmt.Errorf("decode razorpay order: %w", err)
	}

	// Razorpay checkout only needs the key id and order id on the client
	return &Intent{ExternalID: order.ID, ClientSecret: order.ID}, nil
}

// VerifySignature checks the X-Razorpay-Signature header: hex HMAC-SHA256
// of the raw body under the webhook secret
func (c *razorpayClient) VerifySignature(payload []byte, signature string) bool {
	if signature == "" {
		return false
	}
	return crypto.VerifyHMACSHA256(payload, signature, c.webhookSecret)
}

type razorpayWebhookPayload struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
				Amount  int64  `json:"amount"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

func (c *razorpayClient) ParseWebhookEvent(payload []byte) (*Event, error) {
	var hook razorpayWebhookPayload
	if err := json.Unmarshal(payload, &hook); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	var outcome Outcome
	switch hook.Event {
	case "payment.captured":
		outcome = OutcomeSucceeded
	case "payment.failed":
		outcome = OutcomeFailed
	default:
		// Razorpay sends many event types (order.paid, refunds, disputes)
		// that the reconciliation path does not consume
		return nil, ErrEventIgnored
	}

	entity := hook.Payload.Payment.Entity
	if entity.OrderID == "" {
		return nil, fmt.Errorf("%w: missing order_id", ErrMalformedPayload)
	}

	return &Event{
		ExternalPaymentID: entity.OrderID,
		Outcome:           outcome,
		Amount:            entity.Amount,
		ProviderTxnID:     entity.ID,
	}, nil
}
