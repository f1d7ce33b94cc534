package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sahilchouksey/learnbridge/model"
	"github.com/sahilchouksey/learnbridge/utils/crypto"
)

const stripeBaseURL = "https://api.stripe.com"

// stripeClient talks to the Stripe PaymentIntents API
type stripeClient struct {
	secretKey     string
	webhookSecret string
	baseURL       string
	httpClient    *http.Client
}

func newStripeClient(cfg Config) *stripeClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = stripeBaseURL
	}
	return &stripeClient{
		secretKey:     cfg.KeySecret,
		webhookSecret: cfg.WebhookSecret,
		baseURL:       baseURL,
		httpClient:    newHTTPClient(cfg.Timeout),
	}
}

func (c *stripeClient) Provider() model.PaymentGateway {
	return model.GatewayStripe
}

type stripeIntentResponse struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
}

// CreateIntent creates a Stripe payment intent. Stripe's API is
// form-encoded rather than JSON.
func (c *stripeClient) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(req.Amount, 10))
	form.Set("currency", strings.ToLower(req.Currency))
	form.Set("metadata[receipt]", req.Receipt)
	for k, v := range req.Notes {
		form.Set("metadata["+k+"]", v)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/payment_intents", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build stripe request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.secretKey)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: stripe returned %d: %s", ErrGatewayUnavailable, resp.StatusCode, raw)
	}

	var intent stripeIntentResponse
	if err := json.NewDecoder(resp.Body).Decode(&intent); err != nil {
		return nil, fmt.Errorf("decode stripe intent: %w", err)
	}

	return &Intent{ExternalID: intent.ID, ClientSecret: intent.ClientSecret}, nil
}

// VerifySignature checks the Stripe-Signature header. Stripe signs
// "<timestamp>.<body>" and sends "t=<timestamp>,v1=<hex hmac>".
func (c *stripeClient) VerifySignature(payload []byte, signature string) bool {
	var timestamp, v1 string
	for _, part := range strings.Split(signature, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			timestamp = value
		case "v1":
			v1 = value
		}
	}
	if timestamp == "" || v1 == "" {
		return false
	}

	signed := append([]byte(timestamp+"."), payload...)
	return crypto.VerifyHMACSHA256(signed, v1, c.webhookSecret)
}

type stripeWebhookPayload struct {
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID           string `json:"id"`
			Amount       int64  `json:"amount"`
			LatestCharge string `json:"latest_charge"`
		} `json:"object"`
	} `json:"data"`
}

func (c *stripeClient) ParseWebhookEvent(payload []byte) (*Event, error) {
	var hook stripeWebhookPayload
	if err := json.Unmarshal(payload, &hook); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	var outcome Outcome
	switch hook.Type {
	case "payment_intent.succeeded":
		outcome = OutcomeSucceeded
	case "payment_intent.payment_failed":
		outcome = OutcomeFailed
	default:
		return nil, ErrEventIgnored
	}

	object := hook.Data.Object
	if object.ID == "" {
		return nil, fmt.Errorf("%w: missing payment intent id", ErrMalformedPayload)
	}

	providerTxn := object.LatestCharge
	if providerTxn == "" {
		providerTxn = object.ID
	}

	return &Event{
		ExternalPaymentID: object.ID,
		Outcome:           outcome,
		Amount:            object.Amount,
		ProviderTxnID:     providerTxn,
	}, nil
}
