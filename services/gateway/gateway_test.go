package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sahilchouksey/learnbridge/model"
	"github.com/sahilchouksey/learnbridge/utils/crypto"
)

const testWebhookSecret = "whsec_test"

func TestNewSelectsProvider(t *testing.T) {
	tests := []struct {
		provider model.PaymentGateway
		wantErr  bool
	}{
		{model.GatewayRazorpay, false},
		{model.GatewayStripe, false},
		{model.GatewayPaypal, false},
		{model.PaymentGateway("SQUARE"), true},
		{model.PaymentGateway(""), true},
	}

	for _, tt := range tests {
		client, err := New(Config{Provider: tt.provider, KeyID: "k", KeySecret: "s"})
		if tt.wantErr {
			assert.Error(t, err, "provider %q", tt.provider)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.provider, client.Provider())
	}
}

func razorpayTestClient() Client {
	return newRazorpayClient(Config{
		KeyID:         "rzp_test_key",
		KeySecret:     "rzp_test_secret",
		WebhookSecret: testWebhookSecret,
	})
}

func TestRazorpayVerifySignature(t *testing.T) {
	client := razorpayTestClient()
	payload := []byte(`{"event":"payment.captured"}`)

	valid := crypto.SignHMACSHA256(payload, testWebhookSecret)
	assert.True(t, client.VerifySignature(payload, valid))
	assert.False(t, client.VerifySignature(payload, "deadbeef"))
	assert.False(t, client.VerifySignature(payload, ""))
	assert.False(t, client.VerifySignature([]byte("tampered"), valid))
}

func TestRazorpayParseWebhookEvent(t *testing.T) {
	client := razorpayTestClient()

	payload := []byte(`{
		"event": "payment.captured",
		"payload": {"payment": {"entity": {
			"id": "pay_ABC",
			"order_id": "order_XYZ",
			"amount": 15000
		}}}
	}`)

	event, err := client.ParseWebhookEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, "order_XYZ", event.ExternalPaymentID)
	assert.Equal(t, OutcomeSucceeded, event.Outcome)
	assert.Equal(t, int64(15000), event.Amount)
	assert.Equal(t, "pay_ABC", event.ProviderTxnID)
}

func TestRazorpayParseFailedEvent(t *testing.T) {
	client := razorpayTestClient()

	payload := []byte(`{
		"event": "payment.failed",
		"payload": {"payment": {"entity": {"id": "pay_F", "order_id": "order_F", "amount": 100}}}
	}`)

	event, err := client.ParseWebhookEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, event.Outcome)
}

func TestRazorpayParseIgnoredAndMalformed(t *testing.T) {
	client := razorpayTestClient()

	_, err := client.ParseWebhookEvent([]byte(`{"event":"order.paid"}`))
	assert.ErrorIs(t, err, ErrEventIgnored)

	_, err = client.ParseWebhookEvent([]byte(`not json`))
	assert.ErrorIs(t, err, ErrMalformedPayload)

	// Captured event without an order id cannot be reconciled
	_, err = client.ParseWebhookEvent([]byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1"}}}}`))
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestRazorpayCreateIntent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/orders", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "rzp_test_key", user)
		assert.Equal(t, "rzp_test_secret", pass)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(25000), body["amount"])
		assert.Equal(t, "INR", body["currency"])

		fmt.Fprint(w, `{"id":"order_created"}`)
	}))
	defer server.Close()

	client := newRazorpayClient(Config{
		KeyID:     "rzp_test_key",
		KeySecret: "rzp_test_secret",
		BaseURL:   server.URL,
	})

	intent, err := client.CreateIntent(context.Background(), IntentRequest{
		Amount:   25000,
		Currency: "INR",
		Receipt:  "rcpt-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "order_created", intent.ExternalID)
}

func TestRazorpayCreateIntentServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newRazorpayClient(Config{BaseURL: server.URL})
	_, err := client.CreateIntent(context.Background(), IntentRequest{Amount: 100, Currency: "INR"})
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
}

func stripeTestClient() Client {
	return newStripeClient(Config{
		KeySecret:     "sk_test",
		WebhookSecret: testWebhookSecret,
	})
}

func TestStripeVerifySignature(t *testing.T) {
	client := stripeTestClient()
	payload := []byte(`{"type":"payment_intent.succeeded"}`)

	timestamp := "1700000000"
	signed := append([]byte(timestamp+"."), payload...)
	v1 := crypto.SignHMACSHA256(signed, testWebhookSecret)

	header := fmt.Sprintf("t=%s,v1=%s", timestamp, v1)
	assert.True(t, client.VerifySignature(payload, header))

	assert.False(t, client.VerifySignature(payload, fmt.Sprintf("t=%s,v1=bad", timestamp)))
	assert.False(t, client.VerifySignature(payload, "v1="+v1), "missing timestamp part")
	assert.False(t, client.VerifySignature(payload, ""))
}

func TestStripeParseWebhookEvent(t *testing.T) {
	client := stripeTestClient()

	payload := []byte(`{
		"type": "payment_intent.succeeded",
		"data": {"object": {"id": "pi_123", "amount": 9900, "latest_charge": "ch_456"}}
	}`)

	event, err := client.ParseWebhookEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, "pi_123", event.ExternalPaymentID)
	assert.Equal(t, OutcomeSucceeded, event.Outcome)
	assert.Equal(t, int64(9900), event.Amount)
	assert.Equal(t, "ch_456", event.ProviderTxnID)

	// Without latest_charge the intent id doubles as the provider txn id
	payload = []byte(`{"type":"payment_intent.payment_failed","data":{"object":{"id":"pi_789","amount":100}}}`)
	event, err = client.ParseWebhookEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, event.Outcome)
	assert.Equal(t, "pi_789", event.ProviderTxnID)
}

func TestStripeParseIgnoredEvent(t *testing.T) {
	client := stripeTestClient()
	_, err := client.ParseWebhookEvent([]byte(`{"type":"charge.updated"}`))
	assert.ErrorIs(t, err, ErrEventIgnored)
}

func paypalTestClient() Client {
	return newPaypalClient(Config{
		KeyID:         "pp_client",
		KeySecret:     "pp_secret",
		WebhookSecret: testWebhookSecret,
	})
}

func TestPaypalParseWebhookEvent(t *testing.T) {
	client := paypalTestClient()

	payload := []byte(`{
		"event_type": "PAYMENT.CAPTURE.COMPLETED",
		"resource": {
			"id": "cap_1",
			"supplementary_data": {"related_ids": {"order_id": "PPORDER1"}},
			"amount": {"value": "149.90"}
		}
	}`)

	event, err := client.ParseWebhookEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, "PPORDER1", event.ExternalPaymentID)
	assert.Equal(t, OutcomeSucceeded, event.Outcome)
	assert.Equal(t, int64(14990), event.Amount, "decimal amounts convert to minor units")
	assert.Equal(t, "cap_1", event.ProviderTxnID)
}

func TestPaypalParseDeniedAndIgnored(t *testing.T) {
	client := paypalTestClient()

	payload := []byte(`{
		"event_type": "PAYMENT.CAPTURE.DENIED",
		"resource": {"id": "cap_2", "supplementary_data": {"related_ids": {"order_id": "PPORDER2"}}, "amount": {"value": "10.00"}}
	}`)
	event, err := client.ParseWebhookEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, event.Outcome)

	_, err = client.ParseWebhookEvent([]byte(`{"event_type":"CHECKOUT.ORDER.APPROVED"}`))
	assert.ErrorIs(t, err, ErrEventIgnored)
}

func TestDecimalMinorRoundTrip(t *testing.T) {
	assert.Equal(t, "100.50", minorToDecimal(10050))
	assert.Equal(t, "0.05", minorToDecimal(5))

	minor, err := decimalToMinor("100.50")
	require.NoError(t, err)
	assert.Equal(t, int64(10050), minor)

	_, err = decimalToMinor("abc")
	assert.Error(t, err)
}
