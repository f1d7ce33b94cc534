package payment

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/learnbridge/model"
	"github.com/sahilchouksey/learnbridge/services"
	"github.com/sahilchouksey/learnbridge/services/gateway"
	"github.com/sahilchouksey/learnbridge/utils/response"
)

// WebhookHandler receives gateway callbacks. It is unauthenticated by
// necessity; the HMAC signature on the raw body is the only credential.
type WebhookHandler struct {
	payments *services.PaymentService
	provider model.PaymentGateway
}

// NewWebhookHandler creates a webhook handler for the configured gateway
func NewWebhookHandler(payments *services.PaymentService, provider model.PaymentGateway) *WebhookHandler {
	return &WebhookHandler{payments: payments, provider: provider}
}

// HandleWebhook handles POST /api/v1/payments/webhook
func (h *WebhookHandler) HandleWebhook(c *fiber.Ctx) error {
	// The raw body must reach signature verification untouched
	rawBody := c.Body()
	if len(rawBody) == 0 {
		return response.BadRequest(c, "Empty webhook payload")
	}

	signature := c.Get(h.signatureHeader())
	if signature == "" {
		return response.Unauthorized(c, "Missing webhook signature")
	}

	err := h.payments.HandleWebhookEvent(c.Context(), rawBody, signature)
	if err != nil {
		switch {
		case errors.Is(err, gateway.ErrInvalidSignature):
			return response.Unauthorized(c, "Invalid webhook signature")
		case errors.Is(err, gateway.ErrMalformedPayload):
			return response.BadRequest(c, "Malformed webhook payload")
		case errors.Is(err, services.ErrOrderNotFound):
			// Unknown payment id. Acknowledge so the gateway stops
			// retrying an event we can never apply.
			log.Printf("Webhook for unknown payment id, acknowledging: %v", err)
			return response.Success(c, fiber.Map{"received": true})
		default:
			// Transient failure: a non-2xx tells the gateway to redeliver
			log.Printf("Webhook processing failed: %v", err)
			return response.InternalServerError(c, "Webhook processing failed")
		}
	}

	return response.Success(c, fiber.Map{"received": true})
}

func (h *WebhookHandler) signatureHeader() string {
	switch h.provider {
	case model.GatewayStripe:
		return "Stripe-Signature"
	case model.GatewayPaypal:
		return "Paypal-Transmission-Sig"
	default:
		return "X-Razorpay-Signature"
	}
}
