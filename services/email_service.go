package services

import (
	"crypto/tls"
	"fmt"
	"log"
	"net/smtp"
	"os"
	"strings"

	"github.com/sahilchouksey/learnbridge/model"
)

// EmailService handles sending emails via SMTP
type EmailService struct {
	host     string
	port     int
	username string
	password string
	from     string
	appURL   string
}

// NewEmailService creates a new email service instance
func NewEmailService() *EmailService {
	port := 587
	if p := os.Getenv("SMTP_PORT"); p != "" {
		fmt.Sscanf(p, "%d", &port)
	}

	return &EmailService{
		host:     getEnvOrDefault("SMTP_HOST", "smtp.gmail.com"),
		port:     port,
		username: os.Getenv("SMTP_USERNAME"),
		password: os.Getenv("SMTP_PASSWORD"),
		from:     getEnvOrDefault("SMTP_FROM", "noreply@learnbridge.app"),
		appURL:   getEnvOrDefault("APP_URL", "http://localhost:3000"),
	}
}

// getEnvOrDefault returns the environment variable value or a default
func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// IsConfigured checks if SMTP is properly configured
func (e *EmailService) IsConfigured() bool {
	return e.username != "" && e.password != ""
}

// SendPurchaseReceipt emails the buyer a receipt for a completed order
func (e *EmailService) SendPurchaseReceipt(toEmail, userName string, order *model.Order) error {
	if !e.IsConfigured() {
		log.Printf("SMTP not configured. Skipping receipt for order %d to %s", order.ID, toEmail)
		return fmt.Errorf("SMTP not configured")
	}

	subject := fmt.Sprintf("Your LearnBridge Receipt - Order #%s", order.ReceiptNumber)
	body := e.buildReceiptEmailBody(userName, order)

	return e.sendEmail(toEmail, subject, body)
}

// formatAmount renders minor units as a decimal string for display
func formatAmount(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}

// buildReceiptEmailBody creates the HTML email body for a purchase receipt
func (e *EmailService) buildReceiptEmailBody(userName string, order *model.Order) string {
	if userName == "" {
		userName = "Learner"
	}

	var rows strings.Builder
	for _, item := range order.Items {
		rows.WriteString(fmt.Sprintf(`<tr>
            <td style="padding: 10px; border-bottom: 1px solid #eee;">%s</td>
            <td style="padding: 10px; border-bottom: 1px solid #eee; text-align: right;">%s</td>
        </tr>`, item.CourseTitle, formatAmount(item.NetPrice())))
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Your LearnBridge Receipt</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Oxygen, Ubuntu, sans-serif;
            line-height: 1.6;
            color: #333;
            max-width: 600px;
            margin: 0 auto;
            padding: 20px;
            background-color: #f5f5f5;
        }
        .container {
            background-color: #ffffff;
            border-radius: 8px;
            padding: 40px;
            box-shadow: 0 2px 4px rgba(0, 0, 0, 0.1);
        }
        .logo {
            text-align: center;
            margin-bottom: 30px;
            padding-bottom: 20px;
            border-bottom: 2px solid #1a4d8f;
        }
        .logo h1 {
            color: #1a4d8f;
            font-size: 28px;
            margin: 0;
            letter-spacing: -0.5px;
        }
        h2 {
            color: #1a4d8f;
            margin-top: 0;
        }
        table {
            width: 100%%;
            border-collapse: collapse;
            margin: 20px 0;
        }
        .total-row td {
            padding: 12px 10px;
            font-weight: 600;
            border-top: 2px solid #1a4d8f;
        }
        .receipt-number {
            color: #666;
            font-size: 13px;
            background-color: #f5f5f5;
            padding: 10px;
            border-radius: 4px;
        }
        .button {
            display: inline-block;
            background-color: #1a4d8f;
            color: #ffffff !important;
            padding: 14px 28px;
            text-decoration: none;
            border-radius: 6px;
            font-weight: 600;
            margin: 20px 0;
        }
        .footer {
            margin-top: 30px;
            padding-top: 20px;
            border-top: 1px solid #eee;
            font-size: 12px;
            color: #666;
            text-align: center;
        }
        .footer a {
            color: #1a4d8f;
            text-decoration: none;
        }
    </style>
</head>
<body>
    <div class="container">
        <div class="logo">
            <h1>LearnBridge</h1>
        </div>

        <h2>Thank you for your purchase!</h2>

        <p>Hello %s,</p>

        <p>Your payment was successful and you now have full access to your courses. Here is your receipt:</p>

        <div class="receipt-number">Receipt: %s</div>

        <table>
            %s
            <tr class="total-row">
                <td>Total</td>
                <td style="text-align: right;">%s</td>
            </tr>
        </table>

        <p style="text-align: center;">
            <a href="%s/my-courses" class="button">Start Learning</a>
        </p>

        <div class="footer">
            <p><strong>LearnBridge</strong></p>
            <p>Learn from creators, anywhere</p>
            <p><a href="mailto:support@learnbridge.app">support@learnbridge.app</a></p>
        </div>
    </div>
</body>
</html>`, userName, order.ReceiptNumber, rows.String(), formatAmount(order.Amount), e.appURL)
}

// sendEmail sends an email using SMTP with TLS
func (e *EmailService) sendEmail(to, subject, htmlBody string) error {
	// Build the email message with proper headers
	headers := make(map[string]string)
	headers["From"] = fmt.Sprintf("LearnBridge <%s>", e.from)
	headers["Reply-To"] = "support@learnbridge.app"
	headers["To"] = to
	headers["Subject"] = subject
	headers["MIME-Version"] = "1.0"
	headers["Content-Type"] = "text/html; charset=UTF-8"
	headers["X-Mailer"] = "LearnBridge Mailer"

	var message strings.Builder
	for k, v := range headers {
		message.WriteString(fmt.Sprintf("%s: %s\r\n", k, v))
	}
	message.WriteString("\r\n")
	message.WriteString(htmlBody)

	// Connect to the SMTP server
	addr := fmt.Sprintf("%s:%d", e.host, e.port)

	auth := smtp.PlainAuth("", e.username, e.password, e.host)

	tlsConfig := &tls.Config{
		InsecureSkipVerify: false,
		ServerName:         e.host,
	}

	conn, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer conn.Close()

	// Start TLS
	if err := conn.StartTLS(tlsConfig); err != nil {
		return fmt.Errorf("failed to start TLS: %w", err)
	}

	// Authenticate
	if err := conn.Auth(auth); err != nil {
		return fmt.Errorf("SMTP authentication failed: %w", err)
	}

	// Set the sender
	if err := conn.Mail(e.from); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}

	// Set the recipient
	if err := conn.Rcpt(to); err != nil {
		return fmt.Errorf("failed to set recipient: %w", err)
	}

	// Send the email body
	w, err := conn.Data()
	if err != nil {
		return fmt.Errorf("failed to get data writer: %w", err)
	}

	_, err = w.Write([]byte(message.String()))
	if err != nil {
		return fmt.Errorf("failed to write email body: %w", err)
	}

	err = w.Close()
	if err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	conn.Quit()

	log.Printf("Receipt email sent successfully to: %s", to)
	return nil
}
