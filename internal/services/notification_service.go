// internal/services/notification_service.go
package services

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/hanbitmall/mall-backend/internal/config"
	"github.com/hanbitmall/mall-backend/internal/models"
)

type NotificationService struct {
	db     *gorm.DB
	config *config.Config
}

type EmailTemplate struct {
	Subject string
	Body    string
}

func NewNotificationService(db *gorm.DB, config *config.Config) *NotificationService {
	return &NotificationService{
		db:     db,
		config: config,
	}
}

// SendOrderConfirmation mails the customer after checkout commits.
func (s *NotificationService) SendOrderConfirmation(user *models.User, order *models.Purchase) error {
	tmpl := s.getEmailTemplate("order_confirmation")

	data := map[string]interface{}{
		"Username":   user.Username,
		"OrderID":    order.ID,
		"GrandTotal": order.GrandTotal.String(),
		"ItemCount":  len(order.Items),
		"Recipient":  order.ShippingRecipient,
	}

	subject := "Your order has been received"
	body, err := s.renderTemplate(tmpl.Body, data)
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}

	return s.sendEmail(user.Email, subject, body)
}

// SendPaymentApproved mails the customer after a payment confirms.
func (s *NotificationService) SendPaymentApproved(user *models.User, payment *models.Payment) error {
	tmpl := s.getEmailTemplate("payment_approved")

	orderNumber := ""
	if payment.OrderNumber != nil {
		orderNumber = *payment.OrderNumber
	}
	data := map[string]interface{}{
		"Username":    user.Username,
		"OrderNumber": orderNumber,
		"Amount":      payment.AmountTotal.String(),
		"Currency":    payment.Currency,
	}

	subject := "Payment completed - " + orderNumber
	body, err := s.renderTemplate(tmpl.Body, data)
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}

	return s.sendEmail(user.Email, subject, body)
}

// SendOrderCanceled mails the customer after a cancellation or refund.
func (s *NotificationService) SendOrderCanceled(user *models.User, order *models.Purchase, reason string) error {
	tmpl := s.getEmailTemplate("order_canceled")

	data := map[string]interface{}{
		"Username": user.Username,
		"OrderID":  order.ID,
		"Status":   string(order.Status),
		"Reason":   reason,
	}

	subject := "Your order has been canceled"
	body, err := s.renderTemplate(tmpl.Body, data)
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}

	return s.sendEmail(user.Email, subject, body)
}

// NotifyAsync runs a mail send in the background; delivery failures are
// logged, never surfaced to the order flow.
func (s *NotificationService) NotifyAsync(send func() error) {
	go func() {
		if err := send(); err != nil {
			logrus.WithError(err).Warn("Notification delivery failed")
		}
	}()
}

func (s *NotificationService) sendEmail(to, subject, body string) error {
	if s.config.Email.SMTPHost == "" {
		// Email not configured, just log
		logrus.WithFields(logrus.Fields{
			"to":      to,
			"subject": subject,
		}).Info("Email skipped (SMTP not configured)")
		return nil
	}

	auth := smtp.PlainAuth("", s.config.Email.SMTPUsername, s.config.Email.SMTPPassword, s.config.Email.SMTPHost)

	msg := []byte(fmt.Sprintf("To: %s\r\nSubject: %s\r\nContent-Type: text/html; charset=\"UTF-8\"\r\n\r\n%s", to, subject, body))

	addr := fmt.Sprintf("%s:%s", s.config.Email.SMTPHost, s.config.Email.SMTPPort)
	return smtp.SendMail(addr, auth, s.config.Email.FromEmail, []string{to}, msg)
}

func (s *NotificationService) renderTemplate(templateStr string, data interface{}) (string, error) {
	tmpl, err := template.New("email").Parse(templateStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func (s *NotificationService) getEmailTemplate(templateType string) EmailTemplate {
	// In a real implementation, these would be loaded from files or database
	templates := map[string]EmailTemplate{
		"order_confirmation": {
			Subject: "Your order has been received",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Thank you, {{.Username}}!</h2>
	<p>We received your order of {{.ItemCount}} item(s), total {{.GrandTotal}}.</p>
	<p>It will ship to {{.Recipient}} once payment completes.</p>
	<p>Order reference: {{.OrderID}}</p>
</body>
</html>`,
		},
		"payment_approved": {
			Subject: "Payment completed",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Payment completed</h2>
	<p>Hello {{.Username}},</p>
	<p>Your payment of {{.Amount}} {{.Currency}} for order {{.OrderNumber}} was approved.</p>
	<p>We are preparing your shipment.</p>
</body>
</html>`,
		},
		"order_canceled": {
			Subject: "Your order has been canceled",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Order canceled</h2>
	<p>Hello {{.Username}},</p>
	<p>Order {{.OrderID}} is now {{.Status}}.</p>
	<p>{{.Reason}}</p>
</body>
</html>`,
		},
	}

	if tmpl, exists := templates[templateType]; exists {
		return tmpl
	}

	return EmailTemplate{
		Subject: "Notification",
		Body:    "<p>{{.Message}}</p>",
	}
}
