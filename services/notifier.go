package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	appConfig "github.com/echelonmarket/echelon-api/config"
)

// StatusNotice is the payload of a status-change notification.
type StatusNotice struct {
	OrderID       uint
	OrderType     string
	ProductName   string
	Status        string
	Quantity      int
	Total         float64
	OrderDate     time.Time
	DeliveredDate *time.Time
	Recipient     string
}

// Notifier delivers order notices to a contact address. Failures are
// the caller's to log; they must never affect order state.
type Notifier interface {
	SendStatusNotice(ctx context.Context, notice StatusNotice) error
	SendDeliveryCode(ctx context.Context, recipient, code string, orderID uint) error
	// Plaintext reports whether the transport surfaces codes in the
	// clear (console fallback); the OTP endpoint then returns the code
	// in its response.
	Plaintext() bool
}

// SMTPNotifier sends mail through an SMTP relay.
type SMTPNotifier struct {
	dialer *gomail.Dialer
	from   string
}

// NewSMTPNotifier creates a notifier over the configured SMTP relay.
func NewSMTPNotifier(cfg *appConfig.Config) *SMTPNotifier {
	return &SMTPNotifier{
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword),
		from:   cfg.SMTPFrom,
	}
}

func (n *SMTPNotifier) SendStatusNotice(ctx context.Context, notice StatusNotice) error {
	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", notice.Recipient)
	m.SetHeader("Subject", fmt.Sprintf("Order #%d is now %s", notice.OrderID, notice.Status))

	body := fmt.Sprintf(
		"Order #%d (%s)\nProduct: %s\nQuantity: %d\nTotal: %.2f\nOrdered: %s\nStatus: %s\n",
		notice.OrderID, notice.OrderType, notice.ProductName, notice.Quantity,
		notice.Total, notice.OrderDate.Format(time.RFC1123), notice.Status,
	)
	if notice.DeliveredDate != nil {
		body += fmt.Sprintf("Delivered: %s\n", notice.DeliveredDate.Format(time.RFC1123))
	}
	m.SetBody("text/plain", body)

	if err := n.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send status notice: %w", err)
	}
	return nil
}

func (n *SMTPNotifier) SendDeliveryCode(ctx context.Context, recipient, code string, orderID uint) error {
	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", recipient)
	m.SetHeader("Subject", fmt.Sprintf("Delivery code for order #%d", orderID))
	m.SetBody("text/plain", fmt.Sprintf("Your delivery confirmation code is %s. It expires in 10 minutes.", code))

	if err := n.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send delivery code: %w", err)
	}
	return nil
}

func (n *SMTPNotifier) Plaintext() bool {
	return false
}

// ConsoleNotifier logs notices instead of mailing them. Used when no
// SMTP transport is configured.
type ConsoleNotifier struct {
	logger *zap.Logger
}

// NewConsoleNotifier creates a log-only notifier.
func NewConsoleNotifier(logger *zap.Logger) *ConsoleNotifier {
	return &ConsoleNotifier{logger: logger}
}

func (n *ConsoleNotifier) SendStatusNotice(ctx context.Context, notice StatusNotice) error {
	n.logger.Info("order status notice",
		zap.Uint("order_id", notice.OrderID),
		zap.String("order_type", notice.OrderType),
		zap.String("status", notice.Status),
		zap.String("product", notice.ProductName),
		zap.Int("quantity", notice.Quantity),
		zap.Float64("total", notice.Total),
		zap.String("recipient", notice.Recipient))
	return nil
}

func (n *ConsoleNotifier) SendDeliveryCode(ctx context.Context, recipient, code string, orderID uint) error {
	n.logger.Info("delivery code issued",
		zap.Uint("order_id", orderID),
		zap.String("recipient", recipient),
		zap.String("code", code))
	return nil
}

func (n *ConsoleNotifier) Plaintext() bool {
	return true
}

var notifierInstance Notifier

// InitNotifier builds the global notifier: SMTP when a relay is
// configured, console otherwise.
func InitNotifier(cfg *appConfig.Config, logger *zap.Logger) Notifier {
	if cfg.MailConfigured() {
		notifierInstance = NewSMTPNotifier(cfg)
	} else {
		notifierInstance = NewConsoleNotifier(logger)
	}
	return notifierInstance
}

// GetNotifier returns the initialized notifier instance
func GetNotifier() Notifier {
	return notifierInstance
}

// SetNotifier sets the notifier instance (primarily for testing)
func SetNotifier(n Notifier) {
	notifierInstance = n
}

// NotifyStatusAsync fires a best-effort status notice on its own
// goroutine. Failures are logged and swallowed; the notice has no way
// to reach back into order state.
func NotifyStatusAsync(notice StatusNotice) {
	n := GetNotifier()
	if n == nil || notice.Recipient == "" {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := n.SendStatusNotice(ctx, notice); err != nil {
			appConfig.Logger().Error("status notification failed",
				zap.Uint("order_id", notice.OrderID),
				zap.String("order_type", notice.OrderType),
				zap.String("status", notice.Status),
				zap.Error(err))
		}
	}()
}
