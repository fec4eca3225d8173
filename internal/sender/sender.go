// Package sender delivers rendered messages through an email provider.
package sender

import (
	"context"
	"errors"
	"fmt"

	"github.com/ignite/mailcraft/internal/config"
	"github.com/ignite/mailcraft/internal/domain"
)

// ErrPermanent marks a failure that retrying cannot fix (rejected
// address, unverified sender). Workers dead-letter these immediately.
var ErrPermanent = errors.New("permanent send failure")

// Sender delivers one message.
type Sender interface {
	Send(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error)
	Name() string
}

// New builds the sender named by cfg.Provider.
func New(ctx context.Context, cfg config.SendingConfig) (Sender, error) {
	switch cfg.Provider {
	case "ses":
		return NewSESSender(ctx, cfg)
	case "resend":
		if cfg.ResendAPIKey == "" {
			return nil, fmt.Errorf("resend: api key not configured")
		}
		return NewResendSender(cfg.ResendAPIKey, cfg.DefaultFrom), nil
	case "log", "":
		return NewLogSender(), nil
	}
	return nil, fmt.Errorf("unknown send provider %q", cfg.Provider)
}

func fromHeader(msg *domain.EmailMessage) string {
	if msg.FromName == "" {
		return msg.FromEmail
	}
	return fmt.Sprintf("%s <%s>", msg.FromName, msg.FromEmail)
}
