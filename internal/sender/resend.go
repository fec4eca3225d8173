package sender

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/resend/resend-go/v2"

	"github.com/ignite/mailcraft/internal/domain"
	"github.com/ignite/mailcraft/internal/pkg/logger"
)

type resendEmails interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// ResendSender sends through the Resend API.
type ResendSender struct {
	emails resendEmails
	from   string
	now    func() time.Time
}

func NewResendSender(apiKey, from string) *ResendSender {
	return &ResendSender{emails: resend.NewClient(apiKey).Emails, from: from, now: time.Now}
}

func (s *ResendSender) Name() string { return "resend" }

func (s *ResendSender) Send(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error) {
	from := fromHeader(msg)
	if msg.FromEmail == "" {
		from = s.from
	}
	params := &resend.SendEmailRequest{
		From:    from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
		Headers: msg.Headers,
		ReplyTo: msg.ReplyTo,
	}
	keys := make([]string, 0, len(msg.Tags))
	for k := range msg.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		params.Tags = append(params.Tags, resend.Tag{Name: k, Value: msg.Tags[k]})
	}

	sent, err := s.emails.SendWithContext(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("resend: send: %w", err)
	}
	logger.Debug("resend: sent", "to", msg.To, "message_id", sent.Id)
	return &domain.SendResult{MessageID: sent.Id, Provider: s.Name(), SentAt: s.now().UTC()}, nil
}
