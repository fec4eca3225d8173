package sender

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/mailcraft/internal/domain"
	"github.com/ignite/mailcraft/internal/pkg/logger"
)

// LogSender records messages instead of sending them. It is the
// development default and doubles as a test double.
type LogSender struct {
	mu   sync.Mutex
	sent []domain.EmailMessage
}

func NewLogSender() *LogSender { return &LogSender{} }

func (s *LogSender) Name() string { return "log" }

func (s *LogSender) Send(_ context.Context, msg *domain.EmailMessage) (*domain.SendResult, error) {
	s.mu.Lock()
	s.sent = append(s.sent, *msg)
	s.mu.Unlock()
	logger.Info("send (log provider)", "to", msg.To, "subject", msg.Subject)
	return &domain.SendResult{MessageID: uuid.NewString(), Provider: s.Name(), SentAt: time.Now().UTC()}, nil
}

// Sent returns a copy of everything sent so far.
func (s *LogSender) Sent() []domain.EmailMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.EmailMessage(nil), s.sent...)
}
