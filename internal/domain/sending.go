package domain

import "time"

// EmailMessage is a fully rendered message ready for a sender. Tracking
// links and the unsubscribe header are already in place.
type EmailMessage struct {
	ID        string            `json:"id"`
	BrandID   string            `json:"brand_id"`
	To        string            `json:"to"`
	FromName  string            `json:"from_name"`
	FromEmail string            `json:"from_email"`
	ReplyTo   string            `json:"reply_to,omitempty"`
	Subject   string            `json:"subject"`
	HTML      string            `json:"html"`
	Text      string            `json:"text,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	Tags      map[string]string `json:"tags,omitempty"`
}

// SendResult is what a sender reports back after a delivery attempt.
type SendResult struct {
	MessageID string    `json:"message_id"`
	Provider  string    `json:"provider"`
	SentAt    time.Time `json:"sent_at"`
}

// SendJob is the queue payload for one outgoing message. Key identifies the
// logical send (campaign+contact or enrollment+step) so retries of a
// delivered message are dropped.
type SendJob struct {
	Key         string       `json:"key"`
	Scope       Scope        `json:"scope"`
	ScopeID     string       `json:"scope_id"`
	RecipientID string       `json:"recipient_id"`
	Step        int          `json:"step"`
	Message     EmailMessage `json:"message"`
}
