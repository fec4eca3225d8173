package domain

import "time"

// EventKind enumerates engagement events.
type EventKind string

const (
	EventSend        EventKind = "send"
	EventOpen        EventKind = "open"
	EventClick       EventKind = "click"
	EventUnsubscribe EventKind = "unsubscribe"
)

// Scope says what a tracked message belongs to.
type Scope string

const (
	ScopeSequence Scope = "sequence"
	ScopeCampaign Scope = "campaign"
)

// Valid reports whether s is a known scope.
func (s Scope) Valid() bool { return s == ScopeSequence || s == ScopeCampaign }

// TrackingEvent is an append-only engagement record. ScopeID is the sequence
// or campaign; RecipientID is the enrollment (sequences) or contact
// (campaigns). Events are never updated once written.
type TrackingEvent struct {
	ID          string    `json:"id"`
	Kind        EventKind `json:"kind"`
	Scope       Scope     `json:"scope"`
	ScopeID     string    `json:"scope_id"`
	RecipientID string    `json:"recipient_id"`
	Step        int       `json:"step"`
	Email       string    `json:"email"`
	URL         string    `json:"url,omitempty"`
	IP          string    `json:"ip,omitempty"`
	UserAgent   string    `json:"user_agent,omitempty"`
	Country     string    `json:"country,omitempty"`
	City        string    `json:"city,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}
