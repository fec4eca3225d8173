package domain

import "time"

// User is an account that owns brands.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	GoogleID     string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Brand is the tenant boundary. Every list, contact, segment, sequence,
// template and campaign belongs to exactly one brand.
type Brand struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	FromName  string    `json:"from_name"`
	FromEmail string    `json:"from_email"`
	ReplyTo   string    `json:"reply_to,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// List groups contacts. Emails are unique within a list.
type List struct {
	ID        string    `json:"id"`
	BrandID   string    `json:"brand_id"`
	Name      string    `json:"name"`
	SubmitKey string    `json:"submit_key,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
