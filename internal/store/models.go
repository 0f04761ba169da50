package store

import "time"

type Profile struct {
	ID                    string
	Email                 string
	DisplayName           string
	PasswordHash          string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	APICallCount          int
	RateLimitResetAt      *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type Document struct {
	ID        string
	ProfileID string
	Title     string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Dismissal struct {
	ID         int64
	ProfileID  string
	DocumentID string
	Identifier string
	CreatedAt  time.Time
}
