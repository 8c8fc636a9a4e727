package model

import "time"

// User is an account provisioned out of band. Email is stored lower-cased.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// PublicUser is the user shape returned to clients.
type PublicUser struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

func (u *User) Public() PublicUser {
	return PublicUser{ID: u.ID, Email: u.Email, CreatedAt: u.CreatedAt}
}

// VerificationCode is a one-time 6-digit code. Rows are never deleted; Used flips once.
type VerificationCode struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Code      string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	Used      bool      `json:"used"`
	CreatedAt time.Time `json:"created_at"`
}

// Live reports whether the code is unused and not yet expired at now.
func (c *VerificationCode) Live(now time.Time) bool {
	return !c.Used && now.Before(c.ExpiresAt)
}

// N8nAccount is a user's connection to an n8n instance.
// APIKeyEncrypted holds the envelope-encrypted key as stored.
type N8nAccount struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	Name            string    `json:"name"`
	BaseURL         string    `json:"base_url"`
	APIKeyEncrypted string    `json:"-"`
	IsDefault       bool      `json:"is_default"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Workflow mirrors the subset of the n8n workflow object the dashboard renders.
type Workflow struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Active    bool          `json:"active"`
	CreatedAt string        `json:"createdAt"`
	UpdatedAt string        `json:"updatedAt"`
	Tags      []WorkflowTag `json:"tags,omitempty"`
}

type WorkflowTag struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
