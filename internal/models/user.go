package models

import "time"

// User represents a registered account.
type User struct {
	ID                    string     `json:"id"`
	Username              string     `json:"username"`
	Email                 string     `json:"email"`
	PasswordHash          string     `json:"-"` // Never expose this to the client
	EmailVerifiedAt       *time.Time `json:"emailVerifiedAt,omitempty"`
	VerificationTokenHash *string    `json:"-"`
	ResetTokenHash        *string    `json:"-"`
	ResetTokenExpiresAt   *time.Time `json:"-"`
	CreatedAt             time.Time  `json:"createdAt"`
}

// PublicUser is the view of a user returned by the auth endpoints.
type PublicUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Public strips everything but the id and username.
func (u User) Public() PublicUser {
	return PublicUser{ID: u.ID, Username: u.Username}
}
