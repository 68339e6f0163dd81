package domain

import "time"

// User is a registered account in the credential store. PasswordHash is a
// bcrypt hash and must never reach a client.
type User struct {
	ID           string    `json:"userId"`
	Email        string    `json:"email"`
	Name         string    `json:"name,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}
