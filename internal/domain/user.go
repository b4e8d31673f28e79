package domain

import "time"

// User represents a registered user who owns repositories.
type User struct {
	ID             string    `json:"id"         db:"id"`
	Email          string    `json:"email"      db:"email"`
	HashedPassword string    `json:"-"          db:"hashed_password"` // never serialized to JSON
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// UserContext is the authenticated user context injected into request handlers.
type UserContext struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}
