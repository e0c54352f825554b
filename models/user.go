package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents an account that can authenticate with a username or email
type User struct {
	ID                uuid.UUID  `json:"id" db:"id"`
	Username          string     `json:"username" db:"username"`
	Email             *string    `json:"email,omitempty" db:"email"`
	HashedPassword    string     `json:"-" db:"hashed_password"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
	PasswordExpiresAt *time.Time `json:"password_expires_at,omitempty" db:"password_expires_at"`
	LastLogin         *time.Time `json:"last_login,omitempty" db:"last_login"`
}

// TableName returns the table name for the User model
func (User) TableName() string {
	return "users"
}

// NewUser creates a new User instance. Email may be empty for accounts
// provisioned without one.
func NewUser(username, email, hashedPassword string) *User {
	now := time.Now().UTC()
	u := &User{
		ID:             uuid.New(),
		Username:       username,
		HashedPassword: hashedPassword,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	u.SetEmail(email)
	return u
}

// HasEmail reports whether an email is on file
func (u *User) HasEmail() bool {
	return u.Email != nil && *u.Email != ""
}

// EmailValue returns the email or an empty string
func (u *User) EmailValue() string {
	if u.Email == nil {
		return ""
	}
	return *u.Email
}

// SetEmail stores email, clearing it when empty
func (u *User) SetEmail(email string) {
	if email == "" {
		u.Email = nil
		return
	}
	u.Email = &email
}

// PasswordExpired reports whether a temporary password has lapsed
func (u *User) PasswordExpired(now time.Time) bool {
	return u.PasswordExpiresAt != nil && !now.Before(*u.PasswordExpiresAt)
}
