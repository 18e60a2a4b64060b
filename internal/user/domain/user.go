package domain

import (
	"errors"
	"time"
)

// User is an account in the central user store.
type User struct {
	ID             string
	Email          string
	Username       string
	FullName       string
	DocumentType   string
	DocumentNumber string
	PasswordHash   string
	Status         UserStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusDisabled UserStatus = "disabled"
)

// Active reports whether the user may authenticate.
func (u *User) Active() bool {
	return u != nil && u.Status == UserStatusActive
}

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.Email == "" {
		return errors.New("email is required")
	}
	if u.DocumentNumber != "" && u.DocumentType == "" {
		return errors.New("document type is required with a document number")
	}
	if u.Status == "" {
		u.Status = UserStatusActive
	}
	return nil
}
