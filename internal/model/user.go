package model

import (
	"strings"
	"time"
)

// UserStatus represents the status of a customer account
type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusDisabled UserStatus = "disabled"
)

// User is a storefront customer account
type User struct {
	ID             string     `json:"id"`
	Username       string     `json:"username"`
	Email          string     `json:"email"`
	FirstName      string     `json:"firstName"`
	LastName       string     `json:"lastName"`
	PasswordHash   string     `json:"-"` // never expose password hash
	Status         UserStatus `json:"status"`
	FailedAttempts int        `json:"-"`
	LockedUntil    *time.Time `json:"-"`
	LastLogin      *time.Time `json:"lastLogin,omitempty"`
	CreatedAt      time.Time  `json:"dateJoined"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// IsLocked checks if the account is currently locked out
func (u *User) IsLocked() bool {
	if u.LockedUntil == nil {
		return false
	}
	return time.Now().Before(*u.LockedUntil)
}

// IsActive checks if the account may log in
func (u *User) IsActive() bool {
	return u.Status == UserStatusActive
}

// FullName returns "First Last", or the email when no name is set
func (u *User) FullName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Email
	}
	return name
}
