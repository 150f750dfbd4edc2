package service

import "errors"

// Service errors. Handlers map these to form errors and status codes.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountLocked      = errors.New("account is temporarily locked")
	ErrAccountNotActive   = errors.New("account is not active")
	ErrEmailAlreadyExists = errors.New("a user with that email address already exists")
	ErrUsernameTaken      = errors.New("a user with that username already exists")
	ErrInvalidEmail       = errors.New("enter a valid email address")
	ErrPasswordTooWeak    = errors.New("password does not meet requirements")
	ErrSamePassword       = errors.New("new password must be different from current password")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrResetTokenExpired  = errors.New("password reset token has expired")
	ErrResetTokenUsed     = errors.New("password reset token has already been used")
	ErrSessionInvalid     = errors.New("session is invalid or has ended")
	ErrNotFound           = errors.New("not found")
)
