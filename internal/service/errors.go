package service

import (
	"errors"

	"github.com/herald/herald-go/internal/crypto"
	"github.com/herald/herald-go/internal/repository"
)

// Validation errors.
var (
	ErrNameRequired     = errors.New("name is required")
	ErrEmailRequired    = errors.New("email is required")
	ErrPasswordRequired = errors.New("password is required")
	ErrPasswordMismatch = errors.New("password confirmation does not match")
	ErrInvalidPage      = errors.New("page and limit must be positive integers")
)

// Authentication errors. The token errors are the crypto package's own, so
// callers can match on either.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrTokenInvalid       = crypto.ErrTokenInvalid
	ErrTokenExpired       = crypto.ErrTokenExpired
)

var (
	ErrEmailTaken   = errors.New("email already taken")
	ErrUserNotFound = repository.ErrUserNotFound
)
