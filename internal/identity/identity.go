package identity

import (
	"context"

	"github.com/pkg/errors"
)

var (
	// ErrNewPasswordRequired is returned when the account must change its password and none was supplied.
	ErrNewPasswordRequired = errors.New("New password must be provided.")
	ErrInvalidCredentials  = errors.New("Incorrect username or password.")
)

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Username    string
	Password    string
	NewPassword string
}

// Provider authenticates a user and returns a bearer token the API accepts.
type Provider interface {
	Login(ctx context.Context, req LoginRequest) (string, error)
}
