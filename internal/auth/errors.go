package auth

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInactiveAccount    = errors.New("account is deactivated")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrUserNotFound       = errors.New("user not found")
	ErrConflict           = errors.New("already exists")

	errSessionNotFound = errors.New("refresh session not found")
	errTokenExpired    = errors.New("token expired")
)

// ConflictError names the unique field that collided during registration.
type ConflictError struct {
	Field string
}

func (e *ConflictError) Error() string {
	return e.Field + " already registered"
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}
