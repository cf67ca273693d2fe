package auth

import "errors"

var (
	ErrUnauthenticated   = errors.New("auth: unauthenticated")
	ErrForbidden         = errors.New("auth: forbidden")
	ErrNotFound          = errors.New("auth: not found")
	ErrConflict          = errors.New("auth: already exists")
	ErrInvalidInput      = errors.New("auth: invalid input")
	ErrUnknownPermission = errors.New("auth: unknown permission")
)
