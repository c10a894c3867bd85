package auth

import "errors"

var (
	ErrUnauthorized  = errors.New("auth: unauthorized")
	ErrForbidden     = errors.New("auth: forbidden")
	ErrInvalidToken  = errors.New("auth: invalid token")
	ErrActorNotFound = errors.New("auth: actor not found")
	ErrActorInactive = errors.New("auth: actor inactive")
)
