package services

import "errors"

// Domain-level failures returned by the services. Storage-level sentinels
// from internal/common are translated into these at the service boundary;
// anything else is logged and propagated unchanged.
var (
	ErrUserNotFound          = errors.New("user not found")
	ErrUserAlreadyRegistered = errors.New("user already registered")
	ErrInvalidPassword       = errors.New("invalid password")
	ErrRefreshTokenNotFound  = errors.New("refresh token not found")
)
