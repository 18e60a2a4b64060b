package service

import (
	"errors"
	"fmt"

	exchangeservice "sso-identity-provider/internal/exchange/service"
	sessionservice "sso-identity-provider/internal/session/service"
)

// Sentinel errors for the auth service; the HTTP handler maps them to status codes.
var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInvalidRefreshToken = errors.New("invalid or expired refresh token")
	ErrInvalidExchangeCode = errors.New("invalid or expired exchange code")
	ErrUnauthorizedSystem  = errors.New("unauthorized system")
	ErrSessionInvalid      = errors.New("session invalid or expired")
	ErrUserDisabled        = errors.New("user disabled")
	ErrUserNotFound        = errors.New("user not found")
	ErrValidation          = errors.New("validation failed")
	ErrNoActiveSessions    = sessionservice.ErrNoActiveSessions
)

var authErrors = []error{
	ErrInvalidCredentials, ErrInvalidRefreshToken, ErrInvalidExchangeCode, ErrUnauthorizedSystem,
	ErrSessionInvalid, ErrUserDisabled, ErrUserNotFound, ErrNoActiveSessions,
}

// IsAuthError reports whether err is an expected authentication failure
// as opposed to a validation or infrastructure error.
func IsAuthError(err error) bool {
	for _, target := range authErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// exchangeError maps a redemption step error onto the taxonomy, keeping the step error in the chain.
func exchangeError(err error) error {
	var kind error
	switch {
	case errors.Is(err, exchangeservice.ErrInvalidCode), errors.Is(err, exchangeservice.ErrCodeInvalidUsedOrExpired):
		kind = ErrInvalidExchangeCode
	case errors.Is(err, exchangeservice.ErrSystemNotFound), errors.Is(err, exchangeservice.ErrInvalidSecret):
		kind = ErrUnauthorizedSystem
	case errors.Is(err, exchangeservice.ErrUserNotFound):
		kind = ErrUserNotFound
	case errors.Is(err, exchangeservice.ErrUserDisabled):
		kind = ErrUserDisabled
	case errors.Is(err, exchangeservice.ErrSessionInvalid):
		kind = ErrSessionInvalid
	default:
		return err
	}
	return fmt.Errorf("%w: %w", kind, err)
}
