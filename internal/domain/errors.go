package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrLockHeld      = errors.New("lock already held")
	ErrInvalidRule   = errors.New("invalid rule definition")
	ErrRuleTooLarge  = errors.New("rule payload too large")
	ErrSignalExpired = errors.New("signal expired")
	ErrSignalLevel   = errors.New("signal level too low")
	ErrNoDepth       = errors.New("market has no liquidity")
)
