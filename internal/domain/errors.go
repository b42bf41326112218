package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyExists  = errors.New("already exists")
	ErrRateLimited    = errors.New("rate limited")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInvalidAddress = errors.New("invalid address")
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrMarketSettled  = errors.New("market already settled")
	ErrNotSettled     = errors.New("market not settled")
	ErrRefreshBusy    = errors.New("refresh already in flight")
	ErrLockHeld       = errors.New("lock already held")
	ErrContextDone    = errors.New("context cancelled")
)
