package entity

import "errors"

// Domain failures. Handlers map these to HTTP statuses and stable reason
// codes; anything else coming out of the core is an infrastructure error.
var (
	ErrInvalidLocalPart = errors.New("invalid local part")
	ErrTokenUnknown     = errors.New("token unknown")
	ErrTokenDisabled    = errors.New("token disabled")
	ErrTokenExhausted   = errors.New("token exhausted")
	ErrUserExists       = errors.New("user exists")
)
