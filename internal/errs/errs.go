package errs

import "errors"

// Domain sentinel errors, mapped to HTTP codes in handlers.
var (
	ErrCallNotFound      = errors.New("call not found")
	ErrCallConflict      = errors.New("call was modified concurrently")
	ErrInvalidStatus     = errors.New("invalid call status")
	ErrInvalidTransition = errors.New("invalid call status transition")
	ErrInvalidCallType   = errors.New("invalid call type")
	ErrStatusNotFound    = errors.New("astrologer status not found")
	ErrUnauthorized      = errors.New("token subject does not match astrologer")
)
