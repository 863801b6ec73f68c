package domain

import "errors"

var (
	ErrResolutionFailed  = errors.New("identity resolution failed")
	ErrTransportNotReady = errors.New("messaging transport not initialized")
	ErrIllegalTransition = errors.New("status transition not allowed")
	ErrNegotiation       = errors.New("session negotiation failed")
	ErrIdentityNotFound  = errors.New("identity not found")
	ErrChannelNotFound   = errors.New("data channel not found")
	ErrCodecNotFound     = errors.New("codec not found")
	ErrNotOwner          = errors.New("operation restricted to the conversation owner")
)
