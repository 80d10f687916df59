package session

import "errors"

var (
	ErrUnknownSession   = errors.New("unknown session")
	ErrSessionConflict  = errors.New("session id conflict")
	ErrInvalidSessionID = errors.New("invalid session id")
)
