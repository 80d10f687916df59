package server

import (
	"errors"
	"net/http"

	"github.com/zeusync/xihe/internal/core/anchor"
	"github.com/zeusync/xihe/internal/core/codec"
	"github.com/zeusync/xihe/internal/core/session"
	"github.com/zeusync/xihe/internal/core/sh"
	"github.com/zeusync/xihe/internal/inference"
)

// Server-specific errors
var (
	ErrServerClosed         = errors.New("server is closed")
	ErrServerNotRunning     = errors.New("server is not running")
	ErrServerAlreadyRunning = errors.New("server is already running")
	ErrInvalidConfig        = errors.New("invalid server configuration")
	ErrMissingHeader        = errors.New("missing header")
	ErrInvalidHeader        = errors.New("invalid header")
	ErrPayloadTooLarge      = errors.New("payload too large")
	ErrEstimatorFailed      = errors.New("lighting estimation failed")
	ErrEncodeResponse       = errors.New("response encoding failed")
	ErrInvalidBody          = errors.New("invalid request body")
	ErrUnknownArchive       = errors.New("unknown recording archive")

	errInvalidFrame = errors.New("invalid frame")
)

// ErrorCode is the numeric error code carried in error responses
type ErrorCode int

const (
	ErrorCodeSuccess ErrorCode = 0

	// Request error codes (1000-1999)

	ErrorCodeMalformedPayload ErrorCode = 1001
	ErrorCodeUnknownFormat    ErrorCode = 1002
	ErrorCodeAnchorsRequired  ErrorCode = 1003
	ErrorCodePayloadTooLarge  ErrorCode = 1004
	ErrorCodeMissingHeader    ErrorCode = 1005
	ErrorCodeInvalidHeader    ErrorCode = 1006
	ErrorCodeShapeMismatch    ErrorCode = 1007
	ErrorCodeInvalidFrame     ErrorCode = 1008

	// Session error codes (2000-2999)

	ErrorCodeUnknownSession   ErrorCode = 2001
	ErrorCodeInvalidSessionID ErrorCode = 2002
	ErrorCodeSessionConflict  ErrorCode = 2003

	// Anchor error codes (3000-3999)

	ErrorCodeUnknownAnchorSize ErrorCode = 3001
	ErrorCodeInvalidAnchorSize ErrorCode = 3002

	// Estimation error codes (4000-4999)

	ErrorCodeEstimatorFailed ErrorCode = 4001

	// Recording error codes (5000-5999)

	ErrorCodeUnknownArchive ErrorCode = 5001

	// Generic error codes (9000-9999)

	ErrorCodeInternalError ErrorCode = 9001
	ErrorCodeUnknownError  ErrorCode = 9999
)

// Error is a request error with its code
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new request error
func NewError(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

type errorMapping struct {
	err    error
	code   ErrorCode
	status int
}

// Error mapping from sentinel errors to codes and HTTP statuses, matched
// with errors.Is in order
var errorCodeMap = []errorMapping{
	{codec.ErrMalformedPayload, ErrorCodeMalformedPayload, http.StatusBadRequest},
	{codec.ErrUnknownFormat, ErrorCodeUnknownFormat, http.StatusBadRequest},
	{codec.ErrAnchorsRequired, ErrorCodeAnchorsRequired, http.StatusBadRequest},
	{ErrPayloadTooLarge, ErrorCodePayloadTooLarge, http.StatusRequestEntityTooLarge},
	{ErrMissingHeader, ErrorCodeMissingHeader, http.StatusBadRequest},
	{ErrInvalidHeader, ErrorCodeInvalidHeader, http.StatusBadRequest},
	{sh.ErrShapeMismatch, ErrorCodeShapeMismatch, http.StatusBadRequest},
	{inference.ErrEmptyPointCloud, ErrorCodeShapeMismatch, http.StatusBadRequest},
	{errInvalidFrame, ErrorCodeInvalidFrame, http.StatusBadRequest},
	{ErrInvalidBody, ErrorCodeMalformedPayload, http.StatusBadRequest},

	{session.ErrUnknownSession, ErrorCodeUnknownSession, http.StatusNotFound},
	{session.ErrInvalidSessionID, ErrorCodeInvalidSessionID, http.StatusBadRequest},
	{session.ErrSessionConflict, ErrorCodeSessionConflict, http.StatusConflict},

	{anchor.ErrUnknownAnchorSize, ErrorCodeUnknownAnchorSize, http.StatusNotFound},
	{anchor.ErrInvalidAnchorSize, ErrorCodeInvalidAnchorSize, http.StatusBadRequest},

	{ErrEstimatorFailed, ErrorCodeEstimatorFailed, http.StatusInternalServerError},
	{inference.ErrInvalidOutput, ErrorCodeEstimatorFailed, http.StatusInternalServerError},

	{ErrUnknownArchive, ErrorCodeUnknownArchive, http.StatusNotFound},

	{ErrEncodeResponse, ErrorCodeInternalError, http.StatusInternalServerError},
}

// GetErrorCode returns the error code and HTTP status for err
func GetErrorCode(err error) (ErrorCode, int) {
	var reqErr *Error
	if errors.As(err, &reqErr) {
		for _, m := range errorCodeMap {
			if m.code == reqErr.Code {
				return m.code, m.status
			}
		}
		return reqErr.Code, http.StatusInternalServerError
	}

	for _, m := range errorCodeMap {
		if errors.Is(err, m.err) {
			return m.code, m.status
		}
	}
	return ErrorCodeUnknownError, http.StatusInternalServerError
}
