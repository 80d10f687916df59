package codec

import "errors"

var (
	ErrMalformedPayload = errors.New("malformed payload")
	ErrAnchorsRequired  = errors.New("format requires an anchor table")
	ErrUnknownFormat    = errors.New("unknown point cloud format")
)
