package anchor

import "errors"

var (
	ErrInvalidAnchorSize = errors.New("invalid anchor size")
	ErrUnknownAnchorSize = errors.New("unknown anchor size")
)
