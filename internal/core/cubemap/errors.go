package cubemap

import "errors"

var (
	ErrInvalidGrid = errors.New("invalid cubemap grid")
)
