package geometry

import "errors"

var (
	ErrInvalidCubeFace = errors.New("invalid cube face")
)
