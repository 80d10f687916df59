package sh

import "errors"

var (
	ErrUnsupportedDegree = errors.New("unsupported spherical harmonics degree")
	ErrShapeMismatch     = errors.New("spherical harmonics shape mismatch")
	ErrZeroWeight        = errors.New("projection weights sum to zero")
)
