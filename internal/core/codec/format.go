// Package codec decodes the frozen binary point-cloud uplink formats into
// dense colored point clouds, and encodes them for clients and tests.
// Every float is little-endian IEEE-754.
package codec

import (
	"fmt"
	"strings"
)

// Format identifies one wire layout.
type Format uint8

const (
	RowMajor Format = iota + 1
	ColumnMajor
	Spherical
	Float4Sparse
	FibSphere
	ByteSparse
)

// Formats lists every supported format.
var Formats = []Format{RowMajor, ColumnMajor, Spherical, Float4Sparse, FibSphere, ByteSparse}

var formatTags = map[Format]string{
	RowMajor:     "point_cloud_row_major",
	ColumnMajor:  "point_cloud_column_major",
	Spherical:    "point_cloud_spherical_coordinate",
	Float4Sparse: "point_cloud_float4_no_stripe",
	FibSphere:    "point_cloud_fib_sphere",
	ByteSparse:   "point_cloud_xihe_optimized",
}

var formatAliases = map[string]Format{
	"row_major":     RowMajor,
	"column_major":  ColumnMajor,
	"spherical":     Spherical,
	"float4_sparse": Float4Sparse,
	"fib_sphere":    FibSphere,
	"byte_sparse":   ByteSparse,
	"xihe":          ByteSparse,
}

// ParseFormat accepts a wire tag (File-Type header value) or a short name.
func ParseFormat(s string) (Format, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for f, tag := range formatTags {
		if tag == s {
			return f, nil
		}
	}
	if f, ok := formatAliases[s]; ok {
		return f, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// String returns the wire tag.
func (f Format) String() string {
	if tag, ok := formatTags[f]; ok {
		return tag
	}
	return fmt.Sprintf("Format(%d)", uint8(f))
}

// RequiresAnchors reports whether positions are resolved against an anchor table.
func (f Format) RequiresAnchors() bool {
	switch f {
	case Float4Sparse, FibSphere, ByteSparse:
		return true
	default:
		return false
	}
}

// Stride returns the record size in bytes.
func (f Format) Stride() int {
	switch f {
	case RowMajor, ColumnMajor, Spherical:
		return 24
	case Float4Sparse, FibSphere:
		return 16
	case ByteSparse:
		return 7
	default:
		return 0
	}
}
