// Package anchor generates and caches the Fibonacci-lattice direction
// tables that define the index space of the sparse point-cloud formats.
//
// Index order is part of the wire contract: a client and the server that
// agree on N agree on every direction.
package anchor

import (
	"fmt"
	"math"

	"github.com/zeusync/xihe/internal/core/geometry"
)

// DefaultSizes are the table sizes the service builds at startup.
var DefaultSizes = []int{512, 768, 1024, 1280, 2048}

// Table is an immutable ordered set of unit directions.
type Table struct {
	directions []geometry.Vec3
}

// Generate builds the n point golden-angle lattice. y runs from +1 down to
// -1 and the azimuth advances by π(3-√5) per point. A single point table
// is the +Y pole.
func Generate(n int) (*Table, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAnchorSize, n)
	}
	if n == 1 {
		return &Table{directions: []geometry.Vec3{{Y: 1}}}, nil
	}

	golden := math.Pi * (3 - math.Sqrt(5))
	dirs := make([]geometry.Vec3, n)
	for i := range dirs {
		y := 1 - float64(i)/float64(n-1)*2
		radius := math.Sqrt(1 - y*y)
		theta := golden * float64(i)
		dirs[i] = geometry.Vec3{
			X: float32(math.Cos(theta) * radius),
			Y: float32(y),
			Z: float32(math.Sin(theta) * radius),
		}
	}
	return &Table{directions: dirs}, nil
}

// Len returns the number of anchors.
func (t *Table) Len() int { return len(t.directions) }

// At returns the i-th direction.
func (t *Table) At(i int) geometry.Vec3 { return t.directions[i] }

// Directions returns a copy of every direction in index order.
func (t *Table) Directions() []geometry.Vec3 {
	return append([]geometry.Vec3(nil), t.directions...)
}
