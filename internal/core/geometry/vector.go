// Package geometry holds the coordinate kernel shared by the codec, the
// cubemap sampler and the spherical harmonics engine: fixed-size float32
// vectors, Euler rotations and the conversions between Cartesian,
// spherical, equirectangular and cube-face coordinates.
//
// Every function is pure and safe for concurrent use.
package geometry

import "github.com/chewxy/math32"

// Vec2 is a 2 component float32 tuple, typically a UV coordinate.
type Vec2 struct {
	X, Y float32
}

// Vec3 is a 3 component float32 tuple used for positions, directions and
// RGB colors alike.
type Vec3 struct {
	X, Y, Z float32
}

func (a Vec3) Add(b Vec3) Vec3      { return Vec3{a.X + b.X, a.Y + b.Y, a.Z + b.Z} }
func (a Vec3) Sub(b Vec3) Vec3      { return Vec3{a.X - b.X, a.Y - b.Y, a.Z - b.Z} }
func (a Vec3) Mul(s float32) Vec3   { return Vec3{a.X * s, a.Y * s, a.Z * s} }
func (a Vec3) Hadamard(b Vec3) Vec3 { return Vec3{a.X * b.X, a.Y * b.Y, a.Z * b.Z} }

// Dot returns the dot product between two vectors.
func (a Vec3) Dot(b Vec3) float32 {
	return a.X*b.X + a.Y*b.Y + a.Z*b.Z
}

// Cross returns the right-handed cross product a × b.
func (a Vec3) Cross(b Vec3) Vec3 {
	return Vec3{
		a.Y*b.Z - a.Z*b.Y,
		a.Z*b.X - a.X*b.Z,
		a.X*b.Y - a.Y*b.X,
	}
}

// Len returns the Euclidean length of the vector.
func (a Vec3) Len() float32 { return math32.Sqrt(a.Dot(a)) }

// Normalize returns a unit-length copy of the vector. The zero vector is
// returned unchanged instead of producing NaNs.
func (a Vec3) Normalize() Vec3 {
	l := a.Len()
	if l == 0 {
		return a
	}
	return Vec3{a.X / l, a.Y / l, a.Z / l}
}

// IsZero reports whether all components are exactly zero.
func (a Vec3) IsZero() bool { return a.X == 0 && a.Y == 0 && a.Z == 0 }

// Array returns the components in x, y, z order.
func (a Vec3) Array() [3]float32 { return [3]float32{a.X, a.Y, a.Z} }

// NearlyEqual compares component-wise with an absolute tolerance.
func (a Vec3) NearlyEqual(b Vec3, tol float32) bool {
	return math32.Abs(a.X-b.X) <= tol &&
		math32.Abs(a.Y-b.Y) <= tol &&
		math32.Abs(a.Z-b.Z) <= tol
}

func (a Vec2) Add(b Vec2) Vec2    { return Vec2{a.X + b.X, a.Y + b.Y} }
func (a Vec2) Mul(s float32) Vec2 { return Vec2{a.X * s, a.Y * s} }

// Len returns the Euclidean length of the vector.
func (a Vec2) Len() float32 { return math32.Sqrt(a.X*a.X + a.Y*a.Y) }

// Radians converts degrees to radians.
func Radians(deg float32) float32 { return deg * math32.Pi / 180 }
