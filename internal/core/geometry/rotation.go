package geometry

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Mat3 is a row-major 3x3 float32 matrix.
type Mat3 struct {
	M [3][3]float32
}

// I3 returns the identity matrix.
func I3() Mat3 {
	return Mat3{M: [3][3]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}}
}

// MulVec returns A·v.
func (A Mat3) MulVec(v Vec3) Vec3 {
	return Vec3{
		A.M[0][0]*v.X + A.M[0][1]*v.Y + A.M[0][2]*v.Z,
		A.M[1][0]*v.X + A.M[1][1]*v.Y + A.M[1][2]*v.Z,
		A.M[2][0]*v.X + A.M[2][1]*v.Y + A.M[2][2]*v.Z,
	}
}

// Mul returns A·B.
func (A Mat3) Mul(B Mat3) Mat3 {
	var out Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			var s float32
			for k := 0; k < 3; k++ {
				s += A.M[i][k] * B.M[k][j]
			}
			out.M[i][j] = s
		}
	}
	return out
}

func rotX(a float64) *mat.Dense {
	c, s := math.Cos(a), math.Sin(a)
	return mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, c, -s,
		0, s, c,
	})
}

func rotY(a float64) *mat.Dense {
	c, s := math.Cos(a), math.Sin(a)
	return mat.NewDense(3, 3, []float64{
		c, 0, s,
		0, 1, 0,
		-s, 0, c,
	})
}

func rotZ(a float64) *mat.Dense {
	c, s := math.Cos(a), math.Sin(a)
	return mat.NewDense(3, 3, []float64{
		c, -s, 0,
		s, c, 0,
		0, 0, 1,
	})
}

// EulerMatrixXYZ composes Rz·Ry·Rx for the angles (rx, ry, rz) in radians.
// The product is formed in float64 and rounded once.
func EulerMatrixXYZ(angles Vec3) Mat3 {
	var zy, zyx mat.Dense
	zy.Mul(rotZ(float64(angles.Z)), rotY(float64(angles.Y)))
	zyx.Mul(&zy, rotX(float64(angles.X)))

	var out Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out.M[i][j] = float32(zyx.At(i, j))
		}
	}
	return out
}

// EulerRotationXYZ rotates every point by Rz·Ry·Rx and returns a new slice.
// Two successive calls are not equivalent to one call with summed angles;
// apply corrections in the documented order.
func EulerRotationXYZ(points []Vec3, angles Vec3) []Vec3 {
	R := EulerMatrixXYZ(angles)
	out := make([]Vec3, len(points))
	for i, p := range points {
		out[i] = R.MulVec(p)
	}
	return out
}

// CanvasCorrection is the fixed rotation that maps the z-up spherical
// frame onto the y-up equirectangular canvas frame: (-90°, 0, 0) followed
// by (0, 90°, 0).
func CanvasCorrection() Mat3 {
	first := EulerMatrixXYZ(Vec3{X: Radians(-90)})
	second := EulerMatrixXYZ(Vec3{Y: Radians(90)})
	return second.Mul(first)
}
