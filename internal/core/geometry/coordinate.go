package geometry

import "github.com/chewxy/math32"

// Spherical is (theta, phi, r): colatitude from +Z, azimuth from +X
// towards +Y, and radius.
type Spherical struct {
	Theta, Phi, R float32
}

// CartesianToSpherical converts p to spherical coordinates. Theta is NaN
// when p is the zero vector; callers must guard.
func CartesianToSpherical(p Vec3) Spherical {
	r := p.Len()
	return Spherical{
		Theta: math32.Acos(p.Z / r),
		Phi:   math32.Atan2(p.Y, p.X),
		R:     r,
	}
}

// SphericalToCartesian is the inverse of CartesianToSpherical.
func SphericalToCartesian(s Spherical) Vec3 {
	st, ct := math32.Sincos(s.Theta)
	sp, cp := math32.Sincos(s.Phi)
	return Vec3{
		X: s.R * st * cp,
		Y: s.R * st * sp,
		Z: s.R * ct,
	}
}

// EquirectangularUVToCartesian maps the pixel (u, v) of a width x height
// equirectangular canvas onto a unit direction in the z-up frame. Column 0
// is longitude -180°, the last column +180°; row 0 is colatitude 0°, the
// last row 180°.
func EquirectangularUVToCartesian(uv Vec2, width, height int) Vec3 {
	maxU := float32(width - 1)
	if maxU <= 0 {
		maxU = 1
	}
	maxV := float32(height - 1)
	if maxV <= 0 {
		maxV = 1
	}

	phi := (uv.X/maxU - 0.5) * 2 * math32.Pi
	theta := uv.Y / maxV * math32.Pi

	return SphericalToCartesian(Spherical{Theta: theta, Phi: phi, R: 1})
}

// CartesianToEquirectangularUV returns the integer pixel of a 2H x H canvas
// hit by the direction of p in the y-up canvas frame. Longitude is measured
// from -Z. Coordinates are truncated and clamped into the canvas, so the
// poles land on the first and last rows. The zero vector maps onto a fixed
// equator pixel rather than NaN.
func CartesianToEquirectangularUV(p Vec3, canvasHeight int) (u, v int) {
	n := p.Normalize()
	y := n.Y
	if y > 1 {
		y = 1
	} else if y < -1 {
		y = -1
	}
	theta := math32.Acos(y)

	xz := Vec2{n.X, n.Z}
	l := xz.Len()
	if l == 0 {
		l = 1
	}
	xz = xz.Mul(1 / l)

	// atan2 of the -Z reference axis is -π/2
	phi := math32.Atan2(xz.Y, xz.X) + math32.Pi/2
	if phi < 0 {
		phi += 2 * math32.Pi
	}
	phi = 2*math32.Pi - phi

	width := 2 * canvasHeight
	u = int(phi / (2 * math32.Pi) * float32(width))
	v = int(theta / (math32.Pi + epsilon32) * float32(canvasHeight))

	if u >= width {
		u = width - 1
	}
	if u < 0 {
		u = 0
	}
	if v >= canvasHeight {
		v = canvasHeight - 1
	}
	if v < 0 {
		v = 0
	}
	return u, v
}

// float32 machine epsilon
const epsilon32 = 1.1920929e-07
