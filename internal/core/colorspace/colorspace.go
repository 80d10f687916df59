// Package colorspace converts captured pixel values into the linear
// radiance space the spherical harmonics labels are computed in.
package colorspace

import "github.com/chewxy/math32"

// SRGBToLinear applies the inverse sRGB transfer curve to v in [0,1].
func SRGBToLinear(v float32) float32 {
	if v >= 0.04045 {
		return math32.Pow((v+0.055)/1.055, 2.4)
	}
	return v / 12.92
}

// SRGBToLinearSlice linearizes every value in place.
func SRGBToLinearSlice(values []float32) {
	for i, v := range values {
		values[i] = SRGBToLinear(v)
	}
}

// hdrKnee is the 16-bit code where the HDR encoding switches from linear to
// exponential.
const hdrKnee = 3000

// MapHDR decodes one 16-bit HDR illumination map code into radiance.
func MapHDR(code uint16) float32 {
	c := float32(code)
	if c < hdrKnee {
		return c * 8e-8
	}
	return 0.00024 * math32.Pow(1.0002, c-hdrKnee)
}

// Per-channel gains applied to decoded HDR maps.
var HDRGains = [3]float32{0.8, 1.0, 1.6}

// Luminance returns the Rec. 601 luma of an RGB triple.
func Luminance(r, g, b float32) float32 {
	return 0.2989*r + 0.5870*g + 0.1140*b
}
