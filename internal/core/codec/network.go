package codec

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/zeusync/xihe/internal/core/geometry"
)

// ColorEncoding identifies the layout of a network measurement upload.
// These payloads carry anchor colors only and exist to compare uplink
// sizes and decode times of the two layouts.
type ColorEncoding uint8

const (
	// IndexedColors packs 14 byte records [index u16][r g b f32].
	IndexedColors ColorEncoding = iota + 1
	// NaiveColors is a bare float32 array of (r, g, b) triples.
	NaiveColors
)

// MeasurementTableSize is the anchor count network measurements scatter into.
const MeasurementTableSize = 1280

const indexedColorStride = 2 + 3*4

// ParseColorEncoding accepts "xihe" or "naive".
func ParseColorEncoding(s string) (ColorEncoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "xihe":
		return IndexedColors, nil
	case "naive":
		return NaiveColors, nil
	default:
		return 0, fmt.Errorf("%w: color encoding %q", ErrUnknownFormat, s)
	}
}

func (e ColorEncoding) String() string {
	switch e {
	case IndexedColors:
		return "xihe"
	case NaiveColors:
		return "naive"
	default:
		return fmt.Sprintf("ColorEncoding(%d)", uint8(e))
	}
}

// DecodeColors decodes a measurement payload. Indexed payloads are
// scattered into a size long table with unobserved anchors left black.
// Naive payloads are returned as sent.
func DecodeColors(e ColorEncoding, payload []byte, size int) ([]geometry.Vec3, error) {
	switch e {
	case IndexedColors:
		return decodeIndexedColors(payload, size)
	case NaiveColors:
		return decodeNaiveColors(payload)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, e)
	}
}

func colorAt(b []byte) geometry.Vec3 {
	return geometry.Vec3{
		X: math.Float32frombits(binary.LittleEndian.Uint32(b)),
		Y: math.Float32frombits(binary.LittleEndian.Uint32(b[4:])),
		Z: math.Float32frombits(binary.LittleEndian.Uint32(b[8:])),
	}
}

func finiteColor(c geometry.Vec3) bool {
	return finite(c.X) && finite(c.Y) && finite(c.Z)
}

func decodeIndexedColors(payload []byte, size int) ([]geometry.Vec3, error) {
	if len(payload)%indexedColorStride != 0 {
		return nil, fmt.Errorf("%w: %s payload of %d bytes is not a multiple of %d",
			ErrMalformedPayload, IndexedColors, len(payload), indexedColorStride)
	}
	n := len(payload) / indexedColorStride

	for i := 0; i < n; i++ {
		rec := payload[i*indexedColorStride:]
		if idx := int(binary.LittleEndian.Uint16(rec)); idx >= size {
			return nil, fmt.Errorf("%w: record %d index %d out of range for %d anchors",
				ErrMalformedPayload, i, idx, size)
		}
		if c := colorAt(rec[2:]); !finiteColor(c) {
			return nil, fmt.Errorf("%w: record %d color %v", ErrMalformedPayload, i, c)
		}
	}

	out := make([]geometry.Vec3, size)
	for i := 0; i < n; i++ {
		rec := payload[i*indexedColorStride:]
		out[binary.LittleEndian.Uint16(rec)] = colorAt(rec[2:])
	}
	return out, nil
}

func decodeNaiveColors(payload []byte) ([]geometry.Vec3, error) {
	if len(payload)%12 != 0 {
		return nil, fmt.Errorf("%w: %s payload of %d bytes is not a multiple of 12",
			ErrMalformedPayload, NaiveColors, len(payload))
	}
	out := make([]geometry.Vec3, len(payload)/12)
	for i := range out {
		c := colorAt(payload[i*12:])
		if !finiteColor(c) {
			return nil, fmt.Errorf("%w: color %d is %v", ErrMalformedPayload, i, c)
		}
		out[i] = c
	}
	return out, nil
}

// EncodeIndexedColors packs colors[i] under indices[i].
func EncodeIndexedColors(indices []uint16, colors []geometry.Vec3) ([]byte, error) {
	if len(indices) != len(colors) {
		return nil, fmt.Errorf("%w: %d indices, %d colors", ErrMalformedPayload, len(indices), len(colors))
	}
	out := make([]byte, len(colors)*indexedColorStride)
	for i, c := range colors {
		rec := out[i*indexedColorStride:]
		binary.LittleEndian.PutUint16(rec, indices[i])
		binary.LittleEndian.PutUint32(rec[2:], math.Float32bits(c.X))
		binary.LittleEndian.PutUint32(rec[6:], math.Float32bits(c.Y))
		binary.LittleEndian.PutUint32(rec[10:], math.Float32bits(c.Z))
	}
	return out, nil
}

// EncodeNaiveColors writes every color as three float32 values.
func EncodeNaiveColors(colors []geometry.Vec3) []byte {
	out := make([]byte, len(colors)*12)
	for i, c := range colors {
		putFloat32(out, i*3, c.X)
		putFloat32(out, i*3+1, c.Y)
		putFloat32(out, i*3+2, c.Z)
	}
	return out
}
