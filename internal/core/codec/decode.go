package codec

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/x448/float16"

	"github.com/zeusync/xihe/internal/core/anchor"
	"github.com/zeusync/xihe/internal/core/geometry"
	"github.com/zeusync/xihe/internal/core/pointcloud"
)

// Decode turns payload into a dense (N, 6) point cloud. anchors may be nil
// for the dense formats. Malformed input is rejected whole.
func Decode(format Format, payload []byte, anchors *anchor.Table) (pointcloud.PointCloud, error) {
	if format.RequiresAnchors() && anchors == nil {
		return pointcloud.PointCloud{}, fmt.Errorf("%w: %s", ErrAnchorsRequired, format)
	}

	switch format {
	case RowMajor:
		return decodeRowMajor(payload)
	case ColumnMajor:
		return decodeColumnMajor(payload)
	case Spherical:
		return decodeSpherical(payload)
	case Float4Sparse:
		return decodeFloat4Sparse(payload, anchors)
	case FibSphere:
		return decodeFibSphere(payload, anchors)
	case ByteSparse:
		return decodeByteSparse(payload, anchors)
	default:
		return pointcloud.PointCloud{}, fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
}

func checkStride(format Format, payload []byte) (int, error) {
	stride := format.Stride()
	if len(payload)%stride != 0 {
		return 0, fmt.Errorf("%w: %s payload of %d bytes is not a multiple of %d",
			ErrMalformedPayload, format, len(payload), stride)
	}
	if format != ByteSparse {
		// every word of the float formats is an IEEE-754 float32
		for i := 0; i < len(payload)/4; i++ {
			if v := float32At(payload, i); !finite(v) {
				return 0, fmt.Errorf("%w: %s record %d holds %v",
					ErrMalformedPayload, format, i*4/stride, v)
			}
		}
	}
	return len(payload) / stride, nil
}

func finite(v float32) bool {
	return !math.IsNaN(float64(v)) && !math.IsInf(float64(v), 0)
}

func float32At(b []byte, i int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
}

// decodeRowMajor reads (x, y, z, r, g, b) records.
func decodeRowMajor(payload []byte) (pointcloud.PointCloud, error) {
	n, err := checkStride(RowMajor, payload)
	if err != nil {
		return pointcloud.PointCloud{}, err
	}
	pc := pointcloud.Zeros(n)
	for i := 0; i < n; i++ {
		rec := payload[i*24:]
		pc.Positions[i] = geometry.Vec3{X: float32At(rec, 0), Y: float32At(rec, 1), Z: float32At(rec, 2)}
		pc.SetColor(i, geometry.Vec3{X: float32At(rec, 3), Y: float32At(rec, 4), Z: float32At(rec, 5)})
	}
	return pc, nil
}

// interleaved reads records stored as (p0, c0, p1, c1, p2, c2) pairs.
func interleaved(format Format, payload []byte) (pointcloud.PointCloud, error) {
	n, err := checkStride(format, payload)
	if err != nil {
		return pointcloud.PointCloud{}, err
	}
	pc := pointcloud.Zeros(n)
	for i := 0; i < n; i++ {
		rec := payload[i*24:]
		pc.Positions[i] = geometry.Vec3{X: float32At(rec, 0), Y: float32At(rec, 2), Z: float32At(rec, 4)}
		pc.SetColor(i, geometry.Vec3{X: float32At(rec, 1), Y: float32At(rec, 3), Z: float32At(rec, 5)})
	}
	return pc, nil
}

func decodeColumnMajor(payload []byte) (pointcloud.PointCloud, error) {
	return interleaved(ColumnMajor, payload)
}

// decodeSpherical uses the column-major layout with (theta, phi, r) in
// place of (x, y, z).
func decodeSpherical(payload []byte) (pointcloud.PointCloud, error) {
	pc, err := interleaved(Spherical, payload)
	if err != nil {
		return pc, err
	}
	for i, p := range pc.Positions {
		pc.Positions[i] = geometry.SphericalToCartesian(geometry.Spherical{Theta: p.X, Phi: p.Y, R: p.Z})
	}
	return pc, nil
}

// float4 reads one (r, g, b, distance) record per anchor.
func float4(format Format, payload []byte, anchors *anchor.Table, useDistance bool) (pointcloud.PointCloud, error) {
	n, err := checkStride(format, payload)
	if err != nil {
		return pointcloud.PointCloud{}, err
	}
	if n != anchors.Len() {
		return pointcloud.PointCloud{}, fmt.Errorf("%w: %s has %d records for %d anchors",
			ErrMalformedPayload, format, n, anchors.Len())
	}
	pc := pointcloud.Zeros(n)
	for i := 0; i < n; i++ {
		rec := payload[i*16:]
		dir := anchors.At(i)
		if useDistance {
			dir = dir.Mul(float32At(rec, 3))
		}
		pc.Positions[i] = dir
		pc.SetColor(i, geometry.Vec3{X: float32At(rec, 0), Y: float32At(rec, 1), Z: float32At(rec, 2)})
	}
	return pc, nil
}

func decodeFloat4Sparse(payload []byte, anchors *anchor.Table) (pointcloud.PointCloud, error) {
	return float4(Float4Sparse, payload, anchors, true)
}

// decodeFibSphere places every point on the unit anchor direction; the
// fourth float of each record is ignored.
func decodeFibSphere(payload []byte, anchors *anchor.Table) (pointcloud.PointCloud, error) {
	return float4(FibSphere, payload, anchors, false)
}

// decodeByteSparse scatters 7 byte records [index u16][r g b u8][distance f16]
// into a dense table sized cloud. Missing anchors stay zero and a repeated
// index keeps its last record.
func decodeByteSparse(payload []byte, anchors *anchor.Table) (pointcloud.PointCloud, error) {
	n, err := checkStride(ByteSparse, payload)
	if err != nil {
		return pointcloud.PointCloud{}, err
	}
	size := anchors.Len()

	// validate before writing anything
	for i := 0; i < n; i++ {
		rec := payload[i*7 : (i+1)*7]
		if idx := int(binary.LittleEndian.Uint16(rec)); idx >= size {
			return pointcloud.PointCloud{}, fmt.Errorf("%w: record %d index %d out of range for %d anchors",
				ErrMalformedPayload, i, idx, size)
		}
		if d := halfAt(rec, 5); !finite(d) {
			return pointcloud.PointCloud{}, fmt.Errorf("%w: record %d distance %v",
				ErrMalformedPayload, i, d)
		}
	}

	pc := pointcloud.Zeros(size)
	for i := 0; i < n; i++ {
		rec := payload[i*7 : (i+1)*7]
		idx := int(binary.LittleEndian.Uint16(rec))
		dist := halfAt(rec, 5)

		pc.Positions[idx] = anchors.At(idx).Mul(dist)
		pc.SetColor(idx, geometry.Vec3{
			X: float32(rec[2]) / 255,
			Y: float32(rec[3]) / 255,
			Z: float32(rec[4]) / 255,
		})
	}
	return pc, nil
}

func halfAt(b []byte, off int) float32 {
	return float16.Frombits(binary.LittleEndian.Uint16(b[off:])).Float32()
}
