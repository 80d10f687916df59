package codec

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/x448/float16"

	"github.com/zeusync/xihe/internal/core/geometry"
	"github.com/zeusync/xihe/internal/core/pointcloud"
)

// SparseRecord is one byte_sparse entry.
type SparseRecord struct {
	Index    uint16
	R, G, B  uint8
	Distance float32
}

func putFloat32(b []byte, i int, v float32) {
	binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
}

// EncodeRowMajor writes (x, y, z, r, g, b) per point.
func EncodeRowMajor(pc pointcloud.PointCloud) []byte {
	out := make([]byte, pc.Len()*24)
	for i, p := range pc.Positions {
		c := pc.Color(i)
		rec := out[i*24:]
		for j, v := range [6]float32{p.X, p.Y, p.Z, c.X, c.Y, c.Z} {
			putFloat32(rec, j, v)
		}
	}
	return out
}

func encodeInterleaved(positions []geometry.Vec3, colors []geometry.Vec3) []byte {
	out := make([]byte, len(positions)*24)
	for i, p := range positions {
		c := colors[i]
		rec := out[i*24:]
		for j, v := range [6]float32{p.X, c.X, p.Y, c.Y, p.Z, c.Z} {
			putFloat32(rec, j, v)
		}
	}
	return out
}

// EncodeColumnMajor writes (x, r, y, g, z, b) per point.
func EncodeColumnMajor(pc pointcloud.PointCloud) []byte {
	return encodeInterleaved(pc.Positions, pc.Colors())
}

// EncodeSpherical writes (theta, r, phi, g, radius, b) per point.
func EncodeSpherical(pc pointcloud.PointCloud) []byte {
	sph := make([]geometry.Vec3, pc.Len())
	for i, p := range pc.Positions {
		s := geometry.CartesianToSpherical(p)
		sph[i] = geometry.Vec3{X: s.Theta, Y: s.Phi, Z: s.R}
	}
	return encodeInterleaved(sph, pc.Colors())
}

func encodeFloat4(colors []geometry.Vec3, distances []float32) ([]byte, error) {
	if distances != nil && len(distances) != len(colors) {
		return nil, fmt.Errorf("%w: %d colors, %d distances", ErrMalformedPayload, len(colors), len(distances))
	}
	out := make([]byte, len(colors)*16)
	for i, c := range colors {
		rec := out[i*16:]
		putFloat32(rec, 0, c.X)
		putFloat32(rec, 1, c.Y)
		putFloat32(rec, 2, c.Z)
		if distances != nil {
			putFloat32(rec, 3, distances[i])
		}
	}
	return out, nil
}

// EncodeFloat4Sparse writes (r, g, b, distance) for every anchor in order.
func EncodeFloat4Sparse(colors []geometry.Vec3, distances []float32) ([]byte, error) {
	if distances == nil {
		return nil, fmt.Errorf("%w: distances required", ErrMalformedPayload)
	}
	return encodeFloat4(colors, distances)
}

// EncodeFibSphere writes (r, g, b, 0) for every anchor in order.
func EncodeFibSphere(colors []geometry.Vec3) []byte {
	out, _ := encodeFloat4(colors, nil)
	return out
}

// EncodeByteSparse packs records as-is. Distances are rounded to half precision.
func EncodeByteSparse(records []SparseRecord) []byte {
	out := make([]byte, len(records)*7)
	for i, r := range records {
		rec := out[i*7 : (i+1)*7]
		binary.LittleEndian.PutUint16(rec, r.Index)
		rec[2], rec[3], rec[4] = r.R, r.G, r.B
		binary.LittleEndian.PutUint16(rec[5:], float16.Fromfloat32(r.Distance).Bits())
	}
	return out
}
