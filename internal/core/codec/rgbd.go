package codec

import (
	"fmt"

	"github.com/zeusync/xihe/internal/core/pointcloud"
)

// RGBD capture frames are 256x192 depth samples, each an (x, y, z, r, g, b)
// row-major record.
const (
	RGBDFrameWidth  = 256
	RGBDFrameHeight = 192
	RGBDFramePoints = RGBDFrameWidth * RGBDFrameHeight
)

const rgbdFrameBytes = RGBDFramePoints * 24

// DecodeRGBDSession splits a recorded AR session into its frames. The
// payload must hold a whole number of frames.
func DecodeRGBDSession(payload []byte) ([]pointcloud.PointCloud, error) {
	if len(payload) == 0 || len(payload)%rgbdFrameBytes != 0 {
		return nil, fmt.Errorf("%w: rgbd session of %d bytes is not a whole number of %d byte frames",
			ErrMalformedPayload, len(payload), rgbdFrameBytes)
	}
	frames := make([]pointcloud.PointCloud, len(payload)/rgbdFrameBytes)
	for i := range frames {
		pc, err := decodeRowMajor(payload[i*rgbdFrameBytes : (i+1)*rgbdFrameBytes])
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		frames[i] = pc
	}
	return frames, nil
}
