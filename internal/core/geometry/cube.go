package geometry

import "fmt"

// CubeFace identifies one of the six faces of a cube map.
type CubeFace int

const (
	CubeFacePosX CubeFace = iota
	CubeFaceNegX
	CubeFacePosY
	CubeFaceNegY
	CubeFacePosZ
	CubeFaceNegZ
)

// CubeFaces lists the faces in storage order.
var CubeFaces = [6]CubeFace{
	CubeFacePosX, CubeFaceNegX,
	CubeFacePosY, CubeFaceNegY,
	CubeFacePosZ, CubeFaceNegZ,
}

func (f CubeFace) String() string {
	switch f {
	case CubeFacePosX:
		return "+x"
	case CubeFaceNegX:
		return "-x"
	case CubeFacePosY:
		return "+y"
	case CubeFaceNegY:
		return "-y"
	case CubeFacePosZ:
		return "+z"
	case CubeFaceNegZ:
		return "-z"
	default:
		return fmt.Sprintf("face(%d)", int(f))
	}
}

// CubeUVToXYZ maps uv in [0,1]^2 on the given face to a direction using
// the common cube mapping convention. The result lies on the cube surface
// and is not normalized.
func CubeUVToXYZ(face CubeFace, uv Vec2) (Vec3, error) {
	uc := 2*uv.X - 1
	vc := 2*uv.Y - 1

	switch face {
	case CubeFacePosX:
		return Vec3{1, vc, -uc}, nil
	case CubeFaceNegX:
		return Vec3{-1, vc, uc}, nil
	case CubeFacePosY:
		return Vec3{uc, 1, -vc}, nil
	case CubeFaceNegY:
		return Vec3{uc, -1, vc}, nil
	case CubeFacePosZ:
		return Vec3{uc, vc, 1}, nil
	case CubeFaceNegZ:
		return Vec3{-uc, vc, -1}, nil
	default:
		return Vec3{}, fmt.Errorf("%w: %d", ErrInvalidCubeFace, int(face))
	}
}
