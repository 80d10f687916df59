package cli

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/png"
	"math"
	"os"

	"github.com/spf13/cobra"
	xdraw "golang.org/x/image/draw"

	"github.com/zeusync/xihe/internal/core/canvas"
	"github.com/zeusync/xihe/internal/core/pointcloud"
	"github.com/zeusync/xihe/internal/core/sh"
)

// NewRenderCommand creates the render command.
func NewRenderCommand(_ *RootOptions) *cobra.Command {
	var (
		output string
		height int
		scale  int
	)

	cmd := &cobra.Command{
		Use:   "render <coefficients.json>",
		Short: "Render SH coefficients as an equirectangular PNG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			coeffs, err := sh.ReadJSON(f, 3)
			if err != nil {
				return err
			}
			c, err := coeffs.ReconstructCanvas(height)
			if err != nil {
				return err
			}
			return writePNG(output, c, scale)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "irradiance.png", "output PNG")
	cmd.Flags().IntVar(&height, "height", 128, "image height; the width is twice this")
	cmd.Flags().IntVar(&scale, "scale", 1, "bilinear upscale factor of the written image")

	return cmd
}

// NewSplatCommand creates the splat command.
func NewSplatCommand(_ *RootOptions) *cobra.Command {
	var (
		output string
		height int
		scale  int
	)

	cmd := &cobra.Command{
		Use:   "splat <dump.bin>",
		Short: "Render a dumped point cloud onto an equirectangular PNG",
		Long: `Read a dense little-endian float32 (N, 6) point cloud written by the
dump endpoint and splat each point's color at its direction.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pc, err := readDump(args[0])
			if err != nil {
				return err
			}
			c, err := canvas.New(2*height, height, 3)
			if err != nil {
				return err
			}
			if err := c.DrawPointCloud(pc); err != nil {
				return err
			}
			cmd.Printf("splatted %d of %d points\n", pc.CountNonZero(), pc.Len())
			return writePNG(output, c, scale)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "points.png", "output PNG")
	cmd.Flags().IntVar(&height, "height", 64, "image height; the width is twice this")
	cmd.Flags().IntVar(&scale, "scale", 1, "bilinear upscale factor of the written image")

	return cmd
}

func readDump(path string) (pointcloud.PointCloud, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return pointcloud.PointCloud{}, err
	}
	if len(raw)%4 != 0 {
		return pointcloud.PointCloud{}, fmt.Errorf("%s: %d bytes is not a float32 array", path, len(raw))
	}
	data := make([]float32, len(raw)/4)
	for i := range data {
		data[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return pointcloud.FromArray(data, 3)
}

// writePNG quantizes c and writes it, enlarged by scale when above one.
func writePNG(path string, c *canvas.Canvas, scale int) error {
	if scale < 1 {
		return fmt.Errorf("invalid scale %d", scale)
	}
	var img image.Image = c.ToImage()
	if scale > 1 {
		b := img.Bounds()
		dst := image.NewNRGBA(image.Rect(0, 0, b.Dx()*scale, b.Dy()*scale))
		xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
		img = dst
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
