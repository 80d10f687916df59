package server

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zeusync/xihe/internal/core/observability/log"
)

// Recording headers.
const (
	HeaderPayloadType   = "Payload-Type"
	HeaderProbePosition = "Probe-Position"
	HeaderArchiveName   = "Archive-Name"
	HeaderFrameNumber   = "Number-Frame"
)

// Recording payload types.
const (
	RecordingInfo  = "info"
	RecordingRGB   = "rgb"
	RecordingDepth = "depth"
)

const recordingDir = "recording"

var archiveNamePattern = regexp.MustCompile(`^\d{4}/\d{2}/\d{2}/\d{2}_\d{2}_\d{2}(_\d+)?$`)

// ArchiveResponse answers a recording info request.
type ArchiveResponse struct {
	OK          bool   `json:"ok"`
	ArchiveName string `json:"archive_name"`
}

type recordingInfo struct {
	ProbePosition string `yaml:"p_probe"`
}

// handleRecording stores captured camera frames. An info request opens a
// time named archive; rgb and depth requests add one frame to it. Frames
// are 4:3 images.
func (s *Server) handleRecording(w http.ResponseWriter, r *http.Request) error {
	kind := strings.TrimSpace(r.Header.Get(HeaderPayloadType))
	switch kind {
	case RecordingInfo:
		return s.openArchive(w, r)
	case RecordingRGB, RecordingDepth:
	case "":
		return fmt.Errorf("%w: %s", ErrMissingHeader, HeaderPayloadType)
	default:
		return fmt.Errorf("%w: %s=%q", ErrInvalidHeader, HeaderPayloadType, kind)
	}

	dir, err := s.frameDir(r)
	if err != nil {
		return err
	}
	body, err := s.readBody(w, r)
	if err != nil {
		return err
	}

	if kind == RecordingRGB {
		err = storeRGBFrame(dir, body)
	} else {
		err = storeDepthFrame(dir, body)
	}
	if err != nil {
		return err
	}

	s.logger.Debug("Recording frame stored",
		log.String("kind", kind),
		log.String("dir", dir),
		log.Int("bytes", len(body)))
	return writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (s *Server) openArchive(w http.ResponseWriter, r *http.Request) error {
	probe := strings.TrimSpace(r.Header.Get(HeaderProbePosition))
	if probe == "" {
		return fmt.Errorf("%w: %s", ErrMissingHeader, HeaderProbePosition)
	}

	base := time.Now().Format("2006/01/02/15_04_05")
	if err := os.MkdirAll(filepath.Join(s.config.DumpDir, recordingDir, filepath.Dir(base)), 0o755); err != nil {
		return err
	}
	name := base
	for n := 2; ; n++ {
		err := os.Mkdir(filepath.Join(s.config.DumpDir, recordingDir, filepath.FromSlash(name)), 0o755)
		if err == nil {
			break
		}
		if !errors.Is(err, os.ErrExist) {
			return err
		}
		name = base + "_" + strconv.Itoa(n)
	}

	info, err := yaml.Marshal(recordingInfo{ProbePosition: probe})
	if err != nil {
		return err
	}
	path := filepath.Join(s.config.DumpDir, recordingDir, filepath.FromSlash(name), "info.yaml")
	if err := os.WriteFile(path, info, 0o644); err != nil {
		return err
	}

	s.logger.Info("Recording opened", log.String("archive", name), log.String("probe", probe))
	return writeJSON(w, http.StatusOK, ArchiveResponse{OK: true, ArchiveName: name})
}

// frameDir validates the archive and frame headers.
func (s *Server) frameDir(r *http.Request) (string, error) {
	name := strings.TrimSpace(r.Header.Get(HeaderArchiveName))
	if name == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingHeader, HeaderArchiveName)
	}
	if !archiveNamePattern.MatchString(name) {
		return "", fmt.Errorf("%w: %s=%q", ErrInvalidHeader, HeaderArchiveName, name)
	}
	frame, ok, err := headerInt(r, HeaderFrameNumber)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingHeader, HeaderFrameNumber)
	}
	if frame < 0 {
		return "", fmt.Errorf("%w: %s=%d", ErrInvalidHeader, HeaderFrameNumber, frame)
	}

	archive := filepath.Join(s.config.DumpDir, recordingDir, filepath.FromSlash(name))
	if _, err := os.Stat(archive); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrUnknownArchive, name)
		}
		return "", err
	}
	return filepath.Join(archive, strconv.Itoa(frame)), nil
}

// frameShape returns the 4:3 size holding n pixels.
func frameShape(n int) (width, height int, err error) {
	base := int(math.Sqrt(float64(n / 12)))
	if base == 0 || 12*base*base != n {
		return 0, 0, fmt.Errorf("%w: %d pixels do not form a 4:3 frame", ErrInvalidBody, n)
	}
	return 4 * base, 3 * base, nil
}

func storeRGBFrame(dir string, body []byte) error {
	if len(body)%3 != 0 {
		return fmt.Errorf("%w: %d bytes is not whole rgb pixels", ErrInvalidBody, len(body))
	}
	width, height, err := frameShape(len(body) / 3)
	if err != nil {
		return err
	}
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < width*height; i++ {
		img.Pix[i*4] = body[i*3]
		img.Pix[i*4+1] = body[i*3+1]
		img.Pix[i*4+2] = body[i*3+2]
		img.Pix[i*4+3] = 0xff
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return writeImage(filepath.Join(dir, "rgb.png"), img)
}

// storeDepthFrame keeps the raw float32 depth and a 16-bit preview scaled
// to the frame's own depth range.
func storeDepthFrame(dir string, body []byte) error {
	if len(body)%4 != 0 {
		return fmt.Errorf("%w: %d bytes is not whole float32 samples", ErrInvalidBody, len(body))
	}
	width, height, err := frameShape(len(body) / 4)
	if err != nil {
		return err
	}

	depth := make([]float32, width*height)
	lo, hi := float32(math.MaxFloat32), float32(-math.MaxFloat32)
	for i := range depth {
		v := math.Float32frombits(binary.LittleEndian.Uint32(body[i*4:]))
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fmt.Errorf("%w: depth sample %d is %v", ErrInvalidBody, i, v)
		}
		depth[i] = v
		lo, hi = min(lo, v), max(hi, v)
	}

	img := image.NewGray16(image.Rect(0, 0, width, height))
	if hi > lo {
		for i, v := range depth {
			img.SetGray16(i%width, i/width, color.Gray16{Y: uint16((v - lo) / (hi - lo) * math.MaxUint16)})
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := writeImage(filepath.Join(dir, "depth.png"), img); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "depth.bytes"), body, 0o644)
}

func writeImage(path string, img image.Image) error {
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
