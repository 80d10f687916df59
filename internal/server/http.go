package server

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zeusync/xihe/internal/core/anchor"
	"github.com/zeusync/xihe/internal/core/codec"
	"github.com/zeusync/xihe/internal/core/observability/log"
	"github.com/zeusync/xihe/internal/core/pointcloud"
	"github.com/zeusync/xihe/internal/core/session"
	"github.com/zeusync/xihe/pkg/generic"
)

// Request headers understood by the service.
const (
	HeaderAnchorSize = "Anchor-Size"
	HeaderSessionID  = "Session-ID"
	HeaderFileType   = "File-Type"
	HeaderFileName   = "File-Name"
)

// Dump file types stored without point cloud decoding: plain text client
// logs, and recorded AR sessions of whole RGBD frames.
const (
	FileTypeClientLog   = "client_log"
	FileTypeRGBDSession = "rgbd_ar_session"
)

// SessionResponse answers a session request.
type SessionResponse struct {
	OK  bool   `json:"ok"`
	SID string `json:"sid"`
}

// EstimationResponse carries 27 channel-first coefficients.
type EstimationResponse struct {
	OK           bool      `json:"ok"`
	Coefficients []float32 `json:"coefficients"`
}

// ErrorResponse is written for every failed request.
type ErrorResponse struct {
	OK    bool      `json:"ok"`
	Code  ErrorCode `json:"code"`
	Error string    `json:"error"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

type handlerFunc func(w http.ResponseWriter, r *http.Request) error

// handle counts the request and turns a returned error into an error response.
func (s *Server) handle(fn handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		if err := fn(w, r); err != nil {
			s.failures.Add(1)
			code, status := GetErrorCode(err)
			s.logger.Warn("Request failed",
				log.String("path", r.URL.Path),
				log.Int("status", status),
				log.Int("code", int(code)),
				log.Error(err))
			_ = writeJSON(w, status, ErrorResponse{Code: code, Error: err.Error()})
		}
	}
}

// writeJSON encodes v before touching the response, so a value that cannot
// be encoded leaves w untouched and the caller free to report the failure.
func writeJSON(w http.ResponseWriter, status int, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncodeResponse, err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
	return nil
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.MaxPayloadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, fmt.Errorf("%w: limit %d bytes", ErrPayloadTooLarge, tooLarge.Limit)
		}
		return nil, err
	}
	return body, nil
}

func headerInt(r *http.Request, name string) (int, bool, error) {
	raw := strings.TrimSpace(r.Header.Get(name))
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, true, fmt.Errorf("%w: %s=%q", ErrInvalidHeader, name, raw)
	}
	return v, true, nil
}

// handleSession opens a session bound to the requested anchor size.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) error {
	size, ok, err := headerInt(r, HeaderAnchorSize)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrMissingHeader, HeaderAnchorSize)
	}

	sess, err := s.registry.Open(size)
	if err != nil {
		return err
	}

	s.logger.Info("Session opened",
		log.String("sid", sess.ID.String()),
		log.Int("anchor_size", size),
		log.Int("sessions", s.registry.Len()))

	return writeJSON(w, http.StatusOK, SessionResponse{OK: true, SID: sess.ID.String()})
}

// anchorsFor resolves the table a dump refers to: by session first, then by
// explicit size. Neither header, or a format that carries its own
// positions, yields nil.
func (s *Server) anchorsFor(r *http.Request, format codec.Format) (*anchor.Table, error) {
	if !format.RequiresAnchors() {
		return nil, nil
	}
	if sid := strings.TrimSpace(r.Header.Get(HeaderSessionID)); sid != "" {
		sess, err := s.registry.ResolveString(sid)
		if err != nil {
			return nil, err
		}
		return sess.Anchors, nil
	}
	size, ok, err := headerInt(r, HeaderAnchorSize)
	if err != nil || !ok {
		return nil, err
	}
	return s.registry.Anchors().Get(size)
}

// dumpPath returns a file path under the dump directory for a client
// supplied name, stripped of any directory components.
func (s *Server) dumpPath(sub, name string) (string, error) {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "" || base == "." || base == ".." || base == string(filepath.Separator) {
		return "", fmt.Errorf("%w: %s=%q", ErrInvalidHeader, HeaderFileName, name)
	}
	dir := filepath.Join(s.config.DumpDir, sub)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return filepath.Join(dir, base), nil
}

// handleDump decodes an uploaded point cloud and stores it as a dense
// little-endian float32 (N, 6) array. Client logs and RGBD sessions are
// stored verbatim.
func (s *Server) handleDump(w http.ResponseWriter, r *http.Request) error {
	fileType := strings.TrimSpace(r.Header.Get(HeaderFileType))
	if fileType == "" {
		return fmt.Errorf("%w: %s", ErrMissingHeader, HeaderFileType)
	}

	body, err := s.readBody(w, r)
	if err != nil {
		return err
	}

	if fileType == FileTypeClientLog {
		path, err := s.dumpPath("client_logs", stampedName(".txt"))
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, body, 0o644); err != nil {
			return err
		}
		s.logger.Info("Client log stored", log.String("path", path))
		return writeJSON(w, http.StatusOK, okResponse{OK: true})
	}

	if fileType == FileTypeRGBDSession {
		frames, err := codec.DecodeRGBDSession(body)
		if err != nil {
			return err
		}
		path, err := s.dumpPath(FileTypeRGBDSession, stampedName(".bin"))
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, body, 0o644); err != nil {
			return err
		}
		s.logger.Info("RGBD session stored", log.Int("frames", len(frames)), log.String("path", path))
		return writeJSON(w, http.StatusOK, okResponse{OK: true})
	}

	format, err := codec.ParseFormat(fileType)
	if err != nil {
		return err
	}
	path, err := s.dumpPath("", r.Header.Get(HeaderFileName))
	if err != nil {
		return err
	}
	anchors, err := s.anchorsFor(r, format)
	if err != nil {
		return err
	}
	pc, err := codec.Decode(format, body, anchors)
	if err != nil {
		return err
	}

	if err := writeDense(path, pc); err != nil {
		return err
	}

	s.logger.Info("Point cloud stored",
		log.String("format", format.String()),
		log.Int("points", pc.Len()),
		log.String("path", path))

	return writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// stampedName returns a time ordered file name that stays unique within
// the same millisecond.
func stampedName(ext string) string {
	return time.Now().Format("2006-01-02-15-04-05.000") + "-" + uuid.NewString() + ext
}

var densePool = generic.NewPool(func() *bytes.Buffer { return new(bytes.Buffer) }, (*bytes.Buffer).Reset)

// writeDense stores pc as little-endian float32 rows of (x, y, z, r, g, b).
func writeDense(path string, pc pointcloud.PointCloud) error {
	buf := densePool.Get()
	defer densePool.Put(buf)

	data := pc.Array()
	buf.Grow(len(data) * 4)
	var word [4]byte
	for _, v := range data {
		binary.LittleEndian.PutUint32(word[:], math.Float32bits(v))
		buf.Write(word[:])
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// estimate decodes a byte_sparse payload against the session's anchors and
// runs the estimation pipeline.
func (s *Server) estimate(ctx context.Context, sess *session.Session, payload []byte) ([]float32, error) {
	pc, err := codec.Decode(codec.ByteSparse, payload, sess.Anchors)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	coeffs, err := s.pipeline.Run(ctx, pc)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrEstimatorFailed, err)
	}
	s.estimations.Add(1)

	s.logger.Debug("Lighting estimated",
		log.String("sid", sess.ID.String()),
		log.Int("observed", pc.CountNonZero()),
		log.Duration("elapsed", time.Since(start)))
	return coeffs, nil
}

// handleLightingEstimation answers one byte_sparse upload with coefficients.
func (s *Server) handleLightingEstimation(w http.ResponseWriter, r *http.Request) error {
	sid := strings.TrimSpace(r.Header.Get(HeaderSessionID))
	if sid == "" {
		return fmt.Errorf("%w: %s", ErrMissingHeader, HeaderSessionID)
	}
	sess, err := s.registry.ResolveString(sid)
	if err != nil {
		return err
	}
	body, err := s.readBody(w, r)
	if err != nil {
		return err
	}
	coeffs, err := s.estimate(r.Context(), sess, body)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, EstimationResponse{OK: true, Coefficients: coeffs})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	_ = writeJSON(w, http.StatusOK, s.GetStats())
}
