package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/zeusync/xihe/internal/core/codec"
	"github.com/zeusync/xihe/internal/core/observability/log"
)

// HeaderEncoding selects the layout of a network measurement upload.
const HeaderEncoding = "Encoding"

const measurementDir = "network-testing"

// handleNetworkLog decodes a measurement upload and discards it. Clients
// time the round trip; the server reports how long decoding took.
func (s *Server) handleNetworkLog(w http.ResponseWriter, r *http.Request) error {
	raw := strings.TrimSpace(r.Header.Get(HeaderEncoding))
	if raw == "" {
		return fmt.Errorf("%w: %s", ErrMissingHeader, HeaderEncoding)
	}
	enc, err := codec.ParseColorEncoding(raw)
	if err != nil {
		return err
	}
	body, err := s.readBody(w, r)
	if err != nil {
		return err
	}

	start := time.Now()
	colors, err := codec.DecodeColors(enc, body, codec.MeasurementTableSize)
	if err != nil {
		return err
	}

	s.logger.Debug("Measurement decoded",
		log.String("encoding", enc.String()),
		log.Int("bytes", len(body)),
		log.Int("colors", len(colors)),
		log.Float64("decode_ms", float64(time.Since(start).Microseconds())/1000))

	return writeJSON(w, http.StatusOK, okResponse{OK: true})
}

type measurementLog struct {
	Data *string `json:"data"`
}

// handleNetworkClientLog stores the CSV a client collected during a
// measurement run as the next numbered file.
func (s *Server) handleNetworkClientLog(w http.ResponseWriter, r *http.Request) error {
	body, err := s.readBody(w, r)
	if err != nil {
		return err
	}
	text, err := url.PathUnescape(string(body))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidBody, err)
	}
	var entry measurementLog
	if err := json.Unmarshal([]byte(text), &entry); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidBody, err)
	}
	if entry.Data == nil {
		return fmt.Errorf("%w: missing data", ErrInvalidBody)
	}

	path, err := s.nextMeasurementFile()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(*entry.Data), 0o644); err != nil {
		return err
	}

	s.logger.Info("Measurement results stored", log.String("path", path))
	return writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// nextMeasurementFile creates <n>_client.csv where n is the number of
// results already stored.
func (s *Server) nextMeasurementFile() (string, error) {
	dir := filepath.Join(s.config.DumpDir, measurementDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	existing, err := filepath.Glob(filepath.Join(dir, "*_client.csv"))
	if err != nil {
		return "", err
	}
	for n := len(existing); ; n++ {
		path := filepath.Join(dir, strconv.Itoa(n)+"_client.csv")
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		return path, f.Close()
	}
}
