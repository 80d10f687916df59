package sh

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Label file names written next to each dataset item.
const (
	LDRFile = "shc_ldr.json"
	HDRFile = "shc_hdr.json"
)

// MarshalJSON encodes the coefficients as a flat channel-first list,
// independent of the tagged order.
func (s *SphericalHarmonics) MarshalJSON() ([]byte, error) {
	first := s.Clone()
	first.order = ChannelFirst
	return json.Marshal(first.ToArray())
}

// WriteJSON writes the flat channel-first list followed by a newline.
func (s *SphericalHarmonics) WriteJSON(w io.Writer) error {
	return json.NewEncoder(w).Encode(s)
}

// ReadJSON parses a flat channel-first list of channels x (degree+1)^2 values.
func ReadJSON(r io.Reader, channels int) (*SphericalHarmonics, error) {
	var data []float32
	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrShapeMismatch, err)
	}
	return FromArray(data, channels, ChannelFirst)
}

// SaveLabels writes the LDR and HDR coefficient files into dir.
func SaveLabels(dir string, ldr, hdr *SphericalHarmonics) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for name, s := range map[string]*SphericalHarmonics{LDRFile: ldr, HDRFile: hdr} {
		if s == nil {
			continue
		}
		var buf bytes.Buffer
		if err := s.WriteJSON(&buf); err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dir, name), buf.Bytes(), 0o644); err != nil {
			return err
		}
	}
	return nil
}

// LoadLabels reads the LDR and HDR coefficient files from dir.
func LoadLabels(dir string) (ldr, hdr *SphericalHarmonics, err error) {
	read := func(name string) (*SphericalHarmonics, error) {
		f, err := os.Open(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return ReadJSON(f, 3)
	}
	if ldr, err = read(LDRFile); err != nil {
		return nil, nil, err
	}
	if hdr, err = read(HDRFile); err != nil {
		return nil, nil, err
	}
	return ldr, hdr, nil
}
