package sh

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON_Golden(t *testing.T) {
	s := signalHarmonics(t)
	s.SetOrder(ChannelLast)

	var buf bytes.Buffer
	require.NoError(t, s.WriteJSON(&buf))

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "shc_signal", buf.Bytes())
}

func TestReadJSON(t *testing.T) {
	s := signalHarmonics(t)
	var buf bytes.Buffer
	require.NoError(t, s.WriteJSON(&buf))

	got, err := ReadJSON(&buf, 3)
	require.NoError(t, err)
	assert.Equal(t, s.ToArray(), got.ToArray())

	_, err = ReadJSON(strings.NewReader(`[1, 2`), 3)
	require.ErrorIs(t, err, ErrShapeMismatch)
	_, err = ReadJSON(strings.NewReader(`[1, 2, 3, 4]`), 3)
	require.ErrorIs(t, err, ErrShapeMismatch)
}

func TestSaveLoadLabels(t *testing.T) {
	dir := t.TempDir()
	ldr := signalHarmonics(t)
	hdr := ldr.Clone()
	hdr.Scale(2)

	require.NoError(t, SaveLabels(dir, ldr, hdr))

	gotLDR, gotHDR, err := LoadLabels(dir)
	require.NoError(t, err)
	assert.Equal(t, ldr.ToArray(), gotLDR.ToArray())
	assert.Equal(t, hdr.ToArray(), gotHDR.ToArray())

	_, _, err = LoadLabels(t.TempDir())
	require.Error(t, err)
}
