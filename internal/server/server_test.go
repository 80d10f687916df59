package server

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/xihe/internal/core/anchor"
	"github.com/zeusync/xihe/internal/core/codec"
	"github.com/zeusync/xihe/internal/core/observability/log"
	"github.com/zeusync/xihe/internal/core/pointcloud"
	"github.com/zeusync/xihe/internal/core/session"
	"github.com/zeusync/xihe/internal/inference"
)

const testAnchorSize = 512

func newTestServer(t *testing.T, estimator inference.Estimator) (*Server, *httptest.Server) {
	t.Helper()
	return newTestServerLimit(t, estimator, 64*1024)
}

func newTestServerLimit(t *testing.T, estimator inference.Estimator, maxPayload int64) (*Server, *httptest.Server) {
	t.Helper()
	cache := anchor.NewCache()
	require.NoError(t, cache.Warm([]int{testAnchorSize}))

	config := DefaultServerConfig()
	config.DumpDir = t.TempDir()
	config.MaxPayloadBytes = maxPayload

	if estimator == nil {
		estimator = inference.ProjectionEstimator{}
	}
	srv, err := NewServer(config, session.NewRegistry(cache), inference.Pipeline{Estimator: estimator}, log.NewNop())
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func post(t *testing.T, url string, headers map[string]string, body []byte) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func openSession(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	resp, out := post(t, ts.URL+APIPrefix+"/session/", map[string]string{
		HeaderAnchorSize: strconv.Itoa(testAnchorSize),
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, out["ok"])
	sid, ok := out["sid"].(string)
	require.True(t, ok)
	return sid
}

// whitePayload observes every anchor with a white color at unit distance.
func whitePayload(n int) []byte {
	records := make([]codec.SparseRecord, n)
	for i := range records {
		records[i] = codec.SparseRecord{Index: uint16(i), R: 255, G: 255, B: 255, Distance: 1}
	}
	return codec.EncodeByteSparse(records)
}

func errorCode(out map[string]any) ErrorCode {
	code, _ := out["code"].(float64)
	return ErrorCode(code)
}

func TestNewServer_Validates(t *testing.T) {
	registry := session.NewRegistry(anchor.NewCache())

	_, err := NewServer(DefaultServerConfig(), nil, inference.Pipeline{Estimator: inference.ProjectionEstimator{}}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewServer(DefaultServerConfig(), registry, inference.Pipeline{}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	config := DefaultServerConfig()
	config.MaxPayloadBytes = 0
	_, err = NewServer(config, registry, inference.Pipeline{Estimator: inference.ProjectionEstimator{}}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSession(t *testing.T) {
	srv, ts := newTestServer(t, nil)

	t.Run("opens", func(t *testing.T) {
		sid := openSession(t, ts)
		_, err := uuid.Parse(sid)
		require.NoError(t, err)
		assert.Equal(t, 1, srv.registry.Len())
	})

	t.Run("missing header", func(t *testing.T) {
		resp, out := post(t, ts.URL+APIPrefix+"/session/", nil, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, false, out["ok"])
		assert.Equal(t, ErrorCodeMissingHeader, errorCode(out))
	})

	t.Run("not a number", func(t *testing.T) {
		resp, out := post(t, ts.URL+APIPrefix+"/session/", map[string]string{HeaderAnchorSize: "many"}, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, ErrorCodeInvalidHeader, errorCode(out))
	})

	t.Run("invalid size", func(t *testing.T) {
		resp, out := post(t, ts.URL+APIPrefix+"/session/", map[string]string{HeaderAnchorSize: "0"}, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, ErrorCodeInvalidAnchorSize, errorCode(out))
	})

	t.Run("method not allowed", func(t *testing.T) {
		resp, err := http.Get(ts.URL + APIPrefix + "/session/")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})
}

func TestLightingEstimation(t *testing.T) {
	srv, ts := newTestServer(t, nil)
	sid := openSession(t, ts)
	url := ts.URL + APIPrefix + "/lighting-estimation/"

	t.Run("uniform white", func(t *testing.T) {
		resp, err := http.DefaultClient.Do(mustRequest(t, url, sid, whitePayload(testAnchorSize)))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var out EstimationResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		assert.True(t, out.OK)
		require.Len(t, out.Coefficients, inference.OutputSize)
		for c := 0; c < 3; c++ {
			assert.InDelta(t, 3.5449, out.Coefficients[c*9], 0.01)
		}
	})

	t.Run("malformed payload", func(t *testing.T) {
		resp, out := post(t, url, map[string]string{HeaderSessionID: sid}, []byte{1, 2, 3})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, ErrorCodeMalformedPayload, errorCode(out))
	})

	t.Run("index out of range", func(t *testing.T) {
		body := codec.EncodeByteSparse([]codec.SparseRecord{{Index: testAnchorSize, R: 1, Distance: 1}})
		resp, out := post(t, url, map[string]string{HeaderSessionID: sid}, body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, ErrorCodeMalformedPayload, errorCode(out))
	})

	t.Run("non-finite distance", func(t *testing.T) {
		for _, body := range [][]byte{
			{0x05, 0x00, 0xff, 0xff, 0xff, 0x00, 0x7e},
			{0x05, 0x00, 0xff, 0xff, 0xff, 0x00, 0x7c},
		} {
			resp, out := post(t, url, map[string]string{HeaderSessionID: sid}, body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, ErrorCodeMalformedPayload, errorCode(out))
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		resp, out := post(t, url, map[string]string{HeaderSessionID: uuid.NewString()}, whitePayload(1))
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, ErrorCodeUnknownSession, errorCode(out))
	})

	t.Run("bad session id", func(t *testing.T) {
		resp, out := post(t, url, map[string]string{HeaderSessionID: "nope"}, whitePayload(1))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, ErrorCodeInvalidSessionID, errorCode(out))
	})

	t.Run("payload too large", func(t *testing.T) {
		body := make([]byte, srv.config.MaxPayloadBytes+7)
		resp, out := post(t, url, map[string]string{HeaderSessionID: sid}, body)
		assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
		assert.Equal(t, ErrorCodePayloadTooLarge, errorCode(out))
	})

	stats := srv.GetStats()
	assert.Equal(t, int64(1), stats.Estimations)
	assert.GreaterOrEqual(t, stats.Failures, int64(7))
}

func mustRequest(t *testing.T, url, sid string, body []byte) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set(HeaderSessionID, sid)
	return req
}

func TestLightingEstimation_EstimatorFailure(t *testing.T) {
	failing := inference.EstimatorFunc(func(context.Context, pointcloud.PointCloud) ([]float32, error) {
		return nil, errors.New("model unavailable")
	})
	_, ts := newTestServer(t, failing)
	sid := openSession(t, ts)

	resp, out := post(t, ts.URL+APIPrefix+"/lighting-estimation/", map[string]string{HeaderSessionID: sid}, whitePayload(4))
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, ErrorCodeEstimatorFailed, errorCode(out))
	assert.Contains(t, out["error"], "model unavailable")
}

func TestLightingEstimation_NonFiniteOutput(t *testing.T) {
	nan := inference.EstimatorFunc(func(context.Context, pointcloud.PointCloud) ([]float32, error) {
		out := make([]float32, inference.OutputSize)
		out[13] = float32(math.NaN())
		return out, nil
	})
	_, ts := newTestServer(t, nan)
	sid := openSession(t, ts)

	resp, out := post(t, ts.URL+APIPrefix+"/lighting-estimation/", map[string]string{HeaderSessionID: sid}, whitePayload(4))
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, ErrorCodeEstimatorFailed, errorCode(out))
}

func TestWriteJSON(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	unencodable := EstimationResponse{OK: true, Coefficients: []float32{float32(math.Inf(1))}}

	t.Run("leaves the response untouched", func(t *testing.T) {
		rec := httptest.NewRecorder()
		err := writeJSON(rec, http.StatusOK, unencodable)
		require.ErrorIs(t, err, ErrEncodeResponse)
		assert.False(t, rec.Flushed)
		assert.Empty(t, rec.Header().Get("Content-Type"))
		assert.Zero(t, rec.Body.Len())
	})

	t.Run("reported as internal error", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h := srv.handle(func(w http.ResponseWriter, _ *http.Request) error {
			return writeJSON(w, http.StatusOK, unencodable)
		})
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		var out map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
		assert.Equal(t, false, out["ok"])
		assert.Equal(t, ErrorCodeInternalError, errorCode(out))
	})
}

func readDense(t *testing.T, path string) []float32 {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Zero(t, len(raw)%4)
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out
}

func TestDump(t *testing.T) {
	srv, ts := newTestServer(t, nil)
	url := ts.URL + APIPrefix + "/dump/"

	t.Run("row major", func(t *testing.T) {
		data := []float32{
			1, 2, 3, 0.1, 0.2, 0.3,
			-1, 0, 4, 0.5, 0.6, 0.7,
		}
		pc, err := pointcloud.FromArray(data, 3)
		require.NoError(t, err)

		resp, out := post(t, url, map[string]string{
			HeaderFileType: "row_major",
			HeaderFileName: "../../escape",
		}, codec.EncodeRowMajor(pc))
		require.Equal(t, http.StatusOK, resp.StatusCode, out)

		assert.Equal(t, data, readDense(t, filepath.Join(srv.config.DumpDir, "escape")))
	})

	t.Run("non-finite values", func(t *testing.T) {
		pc, err := pointcloud.FromArray([]float32{1, 2, 3, float32(math.NaN()), 0, 0}, 3)
		require.NoError(t, err)
		resp, out := post(t, url, map[string]string{
			HeaderFileType: "row_major",
			HeaderFileName: "nan.bin",
		}, codec.EncodeRowMajor(pc))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, ErrorCodeMalformedPayload, errorCode(out))
		assert.NoFileExists(t, filepath.Join(srv.config.DumpDir, "nan.bin"))
	})

	t.Run("byte sparse by anchor size", func(t *testing.T) {
		resp, out := post(t, url, map[string]string{
			HeaderFileType:   "byte_sparse",
			HeaderFileName:   "sparse.bin",
			HeaderAnchorSize: strconv.Itoa(testAnchorSize),
		}, whitePayload(2))
		require.Equal(t, http.StatusOK, resp.StatusCode, out)

		dense := readDense(t, filepath.Join(srv.config.DumpDir, "sparse.bin"))
		require.Len(t, dense, testAnchorSize*6)
		assert.Equal(t, []float32{1, 1, 1}, dense[3:6])
		assert.Equal(t, make([]float32, 6), dense[2*6:3*6])
	})

	t.Run("anchors required", func(t *testing.T) {
		resp, out := post(t, url, map[string]string{
			HeaderFileType: "fib_sphere",
			HeaderFileName: "fib.bin",
		}, codec.EncodeFibSphere(nil))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, ErrorCodeAnchorsRequired, errorCode(out))
	})

	t.Run("unknown anchor size", func(t *testing.T) {
		resp, out := post(t, url, map[string]string{
			HeaderFileType:   "byte_sparse",
			HeaderFileName:   "x.bin",
			HeaderAnchorSize: "999",
		}, whitePayload(1))
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, ErrorCodeUnknownAnchorSize, errorCode(out))
	})

	t.Run("unknown format", func(t *testing.T) {
		resp, out := post(t, url, map[string]string{
			HeaderFileType: "png",
			HeaderFileName: "x.bin",
		}, []byte{})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, ErrorCodeUnknownFormat, errorCode(out))
	})

	t.Run("invalid file name", func(t *testing.T) {
		resp, out := post(t, url, map[string]string{
			HeaderFileType: "row_major",
			HeaderFileName: "..",
		}, []byte{})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, ErrorCodeInvalidHeader, errorCode(out))
	})

	t.Run("client log", func(t *testing.T) {
		resp, out := post(t, url, map[string]string{HeaderFileType: FileTypeClientLog}, []byte("frame dropped\n"))
		require.Equal(t, http.StatusOK, resp.StatusCode, out)

		entries, err := os.ReadDir(filepath.Join(srv.config.DumpDir, "client_logs"))
		require.NoError(t, err)
		require.Len(t, entries, 1)
		raw, err := os.ReadFile(filepath.Join(srv.config.DumpDir, "client_logs", entries[0].Name()))
		require.NoError(t, err)
		assert.Equal(t, "frame dropped\n", string(raw))

		// back to back uploads land in distinct files
		for i := 0; i < 2; i++ {
			resp, out := post(t, url, map[string]string{HeaderFileType: FileTypeClientLog}, []byte("burst\n"))
			require.Equal(t, http.StatusOK, resp.StatusCode, out)
		}
		entries, err = os.ReadDir(filepath.Join(srv.config.DumpDir, "client_logs"))
		require.NoError(t, err)
		assert.Len(t, entries, 3)
	})

	t.Run("dense format ignores session", func(t *testing.T) {
		pc, err := pointcloud.FromArray([]float32{1, 2, 3, 0.1, 0.2, 0.3}, 3)
		require.NoError(t, err)
		resp, out := post(t, url, map[string]string{
			HeaderFileType:  "row_major",
			HeaderFileName:  "dense.bin",
			HeaderSessionID: uuid.NewString(),
		}, codec.EncodeRowMajor(pc))
		require.Equal(t, http.StatusOK, resp.StatusCode, out)
		assert.FileExists(t, filepath.Join(srv.config.DumpDir, "dense.bin"))
	})
}

func TestDump_RGBDSession(t *testing.T) {
	srv, ts := newTestServerLimit(t, nil, 4<<20)
	url := ts.URL + APIPrefix + "/dump/"

	frame := codec.RGBDFramePoints * 24
	body := make([]byte, 2*frame)
	binary.LittleEndian.PutUint32(body[frame:], math.Float32bits(1.5))

	resp, out := post(t, url, map[string]string{HeaderFileType: FileTypeRGBDSession}, body)
	require.Equal(t, http.StatusOK, resp.StatusCode, out)

	entries, err := os.ReadDir(filepath.Join(srv.config.DumpDir, FileTypeRGBDSession))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	raw, err := os.ReadFile(filepath.Join(srv.config.DumpDir, FileTypeRGBDSession, entries[0].Name()))
	require.NoError(t, err)
	assert.Equal(t, body, raw)

	resp, out = post(t, url, map[string]string{HeaderFileType: FileTypeRGBDSession}, body[:frame+24])
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, ErrorCodeMalformedPayload, errorCode(out))

	binary.LittleEndian.PutUint32(body[frame+4:], math.Float32bits(float32(math.Inf(1))))
	resp, out = post(t, url, map[string]string{HeaderFileType: FileTypeRGBDSession}, body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, ErrorCodeMalformedPayload, errorCode(out))
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t, nil)
	openSession(t, ts)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	var stats Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.True(t, stats.OK)
	assert.Equal(t, 1, stats.Sessions)
	assert.Equal(t, []int{testAnchorSize}, stats.AnchorSizes)
	assert.Equal(t, int64(1), stats.Requests)
}

func TestServer_Lifecycle(t *testing.T) {
	config := DefaultServerConfig()
	config.ListenAddr = "127.0.0.1:0"
	srv, err := NewServer(config, session.NewRegistry(anchor.NewCache()), inference.Pipeline{Estimator: inference.ProjectionEstimator{}}, nil)
	require.NoError(t, err)

	assert.ErrorIs(t, srv.Stop(context.Background()), ErrServerNotRunning)

	require.NoError(t, srv.Start(context.Background()))
	assert.True(t, srv.IsRunning())
	assert.ErrorIs(t, srv.Start(context.Background()), ErrServerAlreadyRunning)

	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, srv.Close())
	assert.False(t, srv.IsRunning())
	assert.ErrorIs(t, srv.Start(context.Background()), ErrServerClosed)
}

func TestGetErrorCode(t *testing.T) {
	code, status := GetErrorCode(NewError(ErrorCodeInvalidFrame, "text frame", nil))
	assert.Equal(t, ErrorCodeInvalidFrame, code)
	assert.Equal(t, http.StatusBadRequest, status)

	code, status = GetErrorCode(errors.New("boom"))
	assert.Equal(t, ErrorCodeUnknownError, code)
	assert.Equal(t, http.StatusInternalServerError, status)

	code, status = GetErrorCode(session.ErrSessionConflict)
	assert.Equal(t, ErrorCodeSessionConflict, code)
	assert.Equal(t, http.StatusConflict, status)
	for _, tc := range []struct {
		err    error
		code   ErrorCode
		status int
	}{
		{fmt.Errorf("%w: %w", ErrEstimatorFailed, inference.ErrInvalidOutput), ErrorCodeEstimatorFailed, http.StatusInternalServerError},
		{fmt.Errorf("%w: NaN", ErrEncodeResponse), ErrorCodeInternalError, http.StatusInternalServerError},
		{fmt.Errorf("%w: missing data", ErrInvalidBody), ErrorCodeMalformedPayload, http.StatusBadRequest},
		{fmt.Errorf("%w: 2024/01/01/00_00_00", ErrUnknownArchive), ErrorCodeUnknownArchive, http.StatusNotFound},
	} {
		code, status := GetErrorCode(tc.err)
		assert.Equal(t, tc.code, code, tc.err.Error())
		assert.Equal(t, tc.status, status, tc.err.Error())
	}
}
