package server

import (
	"net/http"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/xihe/internal/inference"
)

func TestLightingStream(t *testing.T) {
	srv, ts := newTestServer(t, nil)
	sid := openSession(t, ts)

	u := "ws" + strings.TrimPrefix(ts.URL, "http") + APIPrefix + "/lighting-estimation/ws"

	t.Run("rejects unknown session before upgrade", func(t *testing.T) {
		_, resp, err := websocket.DefaultDialer.Dial(u+"?sid="+uuid.NewString(), nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("rejects missing session", func(t *testing.T) {
		_, resp, err := websocket.DefaultDialer.Dial(u, nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("round trip", func(t *testing.T) {
		conn, _, err := websocket.DefaultDialer.Dial(u+"?sid="+sid, nil)
		require.NoError(t, err)
		defer conn.Close()

		for i := 0; i < 3; i++ {
			require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, whitePayload(testAnchorSize)))

			var reply EstimationResponse
			require.NoError(t, conn.ReadJSON(&reply))
			assert.True(t, reply.OK)
			require.Len(t, reply.Coefficients, inference.OutputSize)
			assert.InDelta(t, 3.5449, reply.Coefficients[0], 0.01)
		}
	})

	t.Run("bad frames keep the stream open", func(t *testing.T) {
		conn, _, err := websocket.DefaultDialer.Dial(u+"?sid="+sid, nil)
		require.NoError(t, err)
		defer conn.Close()

		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hello")))
		var reply ErrorResponse
		require.NoError(t, conn.ReadJSON(&reply))
		assert.False(t, reply.OK)
		assert.Equal(t, ErrorCodeInvalidFrame, reply.Code)

		require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{0, 1, 2}))
		require.NoError(t, conn.ReadJSON(&reply))
		assert.Equal(t, ErrorCodeMalformedPayload, reply.Code)

		require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{0x05, 0x00, 0xff, 0xff, 0xff, 0x00, 0x7e}))
		require.NoError(t, conn.ReadJSON(&reply))
		assert.Equal(t, ErrorCodeMalformedPayload, reply.Code)

		require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, whitePayload(8)))
		var ok EstimationResponse
		require.NoError(t, conn.ReadJSON(&ok))
		assert.True(t, ok.OK)
	})

	assert.Equal(t, int64(2), srv.GetStats().Streams)
}
