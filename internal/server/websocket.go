package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/zeusync/xihe/internal/core/observability/log"
	"github.com/zeusync/xihe/internal/core/session"
)

// QuerySessionID names the query parameter carrying the session of a stream.
const QuerySessionID = "sid"

const streamWriteWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 1024,
	// Mobile clients do not send a browser origin.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleLightingStream serves a websocket where each binary frame is a
// byte_sparse payload and each reply a JSON coefficient message. Failures
// are reported per frame and the stream stays open.
func (s *Server) handleLightingStream(w http.ResponseWriter, r *http.Request) {
	s.requests.Add(1)

	sess, err := s.registry.ResolveString(r.URL.Query().Get(QuerySessionID))
	if err != nil {
		s.failures.Add(1)
		code, status := GetErrorCode(err)
		_ = writeJSON(w, status, ErrorResponse{Code: code, Error: err.Error()})
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.failures.Add(1)
		s.logger.Warn("Websocket upgrade failed", log.Error(err))
		return
	}
	defer conn.Close()

	s.streams.Add(1)
	logger := s.logger.With(log.String("sid", sess.ID.String()))
	logger.Info("Lighting stream opened", log.String("remote", r.RemoteAddr))

	conn.SetReadLimit(s.config.MaxPayloadBytes)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	frames := 0
	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("Lighting stream read failed", log.Error(err))
			}
			break
		}
		frames++

		reply := s.streamReply(ctx, sess, msgType, payload)
		msg, err := json.Marshal(reply)
		if err != nil {
			reply = errorReply(fmt.Errorf("%w: %w", ErrEncodeResponse, err))
			msg, _ = json.Marshal(reply)
		}
		if resp, ok := reply.(ErrorResponse); ok {
			s.failures.Add(1)
			logger.Debug("Lighting frame rejected",
				log.Int("frame", frames),
				log.Int("code", int(resp.Code)),
				log.String("error", resp.Error))
		}

		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			logger.Warn("Lighting stream write failed", log.Error(err))
			break
		}
	}

	logger.Info("Lighting stream closed", log.Int("frames", frames))
}

func (s *Server) streamReply(ctx context.Context, sess *session.Session, msgType int, payload []byte) any {
	if msgType != websocket.BinaryMessage {
		return errorReply(NewError(ErrorCodeInvalidFrame, fmt.Sprintf("unexpected frame type %d", msgType), nil))
	}
	coeffs, err := s.estimate(ctx, sess, payload)
	if err != nil {
		return errorReply(err)
	}
	return EstimationResponse{OK: true, Coefficients: coeffs}
}

func errorReply(err error) ErrorResponse {
	code, _ := GetErrorCode(err)
	return ErrorResponse{Code: code, Error: err.Error()}
}
