// Package client is the Go SDK for the Xihe lighting estimation service.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zeusync/xihe/internal/core/anchor"
	"github.com/zeusync/xihe/internal/core/codec"
	"github.com/zeusync/xihe/internal/core/observability/log"
)

const apiPrefix = "/api/v2"

// Client talks to one Xihe server. A client holds at most one session.
type Client struct {
	http    *http.Client
	baseURL *url.URL

	// Session state
	mx      sync.RWMutex
	sid     string
	anchors *anchor.Table

	// Lifecycle
	closed int32 // atomic bool

	// Configuration and logging
	config Config
	logger log.Log
}

// Config holds configuration for the client
type Config struct {
	// Connection settings
	ServerURL      string
	RequestTimeout time.Duration
	DialTimeout    time.Duration

	// Session settings
	AnchorSize int

	// Logging
	LogLevel log.Level
	Logger   log.Log
}

// DefaultClientConfig returns default client configuration
func DefaultClientConfig() Config {
	return Config{
		ServerURL:      "http://localhost:8080",
		RequestTimeout: 10 * time.Second,
		DialTimeout:    5 * time.Second,
		AnchorSize:     1280,
		LogLevel:       log.LevelInfo,
	}
}

// NewClient creates a client for config.ServerURL
func NewClient(config Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(config.ServerURL, "/"))
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") {
		return nil, fmt.Errorf("%w: server url %q", ErrInvalidConfig, config.ServerURL)
	}
	if config.AnchorSize <= 0 {
		return nil, fmt.Errorf("%w: anchor size %d", ErrInvalidConfig, config.AnchorSize)
	}

	logger := config.Logger
	if logger == nil {
		logger = log.New(config.LogLevel)
	}

	c := &Client{
		http:    &http.Client{Timeout: config.RequestTimeout},
		baseURL: base,
		config:  config,
		logger:  logger.With(log.String("component", "client")),
	}

	c.logger.Info("Client created", log.String("server", base.String()))

	return c, nil
}

// SessionID returns the current session id, or "" before OpenSession.
func (c *Client) SessionID() string {
	c.mx.RLock()
	defer c.mx.RUnlock()
	return c.sid
}

// Anchors returns the anchor table of the current session. Byte sparse
// record indices refer to it.
func (c *Client) Anchors() *anchor.Table {
	c.mx.RLock()
	defer c.mx.RUnlock()
	return c.anchors
}

// OpenSession negotiates a session for the configured anchor size and
// generates the matching anchor table locally.
func (c *Client) OpenSession(ctx context.Context) (string, error) {
	if c.IsClosed() {
		return "", ErrClientClosed
	}

	table, err := anchor.Generate(c.config.AnchorSize)
	if err != nil {
		return "", err
	}

	var resp struct {
		SID string `json:"sid"`
	}
	headers := http.Header{}
	headers.Set("Anchor-Size", strconv.Itoa(c.config.AnchorSize))
	if err := c.post(ctx, "/session/", headers, nil, &resp); err != nil {
		return "", err
	}
	if resp.SID == "" {
		return "", fmt.Errorf("%w: empty session id", ErrInvalidMessage)
	}

	c.mx.Lock()
	c.sid, c.anchors = resp.SID, table
	c.mx.Unlock()

	c.logger.Info("Session opened",
		log.String("sid", resp.SID),
		log.Int("anchor_size", c.config.AnchorSize))

	return resp.SID, nil
}

// Dump uploads an encoded point cloud under name. The current session, if
// any, supplies the anchors for anchor based formats.
func (c *Client) Dump(ctx context.Context, format codec.Format, name string, payload []byte) error {
	if c.IsClosed() {
		return ErrClientClosed
	}
	headers := http.Header{}
	headers.Set("File-Type", format.String())
	headers.Set("File-Name", name)
	if sid := c.SessionID(); sid != "" {
		headers.Set("Session-ID", sid)
	} else if format.RequiresAnchors() {
		headers.Set("Anchor-Size", strconv.Itoa(c.config.AnchorSize))
	}
	return c.post(ctx, "/dump/", headers, payload, nil)
}

// DumpLog uploads a plain text client log.
func (c *Client) DumpLog(ctx context.Context, text string) error {
	if c.IsClosed() {
		return ErrClientClosed
	}
	headers := http.Header{}
	headers.Set("File-Type", "client_log")
	return c.post(ctx, "/dump/", headers, []byte(text), nil)
}

// EstimateLighting sends one set of sparse observations and returns 27
// channel-first coefficients.
func (c *Client) EstimateLighting(ctx context.Context, records []codec.SparseRecord) ([]float32, error) {
	if c.IsClosed() {
		return nil, ErrClientClosed
	}
	sid := c.SessionID()
	if sid == "" {
		return nil, ErrNoSession
	}

	var resp struct {
		Coefficients []float32 `json:"coefficients"`
	}
	headers := http.Header{}
	headers.Set("Session-ID", sid)
	if err := c.post(ctx, "/lighting-estimation/", headers, codec.EncodeByteSparse(records), &resp); err != nil {
		return nil, err
	}
	return resp.Coefficients, nil
}

// StreamLighting opens a websocket bound to the current session.
func (c *Client) StreamLighting(ctx context.Context) (*Stream, error) {
	if c.IsClosed() {
		return nil, ErrClientClosed
	}
	sid := c.SessionID()
	if sid == "" {
		return nil, ErrNoSession
	}

	u := *c.baseURL
	u.Scheme = "ws"
	if c.baseURL.Scheme == "https" {
		u.Scheme = "wss"
	}
	u.Path += apiPrefix + "/lighting-estimation/ws"
	u.RawQuery = url.Values{"sid": {sid}}.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: c.config.DialTimeout}
	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			if apiErr := decodeError(resp); apiErr != nil {
				return nil, apiErr
			}
		}
		c.logger.Error("Failed to open lighting stream", log.Error(err))
		return nil, err
	}

	c.logger.Info("Lighting stream opened", log.String("sid", sid))
	return &Stream{conn: conn, logger: c.logger.With(log.String("sid", sid))}, nil
}

// Close closes the client and releases idle connections
func (c *Client) Close() error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil // Already closed
	}
	c.http.CloseIdleConnections()
	c.logger.Info("Client closed")
	return nil
}

// IsClosed reports whether Close has been called
func (c *Client) IsClosed() bool {
	return atomic.LoadInt32(&c.closed) == 1
}

type envelope struct {
	OK    bool   `json:"ok"`
	Code  int    `json:"code"`
	Error string `json:"error"`
}

func (c *Client) post(ctx context.Context, path string, headers http.Header, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL.String()+apiPrefix+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	for k, v := range headers {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	c.logger.Debug("Request done",
		log.String("path", path),
		log.Int("status", resp.StatusCode),
		log.Duration("elapsed", time.Since(start)))

	if apiErr := decodeError(resp); apiErr != nil {
		return apiErr
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return nil
}

// decodeError returns the service error for a non-2xx response.
func decodeError(resp *http.Response) *APIError {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	var env envelope
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err := json.Unmarshal(raw, &env); err != nil || env.Error == "" {
		return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	}
	return &APIError{Status: resp.StatusCode, Code: env.Code, Message: env.Error}
}

// Stream is a lighting estimation websocket. It is not safe for
// concurrent use.
type Stream struct {
	conn   *websocket.Conn
	closed int32 // atomic bool
	logger log.Log
}

// Estimate sends one frame of sparse observations and waits for its reply.
// A rejected frame returns an *APIError and leaves the stream usable.
func (s *Stream) Estimate(records []codec.SparseRecord) ([]float32, error) {
	if atomic.LoadInt32(&s.closed) == 1 {
		return nil, ErrStreamClosed
	}
	if err := s.conn.WriteMessage(websocket.BinaryMessage, codec.EncodeByteSparse(records)); err != nil {
		return nil, err
	}

	var reply struct {
		envelope
		Coefficients []float32 `json:"coefficients"`
	}
	if err := s.conn.ReadJSON(&reply); err != nil {
		return nil, err
	}
	if !reply.OK {
		return nil, &APIError{Code: reply.Code, Message: reply.Error}
	}
	return reply.Coefficients, nil
}

// Close sends a close frame and closes the connection
func (s *Stream) Close() error {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return nil
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	s.logger.Info("Lighting stream closed")
	return s.conn.Close()
}
