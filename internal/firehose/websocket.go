package firehose

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Log-Tools/status-ingest/internal/config"
	"github.com/Log-Tools/status-ingest/internal/runner"
)

const (
	handshakeTimeout = 10 * time.Second
	closeGracePeriod = time.Second
)

// FilterRequest is the first frame sent after connecting; the upstream only
// delivers statuses matching one of the tracked keywords
type FilterRequest struct {
	Track []string `json:"track"`
}

// WebSocketFirehose connects to a status stream served over a websocket.
// Each text frame carries one status envelope.
type WebSocketFirehose struct {
	url         string
	bearerToken string
	dialer      *websocket.Dialer
	logger      *zap.Logger
}

// NewWebSocketFirehose creates a firehose client from the live configuration
func NewWebSocketFirehose(cfg config.LiveConfig, logger *zap.Logger) *WebSocketFirehose {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketFirehose{
		url:         cfg.StreamURL,
		bearerToken: cfg.BearerToken,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
		logger: logger.Named("firehose"),
	}
}

// Connect dials the stream and registers the keyword filter
func (f *WebSocketFirehose) Connect(ctx context.Context, keywords []string) (runner.FirehoseStream, error) {
	header := http.Header{}
	if f.bearerToken != "" {
		header.Set("Authorization", "Bearer "+f.bearerToken)
	}

	conn, resp, err := f.dialer.DialContext(ctx, f.url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("firehose %s rejected connection with status %d: %w", f.url, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to dial firehose %s: %w", f.url, err)
	}

	if err := conn.WriteJSON(FilterRequest{Track: keywords}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send filter to firehose: %w", err)
	}

	f.logger.Debug("📡 Filter registered", zap.String("url", f.url), zap.Strings("track", keywords))
	return &webSocketStream{conn: conn}, nil
}

type webSocketStream struct {
	conn      *websocket.Conn
	closeOnce sync.Once
	closeErr  error
}

// Next returns the next non-empty text frame. Blank frames are keep-alives.
func (s *webSocketStream) Next(ctx context.Context) ([]byte, error) {
	// Unblock the pending read when ctx is done
	stop := context.AfterFunc(ctx, func() {
		s.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("failed to read from firehose: %w", err)
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if len(bytes.TrimSpace(data)) == 0 {
			continue
		}
		return data, nil
	}
}

// Close sends a close frame and releases the connection
func (s *webSocketStream) Close() error {
	s.closeOnce.Do(func() {
		deadline := time.Now().Add(closeGracePeriod)
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}
