// Package realtimeapi implements the per-connection session engine for the
// realtime ASR protocol: event dispatch, audio buffering, VAD-driven or
// manual utterance segmentation, and transcription event emission.
package realtimeapi

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/realtime-asr/asr-gateway/pkg/realtimeapi/events"
)

// Transport abstracts the underlying connection for session events.
type Transport interface {
	// SendEvent sends a server event to the client.
	SendEvent(event events.ServerEvent) error

	// Close closes the transport connection.
	Close() error
}

// WebSocketTransport wraps a WebSocket connection for session events.
type WebSocketTransport struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	closed bool
}

// NewWebSocketTransport creates a new WebSocket transport.
func NewWebSocketTransport(conn *websocket.Conn) *WebSocketTransport {
	return &WebSocketTransport{
		conn: conn,
	}
}

// SendEvent sends a server event via WebSocket.
func (t *WebSocketTransport) SendEvent(event events.ServerEvent) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return t.conn.WriteMessage(websocket.TextMessage, data)
}

// Close closes the WebSocket connection.
func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	return t.conn.Close()
}
