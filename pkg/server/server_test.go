package server

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realtime-asr/asr-gateway/pkg/asr"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	backend := asr.NewMockBackend()
	srv := NewServer(Config{
		ModelPath:          "/models/test",
		ChunkSizeSec:       2.0,
		AutoCommitInterval: time.Minute,
		VADThreshold:       0.5,
		VADSilenceMs:       400,
	}, backend)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + WebSocketPath
}

// readEvent reads the next server event and returns its decoded JSON.
func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var event map[string]any
	require.NoError(t, json.Unmarshal(data, &event))
	return event
}

func sendEvent(t *testing.T, conn *websocket.Conn, event map[string]any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(event))
}

func TestWebSocketManualSession(t *testing.T) {
	_, ts := newTestServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	require.NoError(t, err)
	defer conn.Close()

	created := readEvent(t, conn)
	assert.Equal(t, "session.created", created["type"])
	session := created["session"].(map[string]any)
	assert.True(t, strings.HasPrefix(session["id"].(string), "sess_"))

	sendEvent(t, conn, map[string]any{
		"type": "session.update",
		"session": map[string]any{
			"input_audio_format": "pcm16",
			"turn_detection":     nil,
		},
	})
	updated := readEvent(t, conn)
	assert.Equal(t, "session.updated", updated["type"])
	assert.Nil(t, updated["session"].(map[string]any)["turn_detection"])

	audio := base64.StdEncoding.EncodeToString(make([]byte, 3200))
	sendEvent(t, conn, map[string]any{"type": "input_audio_buffer.append", "audio": audio})

	itemCreated := readEvent(t, conn)
	assert.Equal(t, "conversation.item.created", itemCreated["type"])

	// The mock backend emits an interim per feed.
	interim := readEvent(t, conn)
	assert.Equal(t, "conversation.item.input_audio_transcription.text", interim["type"])

	sendEvent(t, conn, map[string]any{"type": "input_audio_buffer.commit"})
	assert.Equal(t, "input_audio_buffer.committed", readEvent(t, conn)["type"])
	assert.Equal(t, "conversation.item.created", readEvent(t, conn)["type"])
	completed := readEvent(t, conn)
	assert.Equal(t, "conversation.item.input_audio_transcription.completed", completed["type"])

	sendEvent(t, conn, map[string]any{"type": "session.finish"})
	assert.Equal(t, "session.finished", readEvent(t, conn)["type"])
}

func TestWebSocketUnknownEvent(t *testing.T) {
	_, ts := newTestServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	require.NoError(t, err)
	defer conn.Close()

	readEvent(t, conn) // session.created

	sendEvent(t, conn, map[string]any{"type": "response.create", "event_id": "evt_9"})
	errEvent := readEvent(t, conn)
	assert.Equal(t, "error", errEvent["type"])
	detail := errEvent["error"].(map[string]any)
	assert.Equal(t, "invalid_event", detail["code"])
	assert.Equal(t, "evt_9", detail["event_id"])
}

func TestWebSocketRejectedWhenModelNotLoaded(t *testing.T) {
	backend := asr.NewMockBackend()
	backend.NotReady = true
	srv := NewServer(Config{}, backend)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestOpsEndpoints(t *testing.T) {
	srv, ts := newTestServer(t)

	var identity map[string]any
	getJSON(t, ts.URL+"/", &identity)
	assert.Equal(t, "asr-gateway", identity["service"])
	assert.Equal(t, WebSocketPath, identity["websocket_endpoint"])

	var health map[string]any
	getJSON(t, ts.URL+"/health", &health)
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, true, health["model_loaded"])

	srv.Metrics().ConnectionOpened()
	srv.Metrics().AddAudioSeconds(1.5)
	srv.Metrics().IncErrors()

	var metrics MetricsSnapshot
	getJSON(t, ts.URL+"/metrics", &metrics)
	assert.Equal(t, int64(1), metrics.Connections.Total)
	assert.Equal(t, int64(1), metrics.Connections.Active)
	assert.Equal(t, 1.5, metrics.Audio.TotalSecondsProcessed)
	assert.Equal(t, int64(1), metrics.Requests.ErrorsTotal)
	assert.Equal(t, 1, metrics.Requests.PerMinute)

	var stats map[string]any
	getJSON(t, ts.URL+"/stats", &stats)
	assert.Equal(t, "/models/test", stats["model"].(map[string]any)["path"])
	require.Contains(t, stats, "metrics")
}

func getJSON(t *testing.T, url string, out any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestMetricsRollingWindow(t *testing.T) {
	m := NewMetrics()
	m.ConnectionOpened()
	m.ConnectionOpened()
	assert.Equal(t, 2, m.requestsPerMinute())

	// Entries older than a minute fall out of the window.
	m.mu.Lock()
	m.requests[0] = time.Now().Add(-2 * time.Minute)
	m.mu.Unlock()
	assert.Equal(t, 1, m.requestsPerMinute())
}
