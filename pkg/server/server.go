package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/realtime-asr/asr-gateway/pkg/asr"
	"github.com/realtime-asr/asr-gateway/pkg/realtimeapi"
	"github.com/realtime-asr/asr-gateway/pkg/realtimeapi/events"
	"github.com/realtime-asr/asr-gateway/pkg/trace"
	"github.com/realtime-asr/asr-gateway/pkg/vad"
)

// WebSocketPath is the realtime endpoint clients connect to.
const WebSocketPath = "/api-ws/v1/realtime"

const (
	// Keepalive: ping every 30 s, expect traffic within 60 s.
	pingInterval = 30 * time.Second
	readTimeout  = 60 * time.Second
)

// Server is the gateway's HTTP/WebSocket front. It owns the shared
// transcription backend, process metrics, and all live sessions.
type Server struct {
	cfg     Config
	backend asr.Backend
	metrics *Metrics

	sessions   map[string]*realtimeapi.Session
	sessionsMu sync.RWMutex

	httpServer *http.Server
	upgrader   websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer creates a server over the given backend.
func NewServer(cfg Config, backend asr.Backend) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		cfg:      cfg,
		backend:  backend,
		metrics:  NewMetrics(),
		sessions: make(map[string]*realtimeapi.Session),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// Metrics exposes the server's metrics collector.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Handler builds the HTTP handler with the websocket and ops endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(WebSocketPath, s.handleWebSocket)
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/stats", s.handleStats)
	return mux
}

// Start begins listening. It returns once the listener is up or has failed.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:    s.cfg.Addr(),
		Handler: s.Handler(),
	}

	log.Printf("ASR gateway starting on %s", s.cfg.Addr())
	log.Printf("WebSocket: ws://%s%s", s.cfg.Addr(), WebSocketPath)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// Stop shuts the server down, closing every live session.
func (s *Server) Stop(ctx context.Context) error {
	s.cancel()

	s.sessionsMu.Lock()
	for _, session := range s.sessions {
		session.Close()
	}
	s.sessions = make(map[string]*realtimeapi.Session)
	s.sessionsMu.Unlock()

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// newDetector builds a VAD detector for sessions. The Silero model is used
// when configured and compiled in; otherwise the energy detector serves.
func (s *Server) newDetector(sampleRate int) vad.DetectorInterface {
	if s.cfg.VADModelPath != "" {
		detector, err := vad.NewDetector(vad.DetectorConfig{
			ModelPath:  s.cfg.VADModelPath,
			SampleRate: sampleRate,
		})
		if err == nil {
			return detector
		}
		log.Printf("silero detector unavailable, falling back to energy detector: %v", err)
	}
	return vad.NewEnergyDetector(0)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.backend.Ready() {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	s.metrics.ConnectionOpened()
	defer s.metrics.ConnectionClosed()

	ctx, span := trace.StartSpan(s.ctx, "session")
	defer span.End()

	session := realtimeapi.NewSession(ctx, realtimeapi.NewWebSocketTransport(conn), realtimeapi.SessionOptions{
		Backend:            s.backend,
		NewDetector:        s.newDetector,
		VADEnabled:         s.cfg.VADEnabled,
		VADThreshold:       s.cfg.VADThreshold,
		VADSilenceMs:       s.cfg.VADSilenceMs,
		ChunkSizeSec:       s.cfg.ChunkSizeSec,
		AutoCommitInterval: s.cfg.AutoCommitInterval,
		OnAudioSeconds:     s.metrics.AddAudioSeconds,
		OnError:            s.metrics.IncErrors,
		Debug:              s.cfg.LogLevel == "debug",
	})
	span.SetAttributes(trace.SessionAttrs(session.ID)...)

	s.registerSession(session)
	session.SetOnClose(func(sess *realtimeapi.Session) {
		s.unregisterSession(sess)
	})

	log.Printf("[session %s] connection accepted", session.ID)

	if err := session.Start(); err != nil {
		log.Printf("[session %s] failed to start: %v", session.ID, err)
		session.Close()
		return
	}

	s.readLoop(session, conn)
	session.Close()
}

// readLoop drives the session from inbound frames until the client
// disconnects, the session finishes, or the server stops.
func (s *Server) readLoop(session *realtimeapi.Session, conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	// Keepalive pings. WriteControl is safe alongside the session's write
	// loop.
	pingCtx, stopPings := context.WithCancel(session.Context())
	defer stopPings()
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-pingCtx.Done():
				return
			case <-ticker.C:
				conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			}
		}
	}()

	for {
		select {
		case <-session.Context().Done():
			return
		case <-s.ctx.Done():
			return
		default:
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Printf("[session %s] read error: %v", session.ID, err)
			} else {
				log.Printf("[session %s] client disconnected", session.ID)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		event, err := events.ParseClientEvent(data)
		if err != nil {
			session.HandleUnknownEvent(err)
			continue
		}

		if err := session.HandleClientEvent(event); err != nil {
			log.Printf("[session %s] event handling error: %v", session.ID, err)
		}

		if session.Finished() {
			return
		}
	}
}

func (s *Server) registerSession(session *realtimeapi.Session) {
	s.sessionsMu.Lock()
	s.sessions[session.ID] = session
	s.sessionsMu.Unlock()
}

func (s *Server) unregisterSession(session *realtimeapi.Session) {
	s.sessionsMu.Lock()
	delete(s.sessions, session.ID)
	s.sessionsMu.Unlock()
}
