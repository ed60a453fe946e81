package realtimeapi

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/realtime-asr/asr-gateway/pkg/asr"
	"github.com/realtime-asr/asr-gateway/pkg/audio"
	"github.com/realtime-asr/asr-gateway/pkg/realtimeapi/events"
	"github.com/realtime-asr/asr-gateway/pkg/vad"
)

// sessionState tracks where the session is in its lifecycle.
type sessionState int

const (
	stateAwaitingConfig sessionState = iota
	stateIdle
	stateItemOpen
	stateFinishing
	stateFinished
)

// DefaultModel is the model name advertised on the wire.
const DefaultModel = "qwen3-asr-flash-realtime"

// SessionOptions holds server-level defaults and shared handles for a new
// session.
type SessionOptions struct {
	// Model name reported in session events. Empty selects DefaultModel.
	Model string

	// Backend is the shared transcription backend.
	Backend asr.Backend

	// NewDetector builds a VAD detector for the given sample rate. Nil
	// selects the energy detector.
	NewDetector func(sampleRate int) vad.DetectorInterface

	// VADEnabled is the default turn detection mode before any
	// session.update arrives.
	VADEnabled bool

	// VADThreshold is the default speech probability threshold.
	VADThreshold float64

	// VADSilenceMs is the default silence duration closing an utterance.
	VADSilenceMs int

	// ChunkSizeSec is the transcriber's streaming chunk size.
	ChunkSizeSec float64

	// AutoCommitInterval bounds how long an item may stay open. Zero
	// selects 60 seconds.
	AutoCommitInterval time.Duration

	// OnAudioSeconds is called with the duration of each decoded frame.
	OnAudioSeconds func(seconds float64)

	// OnError is called whenever an error event is emitted.
	OnError func()

	// Debug enables per-event logging of received and sent event types.
	Debug bool
}

func (o SessionOptions) withDefaults() SessionOptions {
	if o.Model == "" {
		o.Model = DefaultModel
	}
	if o.VADThreshold <= 0 {
		o.VADThreshold = 0.5
	}
	if o.VADSilenceMs <= 0 {
		o.VADSilenceMs = 400
	}
	if o.ChunkSizeSec <= 0 {
		o.ChunkSizeSec = asr.DefaultChunkSizeSec
	}
	if o.AutoCommitInterval <= 0 {
		o.AutoCommitInterval = 60 * time.Second
	}
	if o.NewDetector == nil {
		o.NewDetector = func(sampleRate int) vad.DetectorInterface {
			return vad.NewEnergyDetector(0)
		}
	}
	return o
}

// Session is the per-connection state machine. All client events are
// processed serially on the connection's read goroutine; outbound events go
// through a buffered channel drained by a single write loop; transcription
// runs on the session's worker goroutine.
type Session struct {
	ID string

	opts SessionOptions

	transport Transport
	eventChan chan events.ServerEvent

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	wg       sync.WaitGroup
	closed   bool
	closedCh chan struct{}

	onClose func(session *Session)

	// Protocol state below is only touched by the read goroutine, except
	// currentItemID which the worker reads under mu.
	state sessionState

	audioFormat string
	sampleRate  int
	language    string

	vadEnabled   bool
	vadThreshold float64
	vadSilenceMs int

	decoder   *audio.Decoder
	vadEngine *vad.Engine
	worker    *transcribeWorker

	pending      []float32
	totalSamples int

	currentItemID  string
	previousItemID string
	speechActive   bool

	segmentStart time.Time
	lastCommit   time.Time
}

// NewSession creates a session over the given transport and starts its write
// loop. Call Start to emit session.created, then feed it client events.
func NewSession(ctx context.Context, transport Transport, opts SessionOptions) *Session {
	opts = opts.withDefaults()
	sessionCtx, cancel := context.WithCancel(ctx)

	s := &Session{
		ID:           events.NewSessionID(),
		opts:         opts,
		transport:    transport,
		eventChan:    make(chan events.ServerEvent, 100),
		ctx:          sessionCtx,
		cancel:       cancel,
		closedCh:     make(chan struct{}),
		state:        stateAwaitingConfig,
		audioFormat:  string(events.AudioFormatPCM),
		sampleRate:   audio.TargetSampleRate,
		vadEnabled:   opts.VADEnabled,
		vadThreshold: opts.VADThreshold,
		vadSilenceMs: opts.VADSilenceMs,
	}

	s.wg.Add(1)
	go s.writeLoop()

	return s
}

// Start sends session.created. Default turn detection is advertised even
// before any session.update arrives.
func (s *Session) Start() error {
	return s.SendEvent(events.NewSessionCreatedEvent(s.sessionSnapshot()))
}

// Finished reports whether the session reached its terminal state.
func (s *Session) Finished() bool {
	return s.state == stateFinished
}

// HandleClientEvent processes one client event. Events arriving after the
// session finished are ignored.
func (s *Session) HandleClientEvent(event events.ClientEvent) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil
	}
	s.mu.RUnlock()

	if s.state == stateFinished {
		return nil
	}

	if s.opts.Debug {
		log.Printf("[session %s] received event: %s", s.ID, event.ClientEventType())
	}

	switch e := event.(type) {
	case *events.SessionUpdateEvent:
		return s.handleSessionUpdate(e)

	case *events.InputAudioBufferAppendEvent:
		return s.handleAudioAppend(e)

	case *events.InputAudioBufferCommitEvent:
		return s.handleAudioCommit(e)

	case *events.SessionFinishEvent:
		return s.handleSessionFinish(e)

	default:
		return s.sendError(events.ErrorTypeInvalidRequest, events.ErrorCodeInvalidEvent,
			fmt.Sprintf("Unknown event type: %s", event.ClientEventType()), "type", event.GetEventID())
	}
}

// HandleUnknownEvent reports a parse failure for an unrecognised or malformed
// inbound message without disconnecting.
func (s *Session) HandleUnknownEvent(err error) error {
	var unknown *events.UnknownEventError
	if errors.As(err, &unknown) {
		return s.sendError(events.ErrorTypeInvalidRequest, events.ErrorCodeInvalidEvent,
			fmt.Sprintf("Unknown event type: %s", unknown.Type), "type", unknown.EventID)
	}
	return s.sendError(events.ErrorTypeInvalidRequest, events.ErrorCodeInvalidEvent,
		err.Error(), "", "")
}

func (s *Session) handleSessionUpdate(e *events.SessionUpdateEvent) error {
	cfg := e.Session

	// Work out what the configuration would become, so a strict no-op can
	// still be acknowledged while an item is open.
	next := struct {
		format       string
		sampleRate   int
		language     string
		vadEnabled   bool
		vadThreshold float64
		vadSilenceMs int
	}{
		format:       s.audioFormat,
		sampleRate:   s.sampleRate,
		language:     s.language,
		vadEnabled:   false,
		vadThreshold: s.vadThreshold,
		vadSilenceMs: s.vadSilenceMs,
	}

	if cfg.InputAudioFormat != "" {
		next.format = string(cfg.InputAudioFormat)
	}
	if cfg.SampleRate > 0 {
		next.sampleRate = cfg.SampleRate
	}
	if cfg.InputAudioTranscription != nil {
		next.language = asr.NormalizeLanguage(cfg.InputAudioTranscription.Language)
	}
	if cfg.TurnDetection != nil {
		next.vadEnabled = true
		if cfg.TurnDetection.Threshold > 0 {
			next.vadThreshold = cfg.TurnDetection.Threshold
		} else {
			next.vadThreshold = 0.5
		}
		if cfg.TurnDetection.SilenceDurationMs > 0 {
			next.vadSilenceMs = cfg.TurnDetection.SilenceDurationMs
		} else {
			next.vadSilenceMs = s.opts.VADSilenceMs
		}
	}

	if s.state == stateItemOpen {
		noop := next.format == s.audioFormat &&
			next.sampleRate == s.sampleRate &&
			next.language == s.language &&
			next.vadEnabled == s.vadEnabled &&
			next.vadThreshold == s.vadThreshold &&
			next.vadSilenceMs == s.vadSilenceMs
		if noop {
			return s.SendEvent(events.NewSessionUpdatedEvent(s.sessionSnapshot()))
		}
		return s.sendError(events.ErrorTypeInvalidRequest, events.ErrorCodeReconfigureWhileOpen,
			"session.update is not allowed while an utterance is open", "session", e.GetEventID())
	}

	s.audioFormat = next.format
	s.sampleRate = next.sampleRate
	s.language = next.language
	s.vadEnabled = next.vadEnabled
	s.vadThreshold = next.vadThreshold
	s.vadSilenceMs = next.vadSilenceMs

	if err := s.rebuildPipeline(); err != nil {
		return s.sendError(events.ErrorTypeInternal, events.ErrorCodeServerError,
			err.Error(), "", e.GetEventID())
	}

	if s.state == stateAwaitingConfig {
		s.state = stateIdle
	}

	log.Printf("[session %s] configured: format=%s rate=%d language=%q vad=%v",
		s.ID, s.audioFormat, s.sampleRate, s.language, s.vadEnabled)

	return s.SendEvent(events.NewSessionUpdatedEvent(s.sessionSnapshot()))
}

// rebuildPipeline constructs the decoder, VAD engine, and transcriber from
// the current configuration. Decoded audio is always 16 kHz mono, so the VAD
// engine runs at the target rate regardless of the declared one.
func (s *Session) rebuildPipeline() error {
	s.decoder = audio.NewDecoder(s.audioFormat, s.sampleRate, 1)

	if s.vadEngine != nil {
		s.vadEngine.Destroy()
		s.vadEngine = nil
	}
	if s.vadEnabled {
		engine, err := vad.NewEngine(s.opts.NewDetector(audio.TargetSampleRate), vad.EngineConfig{
			Threshold:         s.vadThreshold,
			SilenceDurationMs: s.vadSilenceMs,
			SampleRate:        audio.TargetSampleRate,
		})
		if err != nil {
			return fmt.Errorf("build vad engine: %w", err)
		}
		s.vadEngine = engine
	}

	tr := asr.NewTranscriber(s.opts.Backend, s.language, s.opts.ChunkSizeSec)
	if s.worker == nil {
		s.worker = newTranscribeWorker(s, tr)
	} else {
		s.worker.flush()
		s.worker.swapTranscriber(tr)
	}

	s.speechActive = false
	return nil
}

// applyLazyDefaults configures the pipeline from server defaults when audio
// arrives before any session.update.
func (s *Session) applyLazyDefaults() error {
	if s.state != stateAwaitingConfig {
		return nil
	}
	if err := s.rebuildPipeline(); err != nil {
		return err
	}
	s.state = stateIdle
	return nil
}

func (s *Session) handleAudioAppend(e *events.InputAudioBufferAppendEvent) error {
	if err := s.applyLazyDefaults(); err != nil {
		return s.sendError(events.ErrorTypeInternal, events.ErrorCodeServerError,
			err.Error(), "", e.GetEventID())
	}

	if e.Audio == "" {
		return nil
	}

	samples, err := s.decoder.DecodeBase64(e.Audio)
	if err != nil {
		code := events.ErrorCodeInvalidAudio
		if errors.Is(err, audio.ErrBadFormat) {
			code = events.ErrorCodeInvalidAudioFormat
		}
		return s.sendError(events.ErrorTypeInvalidRequest, code, err.Error(), "audio", e.GetEventID())
	}
	if len(samples) == 0 {
		return nil
	}

	s.pending = append(s.pending, samples...)
	s.totalSamples += len(samples)
	if s.opts.OnAudioSeconds != nil {
		s.opts.OnAudioSeconds(float64(len(samples)) / float64(audio.TargetSampleRate))
	}

	now := time.Now()

	if s.vadEnabled && s.vadEngine != nil {
		if err := s.processVAD(samples, now); err != nil {
			log.Printf("[session %s] vad: %v", s.ID, err)
		}
	} else if s.currentItemID == "" {
		// Manual mode opens an item on the first audio after a commit.
		s.openItem(now)
		s.SendEvent(events.NewConversationItemCreatedEvent(s.previousItemID, s.currentItemID))
	}

	s.worker.submitFeed(samples)

	return s.checkAutoCommit(now)
}

func (s *Session) processVAD(samples []float32, now time.Time) error {
	boundaries, err := s.vadEngine.Process(samples)

	for _, b := range boundaries {
		if b.Start && !s.speechActive {
			s.speechActive = true
			s.openItem(now)
			s.SendEvent(events.NewInputAudioBufferSpeechStartedEvent(b.AudioStartMs, s.currentItemID))
		}
		if !b.Start && s.speechActive {
			s.finishSpeech(b.AudioEndMs)
		}
	}

	return err
}

// finishSpeech emits speech_stopped for the open item and commits it. Queued
// feeds drain first so every interim for the item precedes speech_stopped.
func (s *Session) finishSpeech(audioEndMs int) {
	if !s.speechActive || s.currentItemID == "" {
		return
	}
	s.speechActive = false

	s.worker.flush()

	s.SendEvent(events.NewInputAudioBufferSpeechStoppedEvent(audioEndMs, s.currentItemID))
	s.commitAudio()
}

func (s *Session) handleAudioCommit(e *events.InputAudioBufferCommitEvent) error {
	if s.vadEnabled {
		return s.sendError(events.ErrorTypeInvalidRequest, events.ErrorCodeCommitNotAllowed,
			"input_audio_buffer.commit is not allowed in VAD mode", "", e.GetEventID())
	}

	if err := s.applyLazyDefaults(); err != nil {
		return s.sendError(events.ErrorTypeInternal, events.ErrorCodeServerError,
			err.Error(), "", e.GetEventID())
	}

	if s.currentItemID == "" {
		// Commit with no buffered audio still produces an (empty) item.
		s.openItem(time.Now())
	}

	s.commitAudio()
	return nil
}

// openItem assigns a fresh item id and starts the segment clock.
func (s *Session) openItem(now time.Time) {
	s.mu.Lock()
	s.currentItemID = events.NewItemID()
	s.mu.Unlock()
	s.segmentStart = now
	if s.state == stateIdle {
		s.state = stateItemOpen
	}
}

// currentItem returns the open item id, or empty. Safe to call from the
// worker goroutine.
func (s *Session) currentItem() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentItemID
}

// commitAudio runs the commit procedure for the open item: flush queued
// feeds, emit committed and created, finalize the transcriber, emit
// completed, then reset per-utterance state.
func (s *Session) commitAudio() {
	itemID := s.currentItemID
	if itemID == "" {
		return
	}

	s.worker.flush()

	s.SendEvent(events.NewInputAudioBufferCommittedEvent(s.previousItemID, itemID))
	s.SendEvent(events.NewConversationItemCreatedEvent(s.previousItemID, itemID))

	final, err := s.worker.finalizeAndReset()
	if err != nil {
		log.Printf("[session %s] finalize: %v", s.ID, err)
		if s.opts.OnError != nil {
			s.opts.OnError()
		}
	}
	s.SendEvent(events.NewTranscriptionCompletedEvent(itemID, final.Language, final.Emotion, final.Transcript))

	s.closeItem(itemID)
	if s.vadEngine != nil {
		s.vadEngine.Reset(s.totalSamples)
	}
	s.speechActive = false
}

// closeItem rotates item ids and clears per-utterance buffers.
func (s *Session) closeItem(itemID string) {
	s.mu.Lock()
	s.previousItemID = itemID
	s.currentItemID = ""
	s.mu.Unlock()

	s.pending = nil
	now := time.Now()
	s.lastCommit = now
	s.segmentStart = now
	if s.state == stateItemOpen {
		s.state = stateIdle
	}
}

func (s *Session) checkAutoCommit(now time.Time) error {
	if s.currentItemID == "" {
		return nil
	}
	if s.segmentStart.IsZero() {
		s.segmentStart = now
		return nil
	}
	if now.Sub(s.segmentStart) < s.opts.AutoCommitInterval {
		return nil
	}

	log.Printf("[session %s] auto-commit after %.1fs", s.ID, now.Sub(s.segmentStart).Seconds())
	s.autoCommit()
	return nil
}

// autoCommit closes the open item with the full commit procedure and
// immediately opens a fresh one so continuous speech keeps flowing. The VAD
// engine is deliberately not reset: an in-progress speech segment continues
// into the new item.
func (s *Session) autoCommit() {
	closing := s.currentItemID
	if closing == "" {
		return
	}

	s.worker.flush()

	s.SendEvent(events.NewInputAudioBufferCommittedEvent(s.previousItemID, closing))
	s.SendEvent(events.NewConversationItemCreatedEvent(s.previousItemID, closing))

	final, err := s.worker.finalizeAndReset()
	if err != nil {
		log.Printf("[session %s] auto-commit finalize: %v", s.ID, err)
		if s.opts.OnError != nil {
			s.opts.OnError()
		}
	}
	s.SendEvent(events.NewTranscriptionCompletedEvent(closing, final.Language, final.Emotion, final.Transcript))

	now := time.Now()
	s.mu.Lock()
	s.previousItemID = closing
	s.currentItemID = events.NewItemID()
	s.mu.Unlock()
	s.pending = nil
	s.segmentStart = now
	s.lastCommit = now

	s.SendEvent(events.NewConversationItemCreatedEvent(s.previousItemID, s.currentItemID))
}

func (s *Session) handleSessionFinish(e *events.SessionFinishEvent) error {
	log.Printf("[session %s] finish requested", s.ID)
	s.state = stateFinishing

	if s.vadEnabled && s.vadEngine != nil && s.vadEngine.IsSpeaking() {
		if b, ok := s.vadEngine.ForceStop(); ok {
			s.finishSpeech(b.AudioEndMs)
		}
	} else if s.currentItemID != "" {
		s.commitAudio()
	}

	s.SendEvent(events.NewSessionFinishedEvent())
	s.state = stateFinished
	return nil
}

// ReportError surfaces an internal failure to the client as a server_error
// event. The session stays open; fatal errors close the transport instead.
func (s *Session) ReportError(err error) {
	s.sendError(events.ErrorTypeInternal, events.ErrorCodeServerError, err.Error(), "", "")
}

func (s *Session) sendError(errType events.ErrorType, code, message, param, clientEventID string) error {
	if s.opts.OnError != nil {
		s.opts.OnError()
	}
	log.Printf("[session %s] error event: code=%s message=%s", s.ID, code, message)
	return s.SendEvent(events.NewErrorEventFor(errType, code, message, param, clientEventID))
}

// SendEvent queues a server event for the write loop. When the outbound
// channel is full, interim transcription text is dropped (it is superseded by
// the next interim anyway); every other event type blocks until there is
// room, since committed/completed/finished are the protocol's accounting.
func (s *Session) SendEvent(event events.ServerEvent) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil
	}
	s.mu.RUnlock()

	select {
	case s.eventChan <- event:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
	}

	if _, interim := event.(*events.TranscriptionTextEvent); interim {
		log.Printf("[session %s] event channel full, dropping interim event", s.ID)
		return nil
	}

	select {
	case s.eventChan <- event:
		return nil
	case <-s.closedCh:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

// writeLoop is the single writer on the transport. Cancelling the context on
// exit unwinds any sender blocked on a full channel after a transport error.
func (s *Session) writeLoop() {
	defer s.wg.Done()
	defer s.cancel()

	for {
		select {
		case <-s.ctx.Done():
			return
		case event := <-s.eventChan:
			if err := s.transport.SendEvent(event); err != nil {
				log.Printf("[session %s] failed to send event: %v", s.ID, err)
				return
			}
			if s.opts.Debug {
				log.Printf("[session %s] sent event: %s", s.ID, event.ServerEventType())
			}
		}
	}
}

// Close shuts the session down: drains the worker, stops the write loop, and
// releases the VAD engine. Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.closedCh)
	s.mu.Unlock()

	if s.worker != nil {
		s.worker.close()
	}

	// The event channel is never closed; the write loop exits via the
	// context, so late senders cannot hit a closed channel.
	s.cancel()
	s.wg.Wait()

	if s.vadEngine != nil {
		s.vadEngine.Destroy()
		s.vadEngine = nil
	}

	if s.onClose != nil {
		s.onClose(s)
	}

	log.Printf("[session %s] closed", s.ID)
	return nil
}

// SetOnClose sets the callback invoked when the session is closed.
func (s *Session) SetOnClose(fn func(session *Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClose = fn
}

// Context returns the session context.
func (s *Session) Context() context.Context {
	return s.ctx
}

// sessionSnapshot builds the wire session object from current configuration.
// input_audio_transcription is always null on the wire, even when a language
// hint is configured; the hint only steers the recogniser.
func (s *Session) sessionSnapshot() events.Session {
	var turnDetection *events.TurnDetection
	if s.vadEnabled {
		turnDetection = &events.TurnDetection{
			Type:              events.TurnDetectionTypeServerVAD,
			Threshold:         s.vadThreshold,
			SilenceDurationMs: s.vadSilenceMs,
		}
	}

	return events.Session{
		ID:                      s.ID,
		Object:                  "realtime.session",
		Model:                   s.opts.Model,
		Modalities:              []events.Modality{events.ModalityText},
		InputAudioFormat:        events.AudioFormat(s.audioFormat),
		InputAudioTranscription: nil,
		TurnDetection:           turnDetection,
	}
}
