package events

// ServerEventType represents the type of server event.
type ServerEventType string

const (
	ServerEventTypeError                         ServerEventType = "error"
	ServerEventTypeSessionCreated                ServerEventType = "session.created"
	ServerEventTypeSessionUpdated                ServerEventType = "session.updated"
	ServerEventTypeSessionFinished               ServerEventType = "session.finished"
	ServerEventTypeInputAudioBufferCommitted     ServerEventType = "input_audio_buffer.committed"
	ServerEventTypeInputAudioBufferSpeechStarted ServerEventType = "input_audio_buffer.speech_started"
	ServerEventTypeInputAudioBufferSpeechStopped ServerEventType = "input_audio_buffer.speech_stopped"
	ServerEventTypeConversationItemCreated       ServerEventType = "conversation.item.created"
	ServerEventTypeTranscriptionText             ServerEventType = "conversation.item.input_audio_transcription.text"
	ServerEventTypeTranscriptionCompleted        ServerEventType = "conversation.item.input_audio_transcription.completed"
)

// ServerEvent is the interface for all server events.
type ServerEvent interface {
	ServerEventType() ServerEventType
	GetEventID() string
}

// BaseServerEvent contains common fields for all server events.
type BaseServerEvent struct {
	EventID string          `json:"event_id"`
	Type    ServerEventType `json:"type"`
}

func (e BaseServerEvent) ServerEventType() ServerEventType {
	return e.Type
}

func (e BaseServerEvent) GetEventID() string {
	return e.EventID
}

// NewBaseServerEvent creates a new base server event with a generated event ID.
func NewBaseServerEvent(eventType ServerEventType) BaseServerEvent {
	return BaseServerEvent{
		EventID: NewEventID(),
		Type:    eventType,
	}
}

// ErrorEvent reports a protocol or processing error.
type ErrorEvent struct {
	BaseServerEvent
	Error ErrorDetail `json:"error"`
}

func NewErrorEvent(errType ErrorType, code, message, param string) *ErrorEvent {
	return &ErrorEvent{
		BaseServerEvent: NewBaseServerEvent(ServerEventTypeError),
		Error: ErrorDetail{
			Type:    errType,
			Code:    code,
			Message: message,
			Param:   param,
		},
	}
}

// NewErrorEventFor is like NewErrorEvent but echoes the offending client event id.
func NewErrorEventFor(errType ErrorType, code, message, param, clientEventID string) *ErrorEvent {
	e := NewErrorEvent(errType, code, message, param)
	e.Error.EventID = clientEventID
	return e
}

// SessionCreatedEvent is sent once, immediately after accepting the connection.
type SessionCreatedEvent struct {
	BaseServerEvent
	Session Session `json:"session"`
}

func NewSessionCreatedEvent(session Session) *SessionCreatedEvent {
	return &SessionCreatedEvent{
		BaseServerEvent: NewBaseServerEvent(ServerEventTypeSessionCreated),
		Session:         session,
	}
}

// SessionUpdatedEvent acknowledges a session.update.
type SessionUpdatedEvent struct {
	BaseServerEvent
	Session Session `json:"session"`
}

func NewSessionUpdatedEvent(session Session) *SessionUpdatedEvent {
	return &SessionUpdatedEvent{
		BaseServerEvent: NewBaseServerEvent(ServerEventTypeSessionUpdated),
		Session:         session,
	}
}

// SessionFinishedEvent is the terminal event on a session.
type SessionFinishedEvent struct {
	BaseServerEvent
}

func NewSessionFinishedEvent() *SessionFinishedEvent {
	return &SessionFinishedEvent{
		BaseServerEvent: NewBaseServerEvent(ServerEventTypeSessionFinished),
	}
}

// InputAudioBufferCommittedEvent is sent when an utterance is committed.
type InputAudioBufferCommittedEvent struct {
	BaseServerEvent
	PreviousItemID string `json:"previous_item_id"`
	ItemID         string `json:"item_id"`
}

func NewInputAudioBufferCommittedEvent(previousItemID, itemID string) *InputAudioBufferCommittedEvent {
	return &InputAudioBufferCommittedEvent{
		BaseServerEvent: NewBaseServerEvent(ServerEventTypeInputAudioBufferCommitted),
		PreviousItemID:  previousItemID,
		ItemID:          itemID,
	}
}

// InputAudioBufferSpeechStartedEvent marks the leading edge of detected speech.
type InputAudioBufferSpeechStartedEvent struct {
	BaseServerEvent
	AudioStartMs int    `json:"audio_start_ms"`
	ItemID       string `json:"item_id"`
}

func NewInputAudioBufferSpeechStartedEvent(audioStartMs int, itemID string) *InputAudioBufferSpeechStartedEvent {
	return &InputAudioBufferSpeechStartedEvent{
		BaseServerEvent: NewBaseServerEvent(ServerEventTypeInputAudioBufferSpeechStarted),
		AudioStartMs:    audioStartMs,
		ItemID:          itemID,
	}
}

// InputAudioBufferSpeechStoppedEvent marks the trailing edge after the
// configured silence timeout.
type InputAudioBufferSpeechStoppedEvent struct {
	BaseServerEvent
	AudioEndMs int    `json:"audio_end_ms"`
	ItemID     string `json:"item_id"`
}

func NewInputAudioBufferSpeechStoppedEvent(audioEndMs int, itemID string) *InputAudioBufferSpeechStoppedEvent {
	return &InputAudioBufferSpeechStoppedEvent{
		BaseServerEvent: NewBaseServerEvent(ServerEventTypeInputAudioBufferSpeechStopped),
		AudioEndMs:      audioEndMs,
		ItemID:          itemID,
	}
}

// ConversationItemCreatedEvent announces an utterance item.
type ConversationItemCreatedEvent struct {
	BaseServerEvent
	PreviousItemID string           `json:"previous_item_id"`
	Item           ConversationItem `json:"item"`
}

func NewConversationItemCreatedEvent(previousItemID, itemID string) *ConversationItemCreatedEvent {
	return &ConversationItemCreatedEvent{
		BaseServerEvent: NewBaseServerEvent(ServerEventTypeConversationItemCreated),
		PreviousItemID:  previousItemID,
		Item:            NewUserAudioItem(itemID),
	}
}

// TranscriptionTextEvent carries an interim transcription result. Text is the
// stable confirmed prefix, Stash the tail that may still be revised.
type TranscriptionTextEvent struct {
	BaseServerEvent
	ItemID       string `json:"item_id"`
	ContentIndex int    `json:"content_index"`
	Language     string `json:"language"`
	Emotion      string `json:"emotion"`
	Text         string `json:"text"`
	Stash        string `json:"stash"`
}

func NewTranscriptionTextEvent(itemID, language, emotion, text, stash string) *TranscriptionTextEvent {
	return &TranscriptionTextEvent{
		BaseServerEvent: NewBaseServerEvent(ServerEventTypeTranscriptionText),
		ItemID:          itemID,
		ContentIndex:    0,
		Language:        language,
		Emotion:         emotion,
		Text:            text,
		Stash:           stash,
	}
}

// TranscriptionCompletedEvent carries the final transcription for an item.
type TranscriptionCompletedEvent struct {
	BaseServerEvent
	ItemID       string `json:"item_id"`
	ContentIndex int    `json:"content_index"`
	Language     string `json:"language"`
	Emotion      string `json:"emotion"`
	Transcript   string `json:"transcript"`
}

func NewTranscriptionCompletedEvent(itemID, language, emotion, transcript string) *TranscriptionCompletedEvent {
	return &TranscriptionCompletedEvent{
		BaseServerEvent: NewBaseServerEvent(ServerEventTypeTranscriptionCompleted),
		ItemID:          itemID,
		ContentIndex:    0,
		Language:        language,
		Emotion:         emotion,
		Transcript:      transcript,
	}
}
