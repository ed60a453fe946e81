package events

import (
	"encoding/json"
	"fmt"
)

// ClientEventType represents the type of client event.
type ClientEventType string

const (
	ClientEventTypeSessionUpdate          ClientEventType = "session.update"
	ClientEventTypeInputAudioBufferAppend ClientEventType = "input_audio_buffer.append"
	ClientEventTypeInputAudioBufferCommit ClientEventType = "input_audio_buffer.commit"
	ClientEventTypeSessionFinish          ClientEventType = "session.finish"
)

// ClientEvent is the interface for all client events.
type ClientEvent interface {
	ClientEventType() ClientEventType
	GetEventID() string
}

// BaseClientEvent contains common fields for all client events.
type BaseClientEvent struct {
	EventID string          `json:"event_id,omitempty"`
	Type    ClientEventType `json:"type"`
}

func (e BaseClientEvent) ClientEventType() ClientEventType {
	return e.Type
}

func (e BaseClientEvent) GetEventID() string {
	return e.EventID
}

// SessionUpdateEvent updates the session configuration.
type SessionUpdateEvent struct {
	BaseClientEvent
	Session SessionConfig `json:"session"`
}

// InputAudioBufferAppendEvent appends one base64 audio frame.
type InputAudioBufferAppendEvent struct {
	BaseClientEvent
	Audio string `json:"audio"`
}

// InputAudioBufferCommitEvent closes the current utterance (manual mode only).
type InputAudioBufferCommitEvent struct {
	BaseClientEvent
}

// SessionFinishEvent requests an orderly shutdown of the session.
type SessionFinishEvent struct {
	BaseClientEvent
}

// UnknownEventError is returned by ParseClientEvent for unrecognised types.
// The session reports it as a protocol error without disconnecting.
type UnknownEventError struct {
	Type    string
	EventID string
}

func (e *UnknownEventError) Error() string {
	return fmt.Sprintf("unknown client event type: %s", e.Type)
}

// ParseClientEvent parses a JSON message into a ClientEvent.
func ParseClientEvent(data []byte) (ClientEvent, error) {
	var base BaseClientEvent
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, fmt.Errorf("failed to parse event type: %w", err)
	}

	var event ClientEvent
	var err error

	switch base.Type {
	case ClientEventTypeSessionUpdate:
		var e SessionUpdateEvent
		err = json.Unmarshal(data, &e)
		event = &e

	case ClientEventTypeInputAudioBufferAppend:
		var e InputAudioBufferAppendEvent
		err = json.Unmarshal(data, &e)
		event = &e

	case ClientEventTypeInputAudioBufferCommit:
		var e InputAudioBufferCommitEvent
		err = json.Unmarshal(data, &e)
		event = &e

	case ClientEventTypeSessionFinish:
		var e SessionFinishEvent
		err = json.Unmarshal(data, &e)
		event = &e

	default:
		return nil, &UnknownEventError{Type: string(base.Type), EventID: base.EventID}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to parse %s event: %w", base.Type, err)
	}

	return event, nil
}
