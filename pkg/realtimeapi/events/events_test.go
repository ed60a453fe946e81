package events

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClientEventDispatch(t *testing.T) {
	tests := []struct {
		name string
		data string
		want ClientEventType
	}{
		{
			name: "session update",
			data: `{"type":"session.update","event_id":"evt_1","session":{"input_audio_format":"pcm16"}}`,
			want: ClientEventTypeSessionUpdate,
		},
		{
			name: "audio append",
			data: `{"type":"input_audio_buffer.append","audio":"AAAA"}`,
			want: ClientEventTypeInputAudioBufferAppend,
		},
		{
			name: "commit",
			data: `{"type":"input_audio_buffer.commit"}`,
			want: ClientEventTypeInputAudioBufferCommit,
		},
		{
			name: "finish",
			data: `{"type":"session.finish"}`,
			want: ClientEventTypeSessionFinish,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := ParseClientEvent([]byte(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.want, event.ClientEventType())
		})
	}
}

func TestParseClientEventFields(t *testing.T) {
	event, err := ParseClientEvent([]byte(`{
		"type": "session.update",
		"event_id": "evt_42",
		"session": {
			"input_audio_format": "opus",
			"sample_rate": 48000,
			"input_audio_transcription": {"language": "en"},
			"turn_detection": {"type": "server_vad", "threshold": 0.6, "silence_duration_ms": 300}
		}
	}`))
	require.NoError(t, err)

	update, ok := event.(*SessionUpdateEvent)
	require.True(t, ok)
	assert.Equal(t, "evt_42", update.GetEventID())
	assert.Equal(t, AudioFormatOpus, update.Session.InputAudioFormat)
	assert.Equal(t, 48000, update.Session.SampleRate)
	require.NotNil(t, update.Session.InputAudioTranscription)
	assert.Equal(t, "en", update.Session.InputAudioTranscription.Language)
	require.NotNil(t, update.Session.TurnDetection)
	assert.Equal(t, 0.6, update.Session.TurnDetection.Threshold)
	assert.Equal(t, 300, update.Session.TurnDetection.SilenceDurationMs)
}

// A missing turn_detection key and an explicit null must both decode to nil,
// which is how clients disable server VAD.
func TestSessionConfigTurnDetectionNull(t *testing.T) {
	for _, data := range []string{
		`{"type":"session.update","session":{"input_audio_format":"pcm16"}}`,
		`{"type":"session.update","session":{"input_audio_format":"pcm16","turn_detection":null}}`,
	} {
		event, err := ParseClientEvent([]byte(data))
		require.NoError(t, err)
		assert.Nil(t, event.(*SessionUpdateEvent).Session.TurnDetection)
	}
}

func TestParseClientEventUnknownType(t *testing.T) {
	_, err := ParseClientEvent([]byte(`{"type":"response.create","event_id":"evt_7"}`))
	require.Error(t, err)

	var unknown *UnknownEventError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "response.create", unknown.Type)
	assert.Equal(t, "evt_7", unknown.EventID)
}

func TestParseClientEventMalformed(t *testing.T) {
	_, err := ParseClientEvent([]byte(`{not json`))
	require.Error(t, err)

	var unknown *UnknownEventError
	assert.False(t, errors.As(err, &unknown))
}

func TestConversationItemCreatedWireShape(t *testing.T) {
	event := NewConversationItemCreatedEvent("item_prev", "item_abc")

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, "conversation.item.created", decoded["type"])
	assert.Equal(t, "item_prev", decoded["previous_item_id"])

	item := decoded["item"].(map[string]any)
	assert.Equal(t, "item_abc", item["id"])
	assert.Equal(t, "realtime.item", item["object"])
	assert.Equal(t, "message", item["type"])
	assert.Equal(t, "user", item["role"])

	content := item["content"].([]any)
	require.Len(t, content, 1)
	part := content[0].(map[string]any)
	assert.Equal(t, "input_audio", part["type"])

	// Transcript must be present as an explicit null, not omitted.
	_, present := part["transcript"]
	assert.True(t, present)
	assert.Nil(t, part["transcript"])
}

func TestErrorEventEchoesClientEventID(t *testing.T) {
	event := NewErrorEventFor(ErrorTypeInvalidRequest, ErrorCodeInvalidEvent, "unknown event", "", "evt_x")

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	detail := decoded["error"].(map[string]any)
	assert.Equal(t, "invalid_request_error", detail["type"])
	assert.Equal(t, "invalid_event", detail["code"])
	assert.Equal(t, "evt_x", detail["event_id"])
}

func TestIDFormats(t *testing.T) {
	tests := []struct {
		name   string
		gen    func() string
		prefix string
		length int
	}{
		{"event", NewEventID, "event_", len("event_") + 20},
		{"session", NewSessionID, "sess_", len("sess_") + 16},
		{"item", NewItemID, "item_", len("item_") + 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := tt.gen()
			assert.True(t, strings.HasPrefix(id, tt.prefix))
			assert.Len(t, id, tt.length)
			assert.NotEqual(t, id, tt.gen())
		})
	}
}
