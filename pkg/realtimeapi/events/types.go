// Package events defines the event types for the realtime ASR protocol.
package events

// Modality represents the supported modalities for the session.
type Modality string

const (
	ModalityText Modality = "text"
)

// AudioFormat represents the supported input audio formats.
type AudioFormat string

const (
	AudioFormatPCM    AudioFormat = "pcm"
	AudioFormatPCM16  AudioFormat = "pcm16"
	AudioFormatPCM16L AudioFormat = "pcm_s16le"
	AudioFormatPCM32  AudioFormat = "pcm32"
	AudioFormatPCM32L AudioFormat = "pcm_s32le"
	AudioFormatOpus   AudioFormat = "opus"
)

// ItemType represents the type of conversation item.
type ItemType string

const (
	ItemTypeMessage ItemType = "message"
)

// ItemStatus represents the status of a conversation item.
type ItemStatus string

const (
	ItemStatusCompleted ItemStatus = "completed"
)

// Role represents the role of a conversation participant.
type Role string

const (
	RoleUser Role = "user"
)

// ContentType represents the type of content in a conversation item.
type ContentType string

const (
	ContentTypeInputAudio ContentType = "input_audio"
)

// TurnDetectionType represents the type of turn detection.
type TurnDetectionType string

const (
	TurnDetectionTypeServerVAD TurnDetectionType = "server_vad"
)

// ErrorType represents the type of error.
type ErrorType string

const (
	ErrorTypeInvalidRequest ErrorType = "invalid_request_error"
	ErrorTypeInternal       ErrorType = "internal_error"
	ErrorTypeServer         ErrorType = "server_error"
)

// Error codes surfaced in error events.
const (
	ErrorCodeInvalidEvent         = "invalid_event"
	ErrorCodeInvalidAudio         = "invalid_audio"
	ErrorCodeInvalidAudioFormat   = "invalid_audio_format"
	ErrorCodeCommitNotAllowed     = "commit_not_allowed"
	ErrorCodeReconfigureWhileOpen = "reconfigure_while_open"
	ErrorCodeServerError          = "server_error"
)

// Session is the session object carried by session.created / session.updated.
type Session struct {
	ID                      string               `json:"id"`
	Object                  string               `json:"object"` // "realtime.session"
	Model                   string               `json:"model"`
	Modalities              []Modality           `json:"modalities"`
	InputAudioFormat        AudioFormat          `json:"input_audio_format"`
	InputAudioTranscription *TranscriptionConfig `json:"input_audio_transcription"`
	TurnDetection           *TurnDetection       `json:"turn_detection"`
}

// SessionConfig is the client-supplied session object in session.update.
// TurnDetection has no omitempty: a missing key and an explicit null both
// arrive as nil and disable VAD, matching the reference API behavior.
type SessionConfig struct {
	Model                   string               `json:"model,omitempty"`
	InputAudioFormat        AudioFormat          `json:"input_audio_format,omitempty"`
	SampleRate              int                  `json:"sample_rate,omitempty"`
	InputAudioTranscription *TranscriptionConfig `json:"input_audio_transcription,omitempty"`
	TurnDetection           *TurnDetection       `json:"turn_detection"`
}

// TranscriptionConfig configures input audio transcription.
type TranscriptionConfig struct {
	Language string `json:"language,omitempty"`
}

// TurnDetection is the server-VAD configuration.
type TurnDetection struct {
	Type              TurnDetectionType `json:"type"`
	Threshold         float64           `json:"threshold"`
	SilenceDurationMs int               `json:"silence_duration_ms"`
}

// ConversationItem represents one utterance item on the wire.
type ConversationItem struct {
	ID      string     `json:"id"`
	Object  string     `json:"object"` // "realtime.item"
	Type    ItemType   `json:"type"`
	Status  ItemStatus `json:"status"`
	Role    Role       `json:"role"`
	Content []Content  `json:"content"`
}

// Content is a single content part of a conversation item. Transcript is a
// pointer so the wire carries an explicit null before transcription completes.
type Content struct {
	Type       ContentType `json:"type"`
	Transcript *string     `json:"transcript"`
}

// NewUserAudioItem builds the standard user audio item for a given id.
func NewUserAudioItem(itemID string) ConversationItem {
	return ConversationItem{
		ID:     itemID,
		Object: "realtime.item",
		Type:   ItemTypeMessage,
		Status: ItemStatusCompleted,
		Role:   RoleUser,
		Content: []Content{
			{Type: ContentTypeInputAudio, Transcript: nil},
		},
	}
}

// ErrorDetail carries structured error information in error events.
type ErrorDetail struct {
	Type    ErrorType `json:"type"`
	Code    string    `json:"code,omitempty"`
	Message string    `json:"message"`
	Param   string    `json:"param,omitempty"`
	EventID string    `json:"event_id,omitempty"`
}
