// Package models defines the data structures flowing through the pipeline.
package models

import "time"

// FlushReason records which trigger closed a buffered turn.
type FlushReason string

const (
	FlushSpeakerChange FlushReason = "speaker_change"
	FlushTimeBudget    FlushReason = "time_budget"
	FlushSizeBudget    FlushReason = "size_budget"
	FlushSilence       FlushReason = "silence"
	FlushSessionEnd    FlushReason = "session_end"
)

// UnknownSpeaker labels turns whose speaker was never resolved.
const UnknownSpeaker = "unknown"

// SpeechUnit is the merged inference result for one audio chunk.
// Text may be empty (silence or failed transcription); Speaker is empty
// when diarization is disabled or did not resolve a label for this chunk.
// Immutable once created.
type SpeechUnit struct {
	SessionID        string        `json:"sessionId"`
	Seq              uint64        `json:"seq"`
	Text             string        `json:"text"`
	Speaker          string        `json:"speaker,omitempty"`
	Timestamp        time.Time     `json:"timestamp"`
	Duration         time.Duration `json:"duration"`
	TranscribeMillis int64         `json:"transcribeMs"`
	DiarizeMillis    int64         `json:"diarizeMs"`
	TranscribeFailed bool          `json:"transcribeFailed,omitempty"`
}

// IsEmpty reports whether the unit carries no transcript text.
func (u SpeechUnit) IsEmpty() bool {
	return u.Text == ""
}

// BufferedTurn is a run of consecutive same-speaker speech units,
// closed by exactly one flush trigger. Immutable after flush.
type BufferedTurn struct {
	ID        string      `json:"id"`
	SessionID string      `json:"sessionId"`
	Speaker   string      `json:"speaker"`
	Text      string      `json:"text"`
	Units     int         `json:"units"`
	Start     time.Time   `json:"start"`
	End       time.Time   `json:"end"`
	Reason    FlushReason `json:"reason"`
}

// TranslatedTurn is a buffered turn plus its translation result.
// When Failed is set the Translation field is empty and the source
// text must be displayed untranslated with a visible marker.
type TranslatedTurn struct {
	Turn            BufferedTurn `json:"turn"`
	Translation     string       `json:"translation"`
	TranslateMillis int64        `json:"translateMs"`
	Failed          bool         `json:"failed,omitempty"`
}

// Envelope event types carried over the delivery and subscriber transports.
const (
	EventUnit        = "unit"
	EventTurn        = "turn"
	EventTranslation = "translation"
	EventClear       = "clear"
)

// Envelope is the wire frame shared by the delivery connection
// (audio side -> translation side) and the subscriber push stream
// (translation side -> display clients). At most one payload is set,
// selected by Type; a clear event carries none.
type Envelope struct {
	Type        string          `json:"type"`
	Unit        *SpeechUnit     `json:"unit,omitempty"`
	Turn        *BufferedTurn   `json:"turn,omitempty"`
	Translation *TranslatedTurn `json:"translation,omitempty"`
}
