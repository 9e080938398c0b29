// Package stt defines the interface for speech-to-text backends.
package stt

import (
	"context"
	"time"
)

// Audio is one chunk of raw PCM16 mono audio handed to a backend.
type Audio struct {
	PCM        []byte
	SampleRate int
	Duration   time.Duration
}

// Transcriber converts one chunk of audio into transcript text.
// An empty string with a nil error means no speech was recognized.
type Transcriber interface {
	Transcribe(ctx context.Context, audio Audio) (string, error)
}
