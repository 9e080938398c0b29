// Package google provides a Google Cloud Speech-to-Text backend.
package google

import (
	"context"
	"fmt"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"

	"github.com/b00ls0ck3t/Polyglot/internal/inference"
	"github.com/b00ls0ck3t/Polyglot/internal/stt"
)

// Adapter implements stt.Transcriber using Google Cloud Speech-to-Text.
// The chunked pipeline maps each chunk onto one synchronous Recognize
// call rather than a streaming session.
type Adapter struct {
	client   *speech.Client
	language string
}

// New creates a Google STT adapter.
// Requires GOOGLE_APPLICATION_CREDENTIALS environment variable to be set.
func New(ctx context.Context, language string) (*Adapter, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create speech client: %w", err)
	}
	return &Adapter{client: c, language: language}, nil
}

// Transcribe runs one Recognize call over the chunk.
func (a *Adapter) Transcribe(ctx context.Context, audio stt.Audio) (string, error) {
	resp, err := a.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:        speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz: int32(audio.SampleRate),
			LanguageCode:    a.language,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio.PCM},
		},
	})
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("%w: %v", inference.ErrTimeout, err)
		}
		return "", fmt.Errorf("%w: %v", inference.ErrInference, err)
	}

	var parts []string
	for _, r := range resp.Results {
		if len(r.Alternatives) == 0 {
			continue
		}
		parts = append(parts, r.Alternatives[0].Transcript)
	}
	return strings.TrimSpace(strings.Join(parts, " ")), nil
}

// Close releases the underlying client.
func (a *Adapter) Close() error {
	return a.client.Close()
}
