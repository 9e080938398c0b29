package diarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/b00ls0ck3t/Polyglot/internal/audio"
	"github.com/b00ls0ck3t/Polyglot/internal/inference"
)

// Client calls a diarization microservice (a pyannote pipeline behind
// HTTP) that accepts WAV uploads and returns speaker segments.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient creates a diarization HTTP client.
func NewClient(endpoint string, timeout time.Duration) (*Client, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

type segmentResponse struct {
	Segments []struct {
		Speaker string  `json:"speaker"`
		Start   float64 `json:"start"`
		End     float64 `json:"end"`
	} `json:"segments"`
}

// Diarize uploads the chunk and returns its speaker segments.
func (c *Client) Diarize(ctx context.Context, pcm []byte, sampleRate int, duration time.Duration) ([]Segment, error) {
	wav, err := audio.EncodeWAV(pcm, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("%w: encode chunk: %v", inference.ErrInference, err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "chunk.wav")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", inference.ErrInference, err)
	}
	if _, err := fw.Write(wav); err != nil {
		return nil, fmt.Errorf("%w: %v", inference.ErrInference, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("%w: %v", inference.ErrInference, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", inference.ErrInference, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: %v", inference.ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", inference.ErrInference, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: diarizer returned %d: %s",
			inference.ErrInference, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed segmentResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: parse response: %v", inference.ErrInference, err)
	}

	segments := make([]Segment, 0, len(parsed.Segments))
	for _, s := range parsed.Segments {
		segments = append(segments, Segment{
			Label: s.Speaker,
			Start: time.Duration(s.Start * float64(time.Second)),
			End:   time.Duration(s.End * float64(time.Second)),
		})
	}
	return segments, nil
}
