package stt

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

// WhisperClient transcribes chunks against a whisper.cpp server
// (`whisper-server --host ... --port ...`), which accepts WAV uploads
// on its /inference endpoint.
type WhisperClient struct {
	endpoint   string
	language   string
	httpClient *http.Client
}

// NewWhisperClient creates a whisper.cpp HTTP transcriber.
func NewWhisperClient(endpoint, language string, timeout time.Duration) (*WhisperClient, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WhisperClient{
		endpoint: endpoint,
		language: language,
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

type whisperResponse struct {
	Text string `json:"text"`
}

// Transcribe uploads the chunk as WAV and returns the transcript text.
func (c *WhisperClient) Transcribe(ctx context.Context, a Audio) (string, error) {
	wav, err := audio.EncodeWAV(a.PCM, a.SampleRate)
	if err != nil {
		return "", fmt.Errorf("%w: encode chunk: %v", inference.ErrInference, err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if err := mw.WriteField("response_format", "json"); err != nil {
		return "", fmt.Errorf("%w: %v", inference.ErrInference, err)
	}
	if c.language != "" {
		if err := mw.WriteField("language", c.language); err != nil {
			return "", fmt.Errorf("%w: %v", inference.ErrInference, err)
		}
	}
	fw, err := mw.CreateFormFile("file", "chunk.wav")
	if err != nil {
		return "", fmt.Errorf("%w: %v", inference.ErrInference, err)
	}
	if _, err := fw.Write(wav); err != nil {
		return "", fmt.Errorf("%w: %v", inference.ErrInference, err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("%w: %v", inference.ErrInference, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", inference.ErrInference, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("%w: %v", inference.ErrTimeout, err)
		}
		return "", fmt.Errorf("%w: %v", inference.ErrInference, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: whisper server returned %d: %s",
			inference.ErrInference, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed whisperResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("%w: parse response: %v", inference.ErrInference, err)
	}
	return strings.TrimSpace(parsed.Text), nil
}
