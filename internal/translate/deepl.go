package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultDeepLEndpoint = "https://api-free.deepl.com/v2/translate"

// DeepLClient translates via the DeepL REST API.
type DeepLClient struct {
	endpoint   string
	apiKey     string
	sourceLang string
	targetLang string
	httpClient *http.Client
}

// NewDeepLClient creates a DeepL translator. endpoint may be empty to
// use the free-tier API host.
func NewDeepLClient(endpoint, apiKey, sourceLang, targetLang string, timeout time.Duration) (*DeepLClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key cannot be empty")
	}
	if sourceLang == "" || targetLang == "" {
		return nil, fmt.Errorf("source and target languages cannot be empty")
	}
	if endpoint == "" {
		endpoint = defaultDeepLEndpoint
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &DeepLClient{
		endpoint:   endpoint,
		apiKey:     apiKey,
		sourceLang: sourceLang,
		targetLang: targetLang,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Name identifies the provider in logs and metrics.
func (c *DeepLClient) Name() string { return "deepl" }

type deeplResponse struct {
	Translations []struct {
		Text string `json:"text"`
	} `json:"translations"`
}

// Translate performs one DeepL call.
func (c *DeepLClient) Translate(ctx context.Context, text string) (string, error) {
	form := url.Values{}
	form.Set("text", text)
	form.Set("source_lang", c.sourceLang)
	form.Set("target_lang", c.targetLang)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTranslation, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "DeepL-Auth-Key "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusForbidden:
		return "", fmt.Errorf("%w: invalid API key", ErrTranslation)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == 456:
		// 456 is DeepL's quota-exceeded status.
		return "", fmt.Errorf("%w: status %d", ErrRateLimited, resp.StatusCode)
	case resp.StatusCode >= 500:
		return "", fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: status %d: %s", ErrTranslation, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed deeplResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("%w: parse response: %v", ErrTranslation, err)
	}
	if len(parsed.Translations) == 0 {
		return "", fmt.Errorf("%w: empty response", ErrTranslation)
	}
	return parsed.Translations[0].Text, nil
}
