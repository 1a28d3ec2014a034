// Package asr submits captured audio to the speech-recognition HTTP service
// and assembles the returned segments into one transcript.
package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrUnavailable marks recognition-service connectivity failures.
var ErrUnavailable = errors.New("speech recognition service unavailable")

const maxResponseBytes = 4 << 20

// Config selects the recognition endpoint and request hints.
type Config struct {
	Endpoint     string
	Path         string
	LanguageCode string
	Timeout      time.Duration
}

// Client performs one-shot WAV transcription requests.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient builds a recognition client from cfg.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{cfg: cfg, http: &http.Client{}}
}

type segmentPayload struct {
	Text string `json:"text"`
}

type responsePayload struct {
	Text     string           `json:"text"`
	Segments []segmentPayload `json:"segments"`
}

// Transcribe uploads 16kHz mono s16 PCM as WAV and returns the assembled
// transcript. Empty audio yields an empty transcript without a request.
func (c *Client) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	if len(pcm) == 0 {
		return "", nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	endpoint := strings.TrimRight(c.cfg.Endpoint, "/") + c.cfg.Path
	if lang := strings.TrimSpace(c.cfg.LanguageCode); lang != "" {
		endpoint += "?language=" + url.QueryEscape(lang)
	}

	body := EncodeWAV(pcm, SampleRate, 1)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build recognition request: %w", err)
	}
	req.Header.Set("Content-Type", "audio/wav")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(ctxErr, context.Canceled) {
			return "", ctxErr
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var payload responsePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}

	if len(payload.Segments) == 0 {
		return cleanSegment(payload.Text), nil
	}

	segments := make([]string, 0, len(payload.Segments))
	for _, segment := range payload.Segments {
		segments = append(segments, segment.Text)
	}
	return Assemble(segments), nil
}
