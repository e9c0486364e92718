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

	"go.uber.org/zap"

	"github.com/mininerva/openclaw-cardputer/domain/repositories"
)

// Whisper talks to a remote whisper transcription service over HTTP. The
// service accepts a multipart upload on POST {base}/transcribe and answers
// with a JSON body carrying the transcript.
type Whisper struct {
	baseURL string
	model   string
	client  *http.Client
	logger  *zap.Logger
}

// NewWhisper creates a whisper adapter for the given service URL.
func NewWhisper(baseURL, model string, logger *zap.Logger) *Whisper {
	return &Whisper{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

// Transcribe uploads one finished clip and returns the transcript.
func (w *Whisper) Transcribe(ctx context.Context, audio []byte, codec string) (string, error) {
	if w.baseURL == "" {
		return "", repositories.ErrSTTUnavailable
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("audio", "clip."+codec)
	if err != nil {
		return "", fmt.Errorf("failed to build upload: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("failed to build upload: %w", err)
	}
	if w.model != "" {
		if err := writer.WriteField("model", w.model); err != nil {
			return "", fmt.Errorf("failed to build upload: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to build upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+"/transcribe", &body)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		w.logger.Error("Whisper service returned an error",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", data))
		return "", fmt.Errorf("whisper service returned status %d", resp.StatusCode)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode whisper response: %w", err)
	}
	return strings.TrimSpace(result.Text), nil
}

// Available reports whether the adapter is configured with a service URL.
func (w *Whisper) Available() bool {
	return w.baseURL != ""
}
