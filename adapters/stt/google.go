package stt

import (
	"context"
	"fmt"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap"
)

// Google transcribes finished clips with the Google Cloud Speech-to-Text
// synchronous Recognize call. Credentials come from the ambient application
// default credentials.
type Google struct {
	client     *speech.Client
	language   string
	sampleRate int
	logger     *zap.Logger
}

// NewGoogle creates the Cloud Speech client.
func NewGoogle(ctx context.Context, language string, sampleRate int, logger *zap.Logger) (*Google, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}
	return &Google{
		client:     client,
		language:   language,
		sampleRate: sampleRate,
		logger:     logger,
	}, nil
}

// Transcribe runs one synchronous recognition over the whole clip.
func (g *Google) Transcribe(ctx context.Context, audio []byte, codec string) (string, error) {
	encoding, err := audioEncoding(codec)
	if err != nil {
		return "", err
	}

	resp, err := g.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:        encoding,
			SampleRateHertz: int32(g.sampleRate),
			LanguageCode:    g.language,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	})
	if err != nil {
		return "", fmt.Errorf("recognize failed: %w", err)
	}

	var parts []string
	for _, result := range resp.Results {
		if len(result.Alternatives) > 0 {
			parts = append(parts, result.Alternatives[0].Transcript)
		}
	}
	return strings.TrimSpace(strings.Join(parts, " ")), nil
}

// Available reports whether the client was created.
func (g *Google) Available() bool {
	return g.client != nil
}

// Close releases the gRPC connection.
func (g *Google) Close() error {
	return g.client.Close()
}

// audioEncoding maps the device codec names to Speech API encodings.
func audioEncoding(codec string) (speechpb.RecognitionConfig_AudioEncoding, error) {
	switch strings.ToLower(codec) {
	case "opus":
		return speechpb.RecognitionConfig_OGG_OPUS, nil
	case "pcm", "wav", "linear16":
		return speechpb.RecognitionConfig_LINEAR16, nil
	case "flac":
		return speechpb.RecognitionConfig_FLAC, nil
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, fmt.Errorf("unsupported codec: %s", codec)
	}
}
