package stt

import (
	"context"

	"github.com/mininerva/openclaw-cardputer/domain/repositories"
)

// Disabled is the STT backend used when no transcription service is
// configured. Every clip is refused.
type Disabled struct{}

func (Disabled) Transcribe(context.Context, []byte, string) (string, error) {
	return "", repositories.ErrSTTUnavailable
}

func (Disabled) Available() bool { return false }
