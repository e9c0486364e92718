package repositories

import (
	"context"
	"errors"
)

// ErrSTTUnavailable signals that no speech-to-text backend is configured.
// Callers surface this to the device as a descriptive error frame.
var ErrSTTUnavailable = errors.New("no STT backend configured")

// SpeechToText transcribes a finalized audio clip.
type SpeechToText interface {
	// Transcribe turns raw audio bytes into trimmed text. It returns
	// ErrSTTUnavailable when no backend is configured.
	Transcribe(ctx context.Context, audio []byte, codec string) (string, error)

	// Available reports whether a backend is configured and ready.
	Available() bool
}
