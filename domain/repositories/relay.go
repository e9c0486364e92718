package repositories

import "context"

// MessageRelay forwards interpreted device text to the backend that produces
// assistant replies.
type MessageRelay interface {
	// Relay sends one message on behalf of a device and returns the reply
	// text. Transport failures come back as errors; the caller converts
	// them into a descriptive response frame so the device always hears
	// something.
	Relay(ctx context.Context, deviceID, text string) (string, error)

	// Close releases the relay's transport resources.
	Close() error
}
