package repositories

import (
	"context"
	"time"
)

// ExchangeSource tells how the request text reached the bridge.
type ExchangeSource string

const (
	ExchangeSourceText  ExchangeSource = "text"
	ExchangeSourceAudio ExchangeSource = "audio"
)

// Exchange is one completed request/reply pair.
type Exchange struct {
	DeviceID   string         `bson:"device_id"`
	SessionID  string         `bson:"session_id"`
	Source     ExchangeSource `bson:"source"`
	Request    string         `bson:"request"`
	Reply      string         `bson:"reply"`
	OccurredAt time.Time      `bson:"occurred_at"`
	DurationMs int64          `bson:"duration_ms"`
}

// ConversationHistory records completed exchanges. It is an audit log, not a
// delivery queue; nothing is replayed to devices.
type ConversationHistory interface {
	Record(ctx context.Context, exchange Exchange) error
	Close(ctx context.Context) error
}
