package history

import (
	"context"

	"github.com/mininerva/openclaw-cardputer/domain/repositories"
)

// Noop is the history backend used when no MongoDB URI is configured.
type Noop struct{}

func (Noop) Record(context.Context, repositories.Exchange) error { return nil }

func (Noop) Close(context.Context) error { return nil }

var (
	_ repositories.ConversationHistory = Noop{}
	_ repositories.ConversationHistory = &Mongo{}
)
