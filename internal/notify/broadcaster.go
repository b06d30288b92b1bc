package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/gatherspace/server/internal/config"
)

// BellPayload is the wire shape pushed to a connected client when a bell
// entry is created for them.
type BellPayload struct {
	MessageID string    `json:"message_id"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	EventID   string    `json:"event_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Broadcaster pushes bell payloads toward connected clients. The socket
// transport itself lives outside this server; the production default
// only logs.
type Broadcaster interface {
	BroadcastBell(ctx context.Context, userID string, payload BellPayload)
}

// LogBroadcaster satisfies Broadcaster by logging each payload at debug
// level.
type LogBroadcaster struct {
	logger zerolog.Logger
}

func NewLogBroadcaster(logger zerolog.Logger) *LogBroadcaster {
	return &LogBroadcaster{logger: config.Component(logger, "broadcaster")}
}

func (b *LogBroadcaster) BroadcastBell(_ context.Context, userID string, payload BellPayload) {
	b.logger.Debug().
		Str("user_id", userID).
		Str("message_id", payload.MessageID).
		Str("kind", payload.Kind).
		Msg("bell broadcast")
}
