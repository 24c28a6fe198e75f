package bus

import (
	"context"

	"github.com/migralert/migralert-backend/internal/realtime"
)

// Bus carries SSE messages between API replicas. Every replica forwards what
// it receives into its own hub, including its own publishes.
type Bus interface {
	Publish(ctx context.Context, msg realtime.SSEMessage) error
	StartForwarder(ctx context.Context, onMsg func(m realtime.SSEMessage)) error
	Close() error
}
