package realtime

import (
	"sync"

	"github.com/google/uuid"

	"github.com/migralert/migralert-backend/internal/platform/logger"
)

// SSEClient is one open event stream. UserID is uuid.Nil for anonymous
// viewers of the public report stream.
type SSEClient struct {
	ID       uuid.UUID
	UserID   uuid.UUID
	Channels map[string]bool
	Outbound chan SSEMessage
	done     chan struct{}
	close    sync.Once
	Logger   *logger.Logger
}

// Done is closed when the hub drops the client.
func (c *SSEClient) Done() <-chan struct{} { return c.done }
