package realtime

import "context"

// Publisher fans a message out to every process serving streams.
type Publisher interface {
	Publish(ctx context.Context, msg SSEMessage) error
}

// LocalPublisher broadcasts on the in-process hub only.
type LocalPublisher struct {
	Hub *SSEHub
}

func NewLocalPublisher(hub *SSEHub) *LocalPublisher {
	return &LocalPublisher{Hub: hub}
}

func (p *LocalPublisher) Publish(_ context.Context, msg SSEMessage) error {
	if p == nil || p.Hub == nil {
		return nil
	}
	p.Hub.Broadcast(msg)
	return nil
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, msg SSEMessage) error

func (f PublisherFunc) Publish(ctx context.Context, msg SSEMessage) error { return f(ctx, msg) }
