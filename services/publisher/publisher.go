package publisher

import "context"

// Publisher represents a service for publishing scrape results
type Publisher interface {
	// Publish publishes a message under key
	Publish(ctx context.Context, key string, message []byte) error

	// TrimStreams trims retained messages to the configured maximum length
	TrimStreams(ctx context.Context) error

	// Close closes the publisher connection
	Close() error
}

// NopPublisher discards every message
type NopPublisher struct{}

// Publish implements Publisher
func (NopPublisher) Publish(ctx context.Context, key string, message []byte) error { return nil }

// TrimStreams implements Publisher
func (NopPublisher) TrimStreams(ctx context.Context) error { return nil }

// Close implements Publisher
func (NopPublisher) Close() error { return nil }
