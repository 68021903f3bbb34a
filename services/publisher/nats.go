package publisher

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"

	"sjsage522/pricecompare/logger"
)

// NATSPublisher publishes scrape results on a NATS subject
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
}

// NewNATSPublisher connects to url and publishes under subject
func NewNATSPublisher(url, subject string) (*NATSPublisher, error) {
	log := logger.ForPublisher()

	nc, err := nats.Connect(url,
		nats.Name("pricecompare"),
		nats.Timeout(5*time.Second),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("Reconnected to NATS")
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn().Err(err).Msg("Disconnected from NATS")
		}),
	)
	if err != nil {
		return nil, err
	}

	return &NATSPublisher{
		conn:    nc,
		subject: subject,
	}, nil
}

// Publish publishes message on the subject with key sent as the Site header
func (np *NATSPublisher) Publish(ctx context.Context, key string, message []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := nats.NewMsg(np.subject)
	msg.Data = message
	msg.Header.Set("Site", key)
	return np.conn.PublishMsg(msg)
}

// TrimStreams flushes buffered messages. Core NATS retains nothing to trim.
func (np *NATSPublisher) TrimStreams(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	return np.conn.FlushWithContext(ctx)
}

// Close drains and closes the NATS connection
func (np *NATSPublisher) Close() error {
	if np.conn == nil {
		return nil
	}
	return np.conn.Drain()
}
