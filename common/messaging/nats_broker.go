package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/tdrizzle0202/hiddencash/common/config"
)

// NatsBroker is the JetStream-backed queue between the drip pipeline and
// push delivery. Queuing the notification means a slow or flapping push
// gateway cannot stall a drip batch, and queued sends survive restarts.
type NatsBroker struct {
	conn *nats.Conn
	js   jetstream.JetStream
}

func NewNatsBroker(cfg config.NatsConfig) (*NatsBroker, error) {
	opts := []nats.Option{
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn().Err(err).Msg("disconnected from NATS")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("server", nc.ConnectedUrl()).Msg("reconnected to NATS")
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Info().Msg("NATS connection closed")
		}),
	}
	if cfg.Username != "" && cfg.Password != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}

	conn, err := nats.Connect(cfg.URL(), opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating JetStream context: %w", err)
	}

	log.Info().Str("server", conn.ConnectedUrl()).Msg("connected to NATS")
	return &NatsBroker{conn: conn, js: js}, nil
}

// Close drains the connection so in-flight acks complete.
func (b *NatsBroker) Close() error {
	if b.conn != nil && b.conn.IsConnected() {
		return b.conn.Drain()
	}
	return nil
}

// PublishSync publishes to a subject and waits for the stream ack.
func (b *NatsBroker) PublishSync(ctx context.Context, subject string, data []byte) error {
	if b == nil || b.js == nil {
		return fmt.Errorf("jetstream not initialized")
	}
	if _, err := b.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	return nil
}

// PushConsumer returns a durable pull consumer for subject, creating the
// backing stream on first use. A nil broker yields a nil consumer so
// callers can fall back to inline delivery.
func (b *NatsBroker) PushConsumer(ctx context.Context, streamName, subject string) (jetstream.Consumer, error) {
	if b == nil || b.js == nil {
		return nil, nil
	}

	stream, err := b.ensureStream(ctx, streamName, subject)
	if err != nil {
		return nil, err
	}

	name := "consumer_" + strings.ReplaceAll(subject, ".", "-")
	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          name,
		Durable:       name,
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("creating consumer %s: %w", name, err)
	}

	log.Info().
		Str("stream", streamName).
		Str("subject", subject).
		Str("consumer", name).
		Msg("attached JetStream consumer")

	return consumer, nil
}

// ensureStream fetches the named stream, creating it when absent and
// widening its subject set when it exists but lacks subject.
func (b *NatsBroker) ensureStream(ctx context.Context, name, subject string) (jetstream.Stream, error) {
	stream, err := b.js.Stream(ctx, name)
	if err != nil {
		if !errors.Is(err, jetstream.ErrStreamNotFound) && !strings.Contains(err.Error(), "stream not found") {
			return nil, fmt.Errorf("getting stream %s: %w", name, err)
		}
		return b.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
			Name:     name,
			Subjects: []string{subject},
		})
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range info.Config.Subjects {
		if s == subject {
			return stream, nil
		}
	}

	cfg := info.Config
	cfg.Subjects = append(cfg.Subjects, subject)
	log.Info().Strs("subjects", cfg.Subjects).Str("stream", name).Msg("widening stream subjects")
	return b.js.CreateOrUpdateStream(ctx, cfg)
}
