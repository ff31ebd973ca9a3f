// Package kafka implements eventbus.Bus on a Kafka topic. Envelopes are
// JSON encoded and keyed by identity key, so every grant for the same
// achievement lands on the same partition in order.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"achievements/internal/achievement"
	"achievements/internal/eventbus"
	"achievements/pkg/platform/circuit"
	"achievements/pkg/platform/sentinel"
)

const messageIDHeader = "message-id"

// Config selects the brokers, topic and consumer group.
type Config struct {
	Brokers           []string
	Topic             string
	Group             string
	Partitions        int32
	ReplicationFactor int16
}

// Bus publishes and consumes envelopes through one franz-go client. A Bus
// supports a single subscription, owned by the ledger worker.
type Bus struct {
	client  *kgo.Client
	topic   string
	logger  *slog.Logger
	breaker *circuit.Breaker

	mu         sync.Mutex
	subscribed bool
	closed     bool
}

// Option configures the Bus.
type Option func(*Bus)

// WithLogger sets a logger for fetch and decode errors.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// New connects to the brokers and makes sure the topic exists.
func New(ctx context.Context, cfg Config, opts ...Option) (*Bus, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" || cfg.Group == "" {
		return nil, errors.New("kafka bus requires brokers, topic and group")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.ConsumerGroup(cfg.Group),
		kgo.ConsumeTopics(cfg.Topic),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	b := &Bus{
		client:  client,
		topic:   cfg.Topic,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		breaker: circuit.New("kafka-produce", circuit.WithFailureThreshold(3), circuit.WithCooldown(30*time.Second)),
	}
	for _, opt := range opts {
		opt(b)
	}

	if err := ensureTopic(ctx, kadm.NewClient(client), cfg); err != nil {
		client.Close()
		return nil, err
	}
	return b, nil
}

func ensureTopic(ctx context.Context, adm *kadm.Client, cfg Config) error {
	partitions := cfg.Partitions
	if partitions <= 0 {
		partitions = 1
	}
	replication := cfg.ReplicationFactor
	if replication <= 0 {
		replication = 1
	}
	resp, err := adm.CreateTopics(ctx, partitions, replication, nil, cfg.Topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w: %w", cfg.Topic, sentinel.ErrUnavailable, err)
	}
	for _, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

func (b *Bus) Publish(ctx context.Context, env achievement.Envelope) error {
	if b.isClosed() {
		return eventbus.ErrClosed
	}
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	record := &kgo.Record{
		Topic: b.topic,
		Key:   []byte(env.Achievement.IdentityKey()),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: messageIDHeader, Value: []byte(uuid.NewString())},
		},
	}
	if !b.breaker.Allow() {
		return fmt.Errorf("produce envelope: circuit %s open: %w", b.breaker.Name(), sentinel.ErrUnavailable)
	}
	if err := b.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		if _, change := b.breaker.RecordFailure(); change.Opened {
			b.logger.WarnContext(ctx, "kafka produce circuit opened", "error", err)
		}
		return fmt.Errorf("produce envelope: %w: %w", sentinel.ErrUnavailable, err)
	}
	if _, change := b.breaker.RecordSuccess(); change.Closed {
		b.logger.InfoContext(ctx, "kafka produce circuit closed")
	}
	return nil
}

func (b *Bus) Subscribe(ctx context.Context) (eventbus.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, eventbus.ErrClosed
	}
	if b.subscribed {
		return nil, fmt.Errorf("kafka bus already subscribed: %w", sentinel.ErrInvalidState)
	}
	b.subscribed = true

	pollCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub := &subscription{
		ch:     make(chan eventbus.Message),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go b.poll(pollCtx, sub)
	return sub, nil
}

func (b *Bus) poll(ctx context.Context, sub *subscription) {
	defer close(sub.done)
	defer close(sub.ch)
	for {
		fetches := b.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			b.logger.WarnContext(ctx, "kafka fetch error",
				"topic", topic,
				"partition", partition,
				"error", err,
			)
		})
		fetches.EachRecord(func(r *kgo.Record) {
			var env achievement.Envelope
			if err := json.Unmarshal(r.Value, &env); err != nil {
				b.logger.WarnContext(ctx, "dropping undecodable envelope",
					"partition", r.Partition,
					"offset", r.Offset,
					"error", err,
				)
				return
			}
			select {
			case sub.ch <- eventbus.Message{ID: messageID(r), Envelope: env}:
			case <-ctx.Done():
			}
		})
	}
}

func messageID(r *kgo.Record) uuid.UUID {
	for _, h := range r.Headers {
		if h.Key != messageIDHeader {
			continue
		}
		if id, err := uuid.ParseBytes(h.Value); err == nil {
			return id
		}
	}
	return uuid.New()
}

func (b *Bus) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Close flushes buffered records and closes the client, which also ends
// any subscription.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.client.Close()
	return nil
}

type subscription struct {
	ch     chan eventbus.Message
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *subscription) Messages() <-chan eventbus.Message {
	return s.ch
}

func (s *subscription) Close() error {
	s.once.Do(func() {
		s.cancel()
		// Drain so the poller is not stuck on a send while exiting.
		go func() {
			for range s.ch {
			}
		}()
		<-s.done
	})
	return nil
}
