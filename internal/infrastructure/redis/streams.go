package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cassiomorais/orders/internal/messaging"
	"github.com/redis/go-redis/v9"
)

// Stream entry fields.
const (
	fieldBody       = "body"
	fieldAttributes = "attributes"
	fieldEventID    = "event_id"
	fieldEventType  = "event_type"
)

// StreamPublisher appends messages to the stream named by Message.Topic.
type StreamPublisher struct {
	client *redis.Client
	maxLen int64
}

// NewStreamPublisher creates a publisher. maxLen > 0 caps each stream
// approximately at that length.
func NewStreamPublisher(client *redis.Client, maxLen int64) *StreamPublisher {
	return &StreamPublisher{client: client, maxLen: maxLen}
}

func (p *StreamPublisher) Publish(ctx context.Context, msg messaging.Message) error {
	attrs, err := json.Marshal(msg.Attributes)
	if err != nil {
		return fmt.Errorf("failed to marshal attributes: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: msg.Topic,
		Values: map[string]any{
			fieldEventID:    msg.Key,
			fieldEventType:  msg.Attributes[messaging.AttrEventType],
			fieldBody:       string(msg.Body),
			fieldAttributes: string(attrs),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to publish to stream %s: %w", msg.Topic, err)
	}
	return nil
}

type StreamSubscriberConfig struct {
	Stream    string
	Group     string
	Consumer  string
	BatchSize int64
	// Block bounds how long Receive waits for new entries. Zero does not block.
	Block time.Duration
	// ClaimIdle is how long an entry stays pending before Receive reclaims it.
	ClaimIdle time.Duration
}

// StreamSubscriber reads a stream through a consumer group. Entries that are
// not acked stay pending and are reclaimed once idle for ClaimIdle.
type StreamSubscriber struct {
	client *redis.Client
	cfg    StreamSubscriberConfig
}

func NewStreamSubscriber(client *redis.Client, cfg StreamSubscriberConfig) *StreamSubscriber {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.ClaimIdle <= 0 {
		cfg.ClaimIdle = time.Minute
	}
	return &StreamSubscriber{client: client, cfg: cfg}
}

func (s *StreamSubscriber) CreateGroup(ctx context.Context) error {
	// Create stream if it doesn't exist
	const busyGroupMsg = "BUSYGROUP"
	err := s.client.XGroupCreateMkStream(ctx, s.cfg.Stream, s.cfg.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), busyGroupMsg) {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

func (s *StreamSubscriber) Receive(ctx context.Context) ([]messaging.Delivery, error) {
	claimed, err := s.reclaim(ctx)
	if err != nil {
		return nil, err
	}
	if len(claimed) > 0 {
		return claimed, nil
	}

	block := s.cfg.Block
	if block <= 0 {
		block = -1
	}
	streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.cfg.Group,
		Consumer: s.cfg.Consumer,
		Streams:  []string{s.cfg.Stream, ">"},
		Count:    s.cfg.BatchSize,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// No new messages
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read from stream: %w", err)
	}

	var out []messaging.Delivery
	for _, st := range streams {
		for _, m := range st.Messages {
			out = append(out, toDelivery(m, 1))
		}
	}
	return out, nil
}

// reclaim takes over entries another consumer (or this one, before a nack or
// crash) left pending for longer than ClaimIdle.
func (s *StreamSubscriber) reclaim(ctx context.Context) ([]messaging.Delivery, error) {
	msgs, _, err := s.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   s.cfg.Stream,
		Group:    s.cfg.Group,
		Consumer: s.cfg.Consumer,
		MinIdle:  s.cfg.ClaimIdle,
		Start:    "0-0",
		Count:    s.cfg.BatchSize,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim pending messages: %w", err)
	}

	out := make([]messaging.Delivery, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toDelivery(m, s.deliveryCount(ctx, m.ID)))
	}
	return out, nil
}

func (s *StreamSubscriber) deliveryCount(ctx context.Context, id string) int {
	pending, err := s.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: s.cfg.Stream,
		Group:  s.cfg.Group,
		Start:  id,
		End:    id,
		Count:  1,
	}).Result()
	if err != nil || len(pending) == 0 {
		return 2
	}
	return int(pending[0].RetryCount)
}

func (s *StreamSubscriber) Ack(ctx context.Context, d messaging.Delivery) error {
	if err := s.client.XAck(ctx, s.cfg.Stream, s.cfg.Group, d.Handle).Err(); err != nil {
		return fmt.Errorf("failed to ack message: %w", err)
	}
	return nil
}

// Nack leaves the entry pending; it is reclaimed after ClaimIdle.
func (s *StreamSubscriber) Nack(context.Context, messaging.Delivery) error {
	return nil
}

func toDelivery(m redis.XMessage, receiveCount int) messaging.Delivery {
	d := messaging.Delivery{
		ID:           m.ID,
		Handle:       m.ID,
		Body:         []byte(stringField(m.Values, fieldBody)),
		Attributes:   map[string]string{},
		ReceiveCount: receiveCount,
	}
	if raw := stringField(m.Values, fieldAttributes); raw != "" {
		_ = json.Unmarshal([]byte(raw), &d.Attributes)
	}
	if id := stringField(m.Values, fieldEventID); id != "" {
		d.Attributes[messaging.AttrEventID] = id
	}
	if t := stringField(m.Values, fieldEventType); t != "" {
		d.Attributes[messaging.AttrEventType] = t
	}
	return d
}

func stringField(values map[string]any, key string) string {
	s, _ := values[key].(string)
	return s
}

// StreamDeadLetterSink appends dead letters to a Redis stream.
type StreamDeadLetterSink struct {
	client *redis.Client
	stream string
}

func NewStreamDeadLetterSink(client *redis.Client, stream string) *StreamDeadLetterSink {
	return &StreamDeadLetterSink{client: client, stream: stream}
}

func (s *StreamDeadLetterSink) DeadLetter(ctx context.Context, dl messaging.DeadLetter) error {
	attrs, err := json.Marshal(dl.Attributes)
	if err != nil {
		return fmt.Errorf("failed to marshal DLQ attributes: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"message_id":    dl.MessageID,
			"delivery_id":   dl.DeliveryID,
			fieldEventType:  dl.EventType,
			"reason":        dl.Reason,
			fieldBody:       string(dl.Body),
			fieldAttributes: string(attrs),
			"failed_at":     dl.FailedAt.UTC().Format(time.RFC3339Nano),
		},
	}

	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to publish to DLQ: %w", err)
	}
	return nil
}
