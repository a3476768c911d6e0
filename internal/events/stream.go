package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/chaldduk-checkout/internal/obs"
)

// DefaultStream is the Redis stream checkout events are appended to.
const DefaultStream = "events:checkout"

// RedisStream stores events in a capped Redis stream.
type RedisStream struct {
	R      *redis.Client
	Stream string
	MaxLen int64
}

// Append adds ev to the stream; the stream entry id becomes the event id.
func (s *RedisStream) Append(ctx context.Context, ev Event) (Event, error) {
	if s == nil || s.R == nil {
		return Event{}, errors.New("events: redis not configured")
	}
	maxLen := s.MaxLen
	if maxLen <= 0 {
		maxLen = 10000
	}
	id, err := s.R.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream(),
		MaxLen: maxLen,
		Approx: true,
		Values: map[string]any{
			"topic":       ev.Topic,
			"aggregateId": ev.AggregateID,
			"payload":     string(ev.Payload),
			"occurredAt":  ev.OccurredAt.Format(time.RFC3339Nano),
		},
	}).Result()
	if err != nil {
		return Event{}, err
	}
	ev.ID = id
	return ev, nil
}

// Recent returns up to count events, newest first.
func (s *RedisStream) Recent(ctx context.Context, count int64) ([]Event, error) {
	if s == nil || s.R == nil {
		return nil, errors.New("events: redis not configured")
	}
	msgs, err := s.R.XRevRangeN(ctx, s.stream(), "+", "-", count).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(msgs))
	for _, m := range msgs {
		ev, err := decodeMessage(m)
		if err != nil {
			return nil, fmt.Errorf("events: decode %s: %w", m.ID, err)
		}
		out = append(out, ev)
	}
	return out, nil
}

func (s *RedisStream) stream() string {
	if s.Stream == "" {
		return DefaultStream
	}
	return s.Stream
}

func decodeMessage(m redis.XMessage) (Event, error) {
	ev := Event{ID: m.ID}
	ev.Topic, _ = m.Values["topic"].(string)
	ev.AggregateID, _ = m.Values["aggregateId"].(string)
	payload, _ := m.Values["payload"].(string)
	if payload != "" {
		if !json.Valid([]byte(payload)) {
			return Event{}, errors.New("payload is not valid json")
		}
		ev.Payload = json.RawMessage(payload)
	}
	if raw, _ := m.Values["occurredAt"].(string); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return Event{}, err
		}
		ev.OccurredAt = t
	}
	return ev, nil
}

// LogNotifier writes each event to the structured log.
type LogNotifier struct {
	Logger zerolog.Logger
}

// Notify logs ev at info level.
func (n LogNotifier) Notify(ctx context.Context, ev Event) error {
	logger := zerolog.Ctx(ctx)
	if logger.GetLevel() == zerolog.Disabled {
		logger = &n.Logger
	}
	logger.Info().
		Str("event_id", ev.ID).
		Str("topic", ev.Topic).
		Str("aggregate_id", ev.AggregateID).
		RawJSON("payload", ev.Payload).
		Msg("checkout event")
	return nil
}

// MetricsNotifier counts events per topic.
type MetricsNotifier struct{}

// Notify increments the event counter.
func (MetricsNotifier) Notify(_ context.Context, ev Event) error {
	obs.RecordEvent(ev.Topic)
	return nil
}
