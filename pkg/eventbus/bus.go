package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/scenestack/pipeline/pkg/domain"
)

// DefaultMaxDeliveries is how many times a message is redelivered to a
// consumer group before it is moved to the dead-letter stream and an
// ERROR_OCCURRED event is emitted (spec §4.1 "subscribers that repeatedly
// fail redelivery are dead-lettered").
const DefaultMaxDeliveries = 3

// streamField is the single field name every stream entry carries — the
// JSON-encoded event. Redis Streams are field/value maps; a bus doesn't need
// more than one field since the event itself is already structured.
const streamField = "event"

// Handler processes one delivered event. Returning an error leaves the
// message unacknowledged so it is redelivered (or, past MaxDeliveries,
// dead-lettered).
type Handler func(ctx context.Context, e *domain.Event) error

// Bus fans out durably-appended events over per-project Redis Streams using
// consumer groups, so every subscriber group sees every event at least once
// and crashed consumers don't lose in-flight work (spec §4.1 Event Bus).
type Bus struct {
	client        redis.UniversalClient
	store         *Store
	maxDeliveries int64
	claimMinIdle  time.Duration
	log           *slog.Logger
}

// New builds a Bus. store is the durable log that Publish appends to before
// fanning the event out.
func New(client redis.UniversalClient, store *Store, log *slog.Logger) *Bus {
	if log == nil {
		log = slog.Default()
	}
	return &Bus{client: client, store: store, maxDeliveries: DefaultMaxDeliveries, claimMinIdle: time.Minute, log: log}
}

// WithMaxDeliveries overrides DefaultMaxDeliveries.
func (b *Bus) WithMaxDeliveries(n int64) *Bus {
	b.maxDeliveries = n
	return b
}

// WithClaimMinIdle overrides how long a pending entry must be idle before
// claimStale reclaims it for redelivery (default one minute).
func (b *Bus) WithClaimMinIdle(d time.Duration) *Bus {
	b.claimMinIdle = d
	return b
}

// streamKey is the per-project stream name. Scoping by project keeps one
// noisy project's backlog from starving consumer groups on another.
func streamKey(projectID string) string {
	return "events:{" + projectID + "}"
}

func deadLetterKey(projectID string) string {
	return "events:{" + projectID + "}:dead"
}

// Publish durably appends e to the event log, then adds it to the project's
// stream for fanout. Append-then-fan-out (not the reverse) means a consumer
// can never observe an event that a replay/causation-chain query can't also
// see (spec §4.1: "durable log is authoritative; the stream is a delivery
// mechanism, not a second source of truth").
func (b *Bus) Publish(ctx context.Context, e *domain.Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	if err := b.store.Append(ctx, e); err != nil {
		return err
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("eventbus: marshal %s for publish: %w", e.ID, err)
	}

	if err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey(e.ProjectID),
		Values: map[string]any{streamField: payload},
	}).Err(); err != nil {
		return fmt.Errorf("eventbus: publish %s: %w", e.ID, err)
	}
	return nil
}

// ensureGroup creates the consumer group at the tail of the stream if it
// doesn't already exist. MkStream so a group can be created before the first
// event ever lands on an empty project stream.
func (b *Bus) ensureGroup(ctx context.Context, stream, group string) error {
	err := b.client.XGroupCreateMkStream(ctx, stream, group, "$").Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		// BUSYGROUP means it already exists — not an error.
		if isBusyGroupErr(err) {
			return nil
		}
		return err
	}
	return nil
}

func isBusyGroupErr(err error) bool {
	return err != nil && len(err.Error()) >= 9 && err.Error()[:9] == "BUSYGROUP"
}

// StartConsuming runs group as a named consumer against projectID's stream
// until ctx is cancelled, calling handler for each delivered event and
// acking on success. Failed deliveries are retried up to maxDeliveries times
// (tracked via XPENDING's delivery count) before being moved to the
// project's dead-letter stream and reported as an ERROR_OCCURRED event
// (spec §4.1, §7 error taxonomy).
func (b *Bus) StartConsuming(ctx context.Context, projectID, group, consumer string, handler Handler) error {
	stream := streamKey(projectID)
	if err := b.ensureGroup(ctx, stream, group); err != nil {
		return fmt.Errorf("eventbus: create group %s on %s: %w", group, stream, err)
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := b.claimStale(ctx, stream, group, consumer, handler); err != nil {
			b.log.Error("eventbus: claim stale entries failed", "stream", stream, "group", group, "error", err)
		}

		res, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: consumer,
			Streams:  []string{stream, ">"},
			Count:    10,
			Block:    500 * time.Millisecond,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
				continue
			}
			return fmt.Errorf("eventbus: read group %s: %w", group, err)
		}

		for _, s := range res {
			for _, msg := range s.Messages {
				b.deliver(ctx, stream, group, msg, handler)
			}
		}
	}
}

// claimStale takes ownership of pending entries idle longer than
// claimMinIdle and redelivers them through handler directly — covers a
// crashed consumer's in-flight messages, and this consumer's own failed
// deliveries, without waiting on a fresh XReadGroup read (reclaimed entries
// aren't "new" and so never arrive via the ">" id again).
func (b *Bus) claimStale(ctx context.Context, stream, group, consumer string, handler Handler) error {
	msgs, _, err := b.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   stream,
		Group:    group,
		Consumer: consumer,
		MinIdle:  b.claimMinIdle,
		Start:    "0",
		Count:    10,
	}).Result()
	if err != nil {
		return err
	}
	for _, msg := range msgs {
		b.deliver(ctx, stream, group, msg, handler)
	}
	return nil
}

func (b *Bus) deliver(ctx context.Context, stream, group string, msg redis.XMessage, handler Handler) {
	raw, _ := msg.Values[streamField].(string)
	var e domain.Event
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		b.log.Error("eventbus: undecodable message, dead-lettering", "stream", stream, "id", msg.ID, "error", err)
		b.deadLetter(ctx, stream, group, msg, "")
		return
	}

	if err := handler(ctx, &e); err != nil {
		deliveries := b.deliveryCount(ctx, stream, group, msg.ID)
		if deliveries >= b.maxDeliveries {
			b.log.Warn("eventbus: dead-lettering after max deliveries",
				"stream", stream, "group", group, "event_id", e.ID, "deliveries", deliveries)
			b.deadLetter(ctx, stream, group, msg, e.ProjectID)
			b.emitErrorOccurred(ctx, &e, err)
			return
		}
		// Leave unacked; XAutoClaim/redelivery picks it up on a later pass.
		return
	}

	if err := b.client.XAck(ctx, stream, group, msg.ID).Err(); err != nil {
		b.log.Error("eventbus: ack failed", "stream", stream, "id", msg.ID, "error", err)
	}
}

func (b *Bus) deliveryCount(ctx context.Context, stream, group, id string) int64 {
	pending, err := b.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream, Group: group, Start: id, End: id, Count: 1,
	}).Result()
	if err != nil || len(pending) == 0 {
		return 1
	}
	return pending[0].RetryCount
}

func (b *Bus) deadLetter(ctx context.Context, stream, group string, msg redis.XMessage, projectID string) {
	if err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: deadLetterKey(projectID),
		Values: msg.Values,
	}).Err(); err != nil {
		b.log.Error("eventbus: dead-letter append failed", "error", err)
	}
	if err := b.client.XAck(ctx, stream, group, msg.ID).Err(); err != nil {
		b.log.Error("eventbus: ack of dead-lettered message failed", "error", err)
	}
}

func (b *Bus) emitErrorOccurred(ctx context.Context, failed *domain.Event, cause error) {
	errEvent := &domain.Event{
		ID:          uuid.NewString(),
		ProjectID:   failed.ProjectID,
		Type:        domain.EventTypeErrorOccurred,
		Actor:       "eventbus",
		CausationID: failed.ID,
		Timestamp:   time.Now().UTC(),
		Payload: map[string]any{
			"failed_event_type": failed.Type,
			"error":             cause.Error(),
		},
	}
	if err := b.Publish(ctx, errEvent); err != nil {
		b.log.Error("eventbus: failed to emit ERROR_OCCURRED", "error", err)
	}
}
