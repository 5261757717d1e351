package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Delayed delivery is layered on top of the stream with a sorted set. Members
// are JSON-encoded envelopes scored by their due time in unix milliseconds.
// The consume loop promotes due envelopes into the stream on every tick, so
// delivery is at-least-once with roughly PollInterval granularity.

type delayedEnvelope struct {
	Data     string            `json:"data"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Attempts int               `json:"attempts"`
	Nonce    int64             `json:"nonce"`
}

func (q *Queue) delayedKey() string {
	return q.config.Name + ":delayed"
}

// PublishDelayed schedules a message for delivery after the given delay.
// A zero or negative delay publishes immediately.
func (q *Queue) PublishDelayed(ctx context.Context, data []byte, metadata map[string]string, delay time.Duration) error {
	if delay <= 0 {
		_, err := q.Publish(ctx, data, metadata)
		return err
	}

	env := delayedEnvelope{
		Data:     string(data),
		Metadata: metadata,
		Nonce:    time.Now().UnixNano(),
	}
	member, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal delayed envelope: %w", err)
	}

	due := time.Now().Add(delay).UnixMilli()
	if err := q.adapter.ZAdd(q.delayedKey(), float64(due), string(member)); err != nil {
		return fmt.Errorf("failed to schedule delayed message: %w", err)
	}
	return nil
}

// PublishJSONDelayed schedules a JSON-encoded message.
func (q *Queue) PublishJSONDelayed(ctx context.Context, data interface{}, metadata map[string]string, delay time.Duration) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return q.PublishDelayed(ctx, jsonData, metadata, delay)
}

// promoteDueMessages moves due envelopes from the sorted set into the stream.
// Promotion removes the member only after a successful XAdd; a crash between
// the two can duplicate a message, which downstream idempotency absorbs.
func (q *Queue) promoteDueMessages() {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)

	members, err := q.adapter.ZRangeByScore(q.delayedKey(), "-inf", now, q.config.BatchSize)
	if err != nil || len(members) == 0 {
		return
	}

	for _, member := range members {
		var env delayedEnvelope
		if err := json.Unmarshal([]byte(member), &env); err != nil {
			// Unparseable member, drop it so it does not wedge the set.
			_ = q.adapter.ZRem(q.delayedKey(), member)
			continue
		}

		if _, err := q.Publish(q.ctx, []byte(env.Data), env.Metadata); err != nil {
			continue
		}
		_ = q.adapter.ZRem(q.delayedKey(), member)
	}
}

// DelayedCount reports how many messages are waiting in the delay set.
func (q *Queue) DelayedCount() (int64, error) {
	return q.adapter.ZCard(q.delayedKey())
}
