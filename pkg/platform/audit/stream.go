package audit

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	DefaultStream       = "warden:audit"
	DefaultStreamMaxLen = 100_000
)

// StreamEmitter appends audit events to a Redis stream so a separate consumer
// can ship them to long-term storage. The stream is trimmed approximately to
// maxLen entries.
type StreamEmitter struct {
	client goredis.UniversalClient
	stream string
	maxLen int64
}

func NewStreamEmitter(client goredis.UniversalClient, stream string, maxLen int64) *StreamEmitter {
	if stream == "" {
		stream = DefaultStream
	}
	if maxLen <= 0 {
		maxLen = DefaultStreamMaxLen
	}
	return &StreamEmitter{client: client, stream: stream, maxLen: maxLen}
}

func (e *StreamEmitter) Emit(ctx context.Context, event Event) error {
	err := e.client.XAdd(ctx, &goredis.XAddArgs{
		Stream: e.stream,
		MaxLen: e.maxLen,
		Approx: true,
		Values: map[string]any{
			"ts":         event.Timestamp.UTC().Format(time.RFC3339Nano),
			"action":     event.Action,
			"subject":    event.Subject,
			"reason":     event.Reason,
			"request_id": event.RequestID,
			"ip_prefix":  event.IPPrefix,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("append audit event to %s: %w", e.stream, err)
	}
	return nil
}

var _ Emitter = (*StreamEmitter)(nil)
