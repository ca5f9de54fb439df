// Package syncevents tails the session event stream into Postgres.
package syncevents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"collabhub/internal/eventlog"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Run tails the Redis stream and persists every session event. The stream is
// read from the beginning on start; duplicate ids are ignored by the insert.
func Run(ctx context.Context, rdc redis.Cmdable, db *sql.DB, stream string) {
	go func() {
		lastID := "0-0"
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			// block up to 2 s for new entries
			res, err := rdc.XRead(ctx, &redis.XReadArgs{
				Streams: []string{stream, lastID},
				Count:   100,
				Block:   2000 * time.Millisecond,
			}).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				if ctx.Err() != nil {
					return
				}
				zap.L().Warn("syncevents.xread", zap.Error(err))
				time.Sleep(time.Second)
				continue
			}
			if len(res) == 0 || len(res[0].Messages) == 0 {
				continue
			}
			entries := res[0].Messages
			if err := persist(ctx, db, entries); err != nil {
				zap.L().Error("syncevents.persist", zap.Error(err), zap.Int("entries", len(entries)))
				time.Sleep(time.Second)
				continue // retry the same batch
			}
			lastID = entries[len(entries)-1].ID
		}
	}()
}

// decode turns a stream entry written by eventlog.RedisStreamSink back into
// an event.
func decode(m redis.XMessage) (eventlog.SessionEvent, error) {
	field := func(k string) string {
		s, _ := m.Values[k].(string)
		return s
	}
	ev := eventlog.SessionEvent{
		ID:        field("id"),
		RoomID:    field("room_id"),
		UserID:    field("user_id"),
		EventType: field("event_type"),
	}
	if ev.ID == "" || ev.EventType == "" {
		return ev, fmt.Errorf("stream entry %s: missing id or event_type", m.ID)
	}
	ev.EventData = []byte(field("event_data"))
	if len(ev.EventData) == 0 {
		ev.EventData = []byte("{}")
	}
	ms, err := strconv.ParseInt(field("at"), 10, 64)
	if err != nil {
		return ev, fmt.Errorf("stream entry %s: bad timestamp: %w", m.ID, err)
	}
	ev.Timestamp = time.UnixMilli(ms).UTC()
	return ev, nil
}

func persist(ctx context.Context, db *sql.DB, msgs []redis.XMessage) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		ev, err := decode(m)
		if err != nil {
			// malformed entries are skipped so they cannot wedge the tailer
			zap.L().Warn("syncevents.skip", zap.Error(err))
			continue
		}
		if _, err := tx.ExecContext(ctx, eventlog.InsertSessionEvent,
			ev.ID, ev.RoomID, ev.UserID, ev.EventType, string(ev.EventData), ev.Timestamp,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
