package eventlog

import (
	"context"
	"database/sql"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStreamSink appends events to a capped Redis stream. syncevents tails
// the stream into Postgres.
type RedisStreamSink struct {
	rdc    redis.Cmdable
	stream string
	maxLen int64
}

func NewRedisStreamSink(rdc redis.Cmdable, stream string, maxLen int64) *RedisStreamSink {
	return &RedisStreamSink{rdc: rdc, stream: stream, maxLen: maxLen}
}

// XAddArgs builds the stream entry for ev.
func (s *RedisStreamSink) XAddArgs(ev SessionEvent) *redis.XAddArgs {
	return &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: s.maxLen > 0,
		Values: []any{
			"id", ev.ID,
			"room_id", ev.RoomID,
			"user_id", ev.UserID,
			"event_type", ev.EventType,
			"event_data", string(ev.EventData),
			"at", strconv.FormatInt(ev.Timestamp.UnixMilli(), 10),
		},
	}
}

func (s *RedisStreamSink) AppendSessionEvent(ctx context.Context, ev SessionEvent) error {
	return s.rdc.XAdd(ctx, s.XAddArgs(ev)).Err()
}

// InsertSessionEvent is shared by PostgresSink and the stream tailer.
const InsertSessionEvent = `INSERT INTO session_events (id, room_id, user_id, event_type, event_data, created_at)
	     VALUES ($1, $2, $3, $4, $5, $6)
	     ON CONFLICT (id) DO NOTHING`

// PostgresSink writes each event straight into session_events.
type PostgresSink struct {
	db *sql.DB
}

func NewPostgresSink(db *sql.DB) *PostgresSink { return &PostgresSink{db: db} }

func (s *PostgresSink) AppendSessionEvent(ctx context.Context, ev SessionEvent) error {
	_, err := s.db.ExecContext(ctx, InsertSessionEvent,
		ev.ID, ev.RoomID, ev.UserID, ev.EventType, string(ev.EventData), ev.Timestamp)
	return err
}

// LogSink only logs; used when no persistence backend is configured.
type LogSink struct{}

func (LogSink) AppendSessionEvent(_ context.Context, ev SessionEvent) error {
	zap.L().Info("session_event",
		zap.String("id", ev.ID),
		zap.String("room_id", ev.RoomID),
		zap.String("user_id", ev.UserID),
		zap.String("event_type", ev.EventType),
		zap.ByteString("event_data", ev.EventData),
	)
	return nil
}
