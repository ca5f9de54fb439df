package syncevents

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"collabhub/internal/eventlog"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(id string, values map[string]any) redis.XMessage {
	return redis.XMessage{ID: id, Values: values}
}

func TestDecode(t *testing.T) {
	ev, err := decode(entry("1-0", map[string]any{
		"id":         "e1",
		"room_id":    "X",
		"user_id":    "alice",
		"event_type": eventlog.EventUserJoined,
		"event_data": `{"a":1}`,
		"at":         "1700000000123",
	}))
	require.NoError(t, err)
	assert.Equal(t, "e1", ev.ID)
	assert.Equal(t, "X", ev.RoomID)
	assert.JSONEq(t, `{"a":1}`, string(ev.EventData))
	assert.Equal(t, time.UnixMilli(1700000000123).UTC(), ev.Timestamp)

	ev, err = decode(entry("2-0", map[string]any{"id": "e2", "event_type": "user_left", "at": "1"}))
	require.NoError(t, err)
	assert.Equal(t, "{}", string(ev.EventData))

	_, err = decode(entry("3-0", map[string]any{"id": "e3", "event_type": "x", "at": "soon"}))
	assert.Error(t, err)
	_, err = decode(entry("4-0", map[string]any{"at": "1"}))
	assert.Error(t, err)
}

func TestPersist(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	msgs := []redis.XMessage{
		entry("1-0", map[string]any{"id": "e1", "room_id": "X", "user_id": "alice", "event_type": "chat_message", "event_data": `{"content":"hi"}`, "at": "1000"}),
		entry("2-0", map[string]any{"garbage": "1"}),
		entry("3-0", map[string]any{"id": "e3", "room_id": "X", "user_id": "bob", "event_type": "user_left", "at": "2000"}),
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO session_events")).
		WithArgs("e1", "X", "alice", "chat_message", `{"content":"hi"}`, time.UnixMilli(1000).UTC()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO session_events")).
		WithArgs("e3", "X", "bob", "user_left", "{}", time.UnixMilli(2000).UTC()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	require.NoError(t, persist(context.Background(), db, msgs))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPersist_RollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO session_events")).
		WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	err = persist(context.Background(), db, []redis.XMessage{
		entry("1-0", map[string]any{"id": "e1", "event_type": "user_joined", "at": "1"}),
	})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_PersistsAndAdvances(t *testing.T) {
	rdc, rmock := redismock.NewClientMock()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rmock.ExpectXRead(&redis.XReadArgs{
		Streams: []string{"s", "0-0"},
		Count:   100,
		Block:   2 * time.Second,
	}).SetVal([]redis.XStream{{
		Stream:   "s",
		Messages: []redis.XMessage{entry("5-0", map[string]any{"id": "e1", "event_type": "user_joined", "at": "1"})},
	}})
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO session_events")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// the second read continues after the last persisted id
	rmock.ExpectXRead(&redis.XReadArgs{
		Streams: []string{"s", "5-0"},
		Count:   100,
		Block:   2 * time.Second,
	}).RedisNil()

	Run(ctx, rdc, db, "s")

	assert.Eventually(t, func() bool {
		return mock.ExpectationsWereMet() == nil && rmock.ExpectationsWereMet() == nil
	}, 3*time.Second, 20*time.Millisecond)
	cancel()
	assert.NoError(t, mock.ExpectationsWereMet())
}
