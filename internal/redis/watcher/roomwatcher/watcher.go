package roomwatcher

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RoomCloser tears down every session in a room.
type RoomCloser interface {
	CloseRoom(roomID string) int
}

// Run listens for room teardown notifications and closes the named rooms.
// The payload of each message on channel is a room id.
// Run must be started once at service boot.
func Run(ctx context.Context, rdb *redis.Client, channel string, closer RoomCloser) {
	ps := rdb.Subscribe(ctx, channel)
	defer ps.Close()
	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			Handle(m.Payload, closer)
		}
	}
}

// Handle applies one teardown notification.
func Handle(payload string, closer RoomCloser) int {
	roomID := strings.TrimSpace(payload)
	if roomID == "" {
		return 0
	}
	n := closer.CloseRoom(roomID)
	zap.L().Info("roomwatcher.teardown", zap.String("room_id", roomID), zap.Int("sessions", n))
	return n
}
