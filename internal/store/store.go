// Package store keeps the shared room state (playback record, song queue)
// in Redis and publishes a change feed per room over Redis pub/sub.
package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/jamroom/jamroom/internal/domain"
)

type Store struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// NewClient dials Redis and verifies the connection.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func playerKey(roomID domain.RoomID) string {
	return fmt.Sprintf("room:%s:player", roomID)
}

func eventsChannel(roomID domain.RoomID) string {
	return fmt.Sprintf("room:%s:events", roomID)
}

func queueKey(roomID domain.RoomID) string {
	return fmt.Sprintf("room:%s:queue", roomID)
}

func queueSeqKey(roomID domain.RoomID) string {
	return fmt.Sprintf("room:%s:queue:seq", roomID)
}

func entryKey(roomID domain.RoomID, entryID string) string {
	return fmt.Sprintf("room:%s:entry:%s", roomID, entryID)
}
