package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/jamroom/jamroom/internal/domain"
	"github.com/jamroom/jamroom/internal/playback"
)

// Fetch reads the full playback record for a room.
func (s *Store) Fetch(ctx context.Context, roomID domain.RoomID) (*domain.PlaybackRecord, error) {
	cmd := s.rdb.HGetAll(ctx, playerKey(roomID))
	if err := cmd.Err(); err != nil {
		return nil, fmt.Errorf("fetch playback record: %w", err)
	}
	if len(cmd.Val()) == 0 {
		return nil, playback.ErrRecordNotFound
	}
	var rec domain.PlaybackRecord
	if err := cmd.Scan(&rec); err != nil {
		return nil, fmt.Errorf("scan playback record: %w", err)
	}
	return &rec, nil
}

// Upsert writes the record keyed by room id and publishes a player_updated
// event on the room's change feed in the same transaction.
func (s *Store) Upsert(ctx context.Context, rec *domain.PlaybackRecord) error {
	payload, err := json.Marshal(Event{Type: EventPlayerUpdated, Record: rec})
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, playerKey(rec.RoomID), rec)
		pipe.Publish(ctx, eventsChannel(rec.RoomID), payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("upsert playback record: %w", err)
	}
	return nil
}

// DeleteRoomState removes all shared state for a room. Called when the room
// itself is evicted.
func (s *Store) DeleteRoomState(ctx context.Context, roomID domain.RoomID) error {
	ids, err := s.rdb.ZRange(ctx, queueKey(roomID), 0, -1).Result()
	if err != nil {
		return err
	}
	keys := []string{playerKey(roomID), queueKey(roomID), queueSeqKey(roomID)}
	for _, id := range ids {
		keys = append(keys, entryKey(roomID, id))
	}
	return s.rdb.Del(ctx, keys...).Err()
}

var _ playback.RecordStore = (*Store)(nil)
