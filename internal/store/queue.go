package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/jamroom/jamroom/internal/domain"
	"github.com/jamroom/jamroom/internal/playback"
)

// Add appends an entry to the tail of the room's queue. Position is assigned
// from a per-room monotonic counter, so it is unique even across removals.
func (s *Store) Add(ctx context.Context, entry *domain.QueueEntry) error {
	pos, err := s.rdb.Incr(ctx, queueSeqKey(entry.RoomID)).Result()
	if err != nil {
		return fmt.Errorf("queue seq: %w", err)
	}
	entry.Position = pos

	payload, err := json.Marshal(Event{Type: EventQueueUpdated})
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, entryKey(entry.RoomID, entry.ID), entry)
		pipe.ZAdd(ctx, queueKey(entry.RoomID), redis.Z{Score: float64(pos), Member: entry.ID})
		pipe.Publish(ctx, eventsChannel(entry.RoomID), payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("queue add: %w", err)
	}
	return nil
}

// Remove deletes one entry from the queue.
func (s *Store) Remove(ctx context.Context, roomID domain.RoomID, entryID string) error {
	payload, err := json.Marshal(Event{Type: EventQueueUpdated})
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, queueKey(roomID), entryID)
		pipe.Del(ctx, entryKey(roomID, entryID))
		pipe.Publish(ctx, eventsChannel(roomID), payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("queue remove: %w", err)
	}
	return nil
}

// List returns the queue in position order.
func (s *Store) List(ctx context.Context, roomID domain.RoomID) ([]domain.QueueEntry, error) {
	ids, err := s.rdb.ZRange(ctx, queueKey(roomID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("queue list: %w", err)
	}
	out := make([]domain.QueueEntry, 0, len(ids))
	for _, id := range ids {
		entry, err := s.entry(ctx, roomID, id)
		if err != nil {
			return nil, err
		}
		if entry != nil {
			out = append(out, *entry)
		}
	}
	return out, nil
}

// Head returns the currently playing entry (position 0 by convention), or
// nil when the queue is empty.
func (s *Store) Head(ctx context.Context, roomID domain.RoomID) (*domain.QueueEntry, error) {
	ids, err := s.rdb.ZRange(ctx, queueKey(roomID), 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("queue head: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return s.entry(ctx, roomID, ids[0])
}

// Advance pops the head entry and returns the new head, nil when the queue
// ran out.
func (s *Store) Advance(ctx context.Context, roomID domain.RoomID) (*domain.QueueEntry, error) {
	head, err := s.Head(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if head != nil {
		if err := s.Remove(ctx, roomID, head.ID); err != nil {
			return nil, err
		}
	}
	return s.Head(ctx, roomID)
}

func (s *Store) entry(ctx context.Context, roomID domain.RoomID, entryID string) (*domain.QueueEntry, error) {
	cmd := s.rdb.HGetAll(ctx, entryKey(roomID, entryID))
	if err := cmd.Err(); err != nil {
		return nil, fmt.Errorf("queue entry: %w", err)
	}
	if len(cmd.Val()) == 0 {
		return nil, nil
	}
	var e domain.QueueEntry
	if err := cmd.Scan(&e); err != nil {
		return nil, fmt.Errorf("scan queue entry: %w", err)
	}
	return &e, nil
}

var _ playback.QueueSource = (*Store)(nil)
