package domain

import "github.com/google/uuid"

// QueueEntry is one song in a room's queue, ordered by Position.
// The entry at position 0 is the currently playing item.
type QueueEntry struct {
	ID      string `json:"id" redis:"id"`
	RoomID  RoomID `json:"room_id" redis:"room_id"`
	ItemID  string `json:"item_id" redis:"item_id"` // external video/track identifier
	Title   string `json:"title" redis:"title"`
	AddedBy UserID `json:"added_by" redis:"added_by"`
	// Position is assigned by the queue store, monotonically per room.
	Position int64 `json:"position" redis:"position"`
}

func NewQueueEntry(roomID RoomID, itemID, title string, addedBy UserID) *QueueEntry {
	return &QueueEntry{
		ID:      uuid.NewString(),
		RoomID:  roomID,
		ItemID:  itemID,
		Title:   title,
		AddedBy: addedBy,
	}
}
