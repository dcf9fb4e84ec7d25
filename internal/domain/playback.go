package domain

// PlaybackRecord is the single shared "now playing" state for a room.
// At most one record exists per room; writes are upserts keyed by RoomID,
// always stamped with the writer's identity and wall-clock time.
type PlaybackRecord struct {
	RoomID        RoomID  `json:"room_id" redis:"room_id"`
	CurrentItemID string  `json:"current_item_id" redis:"current_item_id"`
	Playing       bool    `json:"playing" redis:"playing"`
	Position      float64 `json:"position" redis:"position"`
	UpdatedBy     UserID  `json:"updated_by" redis:"updated_by"`
	UpdatedAt     int64   `json:"updated_at" redis:"updated_at"` // unix millis
}

// HasItem reports whether the record points at a queue item at all.
func (r *PlaybackRecord) HasItem() bool {
	return r.CurrentItemID != ""
}
