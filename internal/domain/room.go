package domain

type (
	RoomName string
	RoomID   string
)

// Room is a named listening session. The creator becomes the host and keeps
// that role for the whole lifetime of the room.
type Room struct {
	ID     RoomID   `json:"id"`
	Name   RoomName `json:"name"`
	HostID UserID   `json:"host_id"`
}
