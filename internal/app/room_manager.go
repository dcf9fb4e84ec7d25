package app

import (
	"sync"

	"github.com/google/uuid"

	"github.com/jamroom/jamroom/internal/core"
	"github.com/jamroom/jamroom/internal/domain"
)

type RoomManagerImpl struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]core.RoomService
}

func NewRoomManager() core.RoomFactory {
	return &RoomManagerImpl{rooms: make(map[domain.RoomID]core.RoomService)}
}

// Create makes a new room with the given host. Room ids are never reused.
func (f *RoomManagerImpl) Create(name domain.RoomName, host domain.UserID) core.RoomService {
	room := core.NewRoomService(&domain.Room{
		ID:     domain.RoomID(uuid.NewString()),
		Name:   name,
		HostID: host,
	})
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rooms[room.Room().ID] = room
	return room
}

func (f *RoomManagerImpl) Get(id domain.RoomID) (core.RoomService, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	room, ok := f.rooms[id]
	return room, ok
}

func (f *RoomManagerImpl) List() []core.RoomInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]core.RoomInfo, 0, len(f.rooms))
	for id, r := range f.rooms {
		out = append(out, core.RoomInfo{ID: id, Name: r.Room().Name, MemberCount: r.MemberCount()})
	}
	return out
}

func (f *RoomManagerImpl) StopRoom(id domain.RoomID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rooms, id)
}
