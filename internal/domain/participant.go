package domain

import "sync"

// Participant represents a user's membership meta for a room.
// The media flags mirror local track toggles; other clients read them for
// UI indicators only, the sync core never consumes them. The registry writes
// the flags while room snapshots read them, so they guard themselves.
type Participant struct {
	User *User

	mu           sync.RWMutex
	audioEnabled bool
	videoEnabled bool
}

// NewParticipant avoids raw literals in adapters and keeps construction obvious.
func NewParticipant(user *User) *Participant {
	return &Participant{User: user}
}

func (p *Participant) SetMediaFlags(audio, video bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.audioEnabled = audio
	p.videoEnabled = video
}

func (p *Participant) MediaFlags() (audio, video bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.audioEnabled, p.videoEnabled
}
