package peer

import (
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/jamroom/jamroom/internal/core"
	"github.com/jamroom/jamroom/internal/domain"
)

// RemoteStream accumulates the inbound tracks of one remote participant.
type RemoteStream struct {
	UserID domain.UserID

	mu     sync.Mutex
	tracks []*webrtc.TrackRemote
}

func (s *RemoteStream) addTrack(t *webrtc.TrackRemote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracks = append(s.tracks, t)
}

// Tracks returns a snapshot of the inbound tracks received so far.
func (s *RemoteStream) Tracks() []*webrtc.TrackRemote {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*webrtc.TrackRemote, len(s.tracks))
	copy(out, s.tracks)
	return out
}

// Link is one managed point-to-point media connection to a remote
// participant. At most one Link exists per remote user id at any time.
type Link struct {
	UserID domain.UserID
	Conn   core.MediaConnection
	Stream *RemoteStream

	mu        sync.Mutex
	remoteSet bool
	// Candidates that arrived before the remote description was committed.
	// Flushed in arrival order once it is.
	pending []webrtc.ICECandidateInit
}

func (l *Link) applyOffer(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	answer, err := l.Conn.ApplyOfferCreateAnswer(offer)
	if err != nil {
		return nil, err
	}
	l.remoteSet = true
	l.flushPendingLocked()
	return answer, nil
}

func (l *Link) applyAnswer(answer webrtc.SessionDescription) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.Conn.ApplyAnswer(answer); err != nil {
		return err
	}
	l.remoteSet = true
	l.flushPendingLocked()
	return nil
}

func (l *Link) addCandidate(ci webrtc.ICECandidateInit) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.remoteSet {
		l.pending = append(l.pending, ci)
		return nil
	}
	return l.Conn.AddICECandidate(ci)
}

func (l *Link) flushPendingLocked() {
	for _, ci := range l.pending {
		if err := l.Conn.AddICECandidate(ci); err != nil {
			log.Error().Err(err).Str("module", "peer").Str("peer", string(l.UserID)).Msg("flush buffered candidate")
		}
	}
	l.pending = nil
}
