// Package peer maintains one bidirectional media connection per other room
// participant, negotiated over a relay channel, and exposes each remote
// participant's inbound media as a lookup by user id.
package peer

import (
	"context"
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/jamroom/jamroom/internal/core"
	"github.com/jamroom/jamroom/internal/domain"
	"github.com/jamroom/jamroom/internal/media"
)

var ErrManagerClosed = errors.New("peer manager closed")

// Signaler relays negotiation messages to a remote participant.
// Delivery is broadcast on the room channel; receivers filter by target.
type Signaler interface {
	SendOffer(to domain.UserID, sdp webrtc.SessionDescription) error
	SendAnswer(to domain.UserID, sdp webrtc.SessionDescription) error
	SendCandidate(to domain.UserID, cand webrtc.ICECandidateInit) error
}

// ConnFactory builds the connection handle for a new link.
type ConnFactory func(remote domain.UserID) (core.MediaConnection, error)

// Manager owns the remote-user-id -> Link mapping. Only the operations below
// mutate it.
type Manager struct {
	signaler Signaler
	newConn  ConnFactory
	local    *media.LocalStream // nil when media acquisition failed or was declined
	onStream func(domain.UserID, *RemoteStream)

	mu     sync.Mutex
	links  map[domain.UserID]*Link
	closed bool
}

func NewManager(signaler Signaler, newConn ConnFactory, local *media.LocalStream) *Manager {
	return &Manager{
		signaler: signaler,
		newConn:  newConn,
		local:    local,
		links:    make(map[domain.UserID]*Link),
	}
}

// OnRemoteStream sets the callback invoked whenever a peer's remote stream
// gains a track. Must be set before the first link is created.
func (m *Manager) OnRemoteStream(fn func(domain.UserID, *RemoteStream)) {
	m.onStream = fn
}

// EnsureLink returns the existing link for remote, or creates one. The
// check-and-insert happens under a single lock before any asynchronous
// negotiation step, so racing join notifications never yield two links.
// If initiator is true and the link is new, a local offer is generated,
// committed and relayed to remote.
func (m *Manager) EnsureLink(ctx context.Context, remote domain.UserID, initiator bool) (*Link, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}
	if l, ok := m.links[remote]; ok {
		m.mu.Unlock()
		return l, nil
	}

	conn, err := m.newConn(remote)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	l := &Link{
		UserID: remote,
		Conn:   conn,
		Stream: &RemoteStream{UserID: remote},
	}
	m.links[remote] = l
	m.mu.Unlock()

	conn.OnTrack(func(track *webrtc.TrackRemote) {
		l.Stream.addTrack(track)
		if m.onStream != nil {
			m.onStream(remote, l.Stream)
		}
	})
	conn.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		if err := m.signaler.SendCandidate(remote, ci); err != nil {
			log.Error().Err(err).Str("module", "peer").Str("peer", string(remote)).Msg("relay candidate")
		}
	})
	conn.OnDisconnected(func() {
		log.Info().Str("module", "peer").Str("peer", string(remote)).Msg("link disconnected, tearing down")
		m.TeardownLink(remote)
	})

	if m.local != nil {
		for _, t := range m.local.Tracks() {
			if _, err := conn.AddLocalTrack(t.Local()); err != nil {
				log.Error().Err(err).Str("module", "peer").Str("peer", string(remote)).Msg("attach local track")
			}
		}
	}

	if err := conn.Start(ctx); err != nil {
		m.TeardownLink(remote)
		return nil, err
	}

	if initiator {
		offer, err := conn.CreateOffer()
		if err != nil {
			m.TeardownLink(remote)
			return nil, err
		}
		if err := m.signaler.SendOffer(remote, *offer); err != nil {
			m.TeardownLink(remote)
			return nil, err
		}
	}

	log.Info().Str("module", "peer").Str("peer", string(remote)).Bool("initiator", initiator).Msg("link created")
	return l, nil
}

// HandleRemoteOffer answers an inbound offer. The local side never initiates
// toward a peer it received an offer from (joiner is always answerer).
func (m *Manager) HandleRemoteOffer(ctx context.Context, remote domain.UserID, offer webrtc.SessionDescription) error {
	l, err := m.EnsureLink(ctx, remote, false)
	if err != nil {
		return err
	}
	answer, err := l.applyOffer(offer)
	if err != nil {
		return err
	}
	return m.signaler.SendAnswer(remote, *answer)
}

// HandleRemoteAnswer applies an inbound answer. A missing link is not an
// error: the initiator may already have torn the link down.
func (m *Manager) HandleRemoteAnswer(remote domain.UserID, answer webrtc.SessionDescription) error {
	l, ok := m.Lookup(remote)
	if !ok {
		log.Debug().Str("module", "peer").Str("peer", string(remote)).Msg("answer for unknown link, ignoring")
		return nil
	}
	return l.applyAnswer(answer)
}

// HandleRemoteCandidate applies an inbound ICE candidate, buffering it when
// the remote description has not been committed yet.
func (m *Manager) HandleRemoteCandidate(remote domain.UserID, cand webrtc.ICECandidateInit) error {
	l, ok := m.Lookup(remote)
	if !ok {
		log.Debug().Str("module", "peer").Str("peer", string(remote)).Msg("candidate for unknown link, dropping")
		return nil
	}
	return l.addCandidate(cand)
}

// HandlePresenceJoin opens initiator-side links toward newly present
// participants. Every already-present member calls this when a newcomer
// arrives; the newcomer only answers.
func (m *Manager) HandlePresenceJoin(ctx context.Context, joined []domain.UserID) {
	for _, id := range joined {
		if _, err := m.EnsureLink(ctx, id, true); err != nil {
			log.Error().Err(err).Str("module", "peer").Str("peer", string(id)).Msg("initiate link")
		}
	}
}

// HandlePresenceLeave tears down links for departed participants.
func (m *Manager) HandlePresenceLeave(left []domain.UserID) {
	for _, id := range left {
		m.TeardownLink(id)
	}
}

// Lookup returns the link for remote, if one exists.
func (m *Manager) Lookup(remote domain.UserID) (*Link, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[remote]
	return l, ok
}

// Stream returns the remote stream for remote, if a link exists.
func (m *Manager) Stream(remote domain.UserID) (*RemoteStream, bool) {
	l, ok := m.Lookup(remote)
	if !ok {
		return nil, false
	}
	return l.Stream, true
}

func (m *Manager) LinkCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.links)
}

// TeardownLink closes the connection handle and removes the link and its
// stream from the mapping as one atomic step. Idempotent; safe to call from
// the connection's own disconnect callback.
func (m *Manager) TeardownLink(remote domain.UserID) {
	m.mu.Lock()
	l, ok := m.links[remote]
	if ok {
		delete(m.links, remote)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	l.Conn.Close()
	log.Info().Str("module", "peer").Str("peer", string(remote)).Msg("link removed")
}

// TeardownAll closes every link and clears the mapping. The manager accepts
// no new links afterwards; invoked on room exit.
func (m *Manager) TeardownAll() {
	m.mu.Lock()
	links := m.links
	m.links = make(map[domain.UserID]*Link)
	m.closed = true
	m.mu.Unlock()
	for _, l := range links {
		l.Conn.Close()
	}
}
