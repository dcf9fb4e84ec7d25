package core

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// MediaConnection is the connection handle behind one peer link. It owns the
// ICE/SDP state machine; callbacks must be installed before Start.
type MediaConnection interface {
	// Start installs internal callbacks and binds the connection lifetime to ctx.
	Start(ctx context.Context) error
	// Close stops all underlying media resources.
	Close()
	IsClosed() bool

	// CreateOffer generates a local session offer and commits it as the
	// local description.
	CreateOffer() (*webrtc.SessionDescription, error)
	// ApplyOfferCreateAnswer applies a remote offer, generates an answer and
	// commits it as the local description.
	ApplyOfferCreateAnswer(webrtc.SessionDescription) (*webrtc.SessionDescription, error)
	// ApplyAnswer applies a remote answer as the remote description.
	ApplyAnswer(webrtc.SessionDescription) error
	// AddICECandidate applies a remote ICE candidate. Callers must only do so
	// after a remote description has been committed.
	AddICECandidate(webrtc.ICECandidateInit) error

	// OnICECandidate sets a callback for newly gathered local ICE candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	// OnTrack sets a callback invoked when a new remote track arrives.
	OnTrack(func(track *webrtc.TrackRemote))
	// OnDisconnected sets a callback fired once when the connection reaches a
	// terminal failed/disconnected/closed state.
	OnDisconnected(func())

	// AddLocalTrack attaches a local track to the underlying PeerConnection.
	AddLocalTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error)
}
