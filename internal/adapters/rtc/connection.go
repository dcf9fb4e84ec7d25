package rtc

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/jamroom/jamroom/internal/core"
	"github.com/jamroom/jamroom/internal/domain"
)

// WebRTCConnection wraps a pion PeerConnection behind core.MediaConnection.
// One instance backs one peer link; it is never reused after Close.
type WebRTCConnection struct {
	pc     *webrtc.PeerConnection
	remote domain.UserID
	cancel context.CancelFunc

	onICE          func(webrtc.ICECandidateInit)
	onTrack        func(*webrtc.TrackRemote)
	onDisconnected func()

	mu       sync.Mutex
	closed   bool
	notified bool
}

// DefaultWebRTCConfig is a small fixed set of public STUN servers.
// No TURN; peers behind symmetric NAT will fail to connect.
func DefaultWebRTCConfig(stunURLs []string) webrtc.Configuration {
	if len(stunURLs) == 0 {
		stunURLs = []string{"stun:stun.l.google.com:19302", "stun:stun1.l.google.com:19302"}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: stunURLs},
		},
	}
}

func NewWebRTCConnection(cfg webrtc.Configuration, remote domain.UserID) (*WebRTCConnection, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	return &WebRTCConnection{pc: pc, remote: remote}, nil
}

func (c *WebRTCConnection) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("peer", string(c.remote)).Str("state", s.String()).Msg("peer state")
		if s == webrtc.PeerConnectionStateDisconnected ||
			s == webrtc.PeerConnectionStateFailed ||
			s == webrtc.PeerConnectionStateClosed {
			cancel()
			c.fireDisconnected()
		}
	})

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		// nil marks end of gathering; every real candidate is relayed
		// as soon as it is discovered (trickle ICE).
		if cand != nil && c.onICE != nil {
			c.onICE(cand.ToJSON())
		}
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "rtc").
			Str("peer", string(c.remote)).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Msg("remote track")
		if c.onTrack != nil {
			c.onTrack(track)
		}
	})

	return nil
}

func (c *WebRTCConnection) CreateOffer() (*webrtc.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return nil, err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return nil, err
	}
	return &offer, nil
}

func (c *WebRTCConnection) ApplyOfferCreateAnswer(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if err := c.pc.SetRemoteDescription(offer); err != nil {
		return nil, err
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return nil, err
	}
	return &answer, nil
}

func (c *WebRTCConnection) ApplyAnswer(answer webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(answer)
}

func (c *WebRTCConnection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

func (c *WebRTCConnection) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	if err := c.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "rtc").Str("peer", string(c.remote)).Msg("close error")
	} else {
		log.Info().Str("module", "rtc").Str("peer", string(c.remote)).Msg("closed")
	}
}

func (c *WebRTCConnection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *WebRTCConnection) OnICECandidate(fn func(webrtc.ICECandidateInit)) { c.onICE = fn }

func (c *WebRTCConnection) OnTrack(fn func(*webrtc.TrackRemote)) { c.onTrack = fn }

func (c *WebRTCConnection) OnDisconnected(fn func()) { c.onDisconnected = fn }

func (c *WebRTCConnection) AddLocalTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	return c.pc.AddTrack(track)
}

// fireDisconnected delivers the terminal-state callback at most once.
func (c *WebRTCConnection) fireDisconnected() {
	c.mu.Lock()
	if c.notified {
		c.mu.Unlock()
		return
	}
	c.notified = true
	fn := c.onDisconnected
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

var _ core.MediaConnection = (*WebRTCConnection)(nil)
