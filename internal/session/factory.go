package session

import (
	"github.com/jamroom/jamroom/internal/adapters/rtc"
	"github.com/jamroom/jamroom/internal/core"
	"github.com/jamroom/jamroom/internal/domain"
	"github.com/jamroom/jamroom/internal/peer"
)

// DefaultConnFactory builds real peer connections against the given STUN
// set. Tests inject their own factory instead.
func DefaultConnFactory(stunURLs []string) peer.ConnFactory {
	cfg := rtc.DefaultWebRTCConfig(stunURLs)
	return func(remote domain.UserID) (core.MediaConnection, error) {
		return rtc.NewWebRTCConnection(cfg, remote)
	}
}
