// Package media owns the local capture-side stream: the tracks a session
// attaches to every peer link, with per-track enable toggles that mute
// output without stopping capture.
package media

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// PacketSource yields RTP packets from a capture device or encoder.
type PacketSource interface {
	ReadRTP() (*rtp.Packet, error)
}

// Track pairs a local RTP track with its enabled flag.
type Track struct {
	local   *webrtc.TrackLocalStaticRTP
	kind    webrtc.RTPCodecType
	enabled atomic.Bool
}

func (t *Track) Local() webrtc.TrackLocal  { return t.local }
func (t *Track) Kind() webrtc.RTPCodecType { return t.kind }
func (t *Track) Enabled() bool             { return t.enabled.Load() }
func (t *Track) SetEnabled(on bool)        { t.enabled.Store(on) }

// LocalStream is the session's outbound media. Tracks are created once and
// shared by every peer link; toggles flip flags, they never stop capture.
type LocalStream struct {
	id     string
	tracks []*Track
}

// Acquire builds the local stream with the requested track kinds.
// Tracks start enabled.
func Acquire(audio, video bool) (*LocalStream, error) {
	s := &LocalStream{id: uuid.NewString()}
	if audio {
		t, err := webrtc.NewTrackLocalStaticRTP(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
			"audio", s.id,
		)
		if err != nil {
			return nil, err
		}
		at := &Track{local: t, kind: webrtc.RTPCodecTypeAudio}
		at.SetEnabled(true)
		s.tracks = append(s.tracks, at)
	}
	if video {
		t, err := webrtc.NewTrackLocalStaticRTP(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
			"video", s.id,
		)
		if err != nil {
			return nil, err
		}
		vt := &Track{local: t, kind: webrtc.RTPCodecTypeVideo}
		vt.SetEnabled(true)
		s.tracks = append(s.tracks, vt)
	}
	return s, nil
}

func (s *LocalStream) ID() string       { return s.id }
func (s *LocalStream) Tracks() []*Track { return s.tracks }

func (s *LocalStream) trackOfKind(kind webrtc.RTPCodecType) *Track {
	for _, t := range s.tracks {
		if t.kind == kind {
			return t
		}
	}
	return nil
}

func (s *LocalStream) AudioTrack() *Track { return s.trackOfKind(webrtc.RTPCodecTypeAudio) }
func (s *LocalStream) VideoTrack() *Track { return s.trackOfKind(webrtc.RTPCodecTypeVideo) }

func (s *LocalStream) SetAudioEnabled(on bool) {
	if t := s.AudioTrack(); t != nil {
		t.SetEnabled(on)
	}
}

func (s *LocalStream) SetVideoEnabled(on bool) {
	if t := s.VideoTrack(); t != nil {
		t.SetEnabled(on)
	}
}

// Pump reads RTP packets from src and forwards them onto the track while it
// is enabled. Disabled tracks keep consuming packets so capture never stalls.
func (s *LocalStream) Pump(ctx context.Context, t *Track, src PacketSource) {
	logger := log.With().
		Str("module", "media").
		Str("stream", s.id).
		Str("kind", t.kind.String()).
		Logger()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("pump ctx done")
			return
		default:
		}
		pkt, err := src.ReadRTP()
		if err != nil {
			logger.Error().Err(err).Msg("pump read RTP error, stopping")
			return
		}
		if !t.Enabled() {
			continue
		}
		if err := t.local.WriteRTP(pkt); err != nil {
			logger.Error().Err(err).Msg("pump write RTP error, stopping")
			return
		}
	}
}
