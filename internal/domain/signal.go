package domain

import "github.com/pion/webrtc/v4"

// Negotiation message types relayed on the room channel.
const (
	SignalOffer     = "offer"
	SignalAnswer    = "answer"
	SignalCandidate = "ice-candidate"
)

// SignalMessage is a negotiation payload relayed between two participants.
// Every member of a room receives every broadcast; receivers discard
// messages whose TargetUserID is not their own.
type SignalMessage struct {
	Type         string                     `json:"type"`
	FromUserID   UserID                     `json:"from_user_id"`
	TargetUserID UserID                     `json:"target_user_id"`
	SDP          *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate    *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
}
