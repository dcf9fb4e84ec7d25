package core

import "github.com/jamroom/jamroom/internal/domain"

type SessionID string

// MemberSession binds domain.Participant and its transport endpoint.
// This is what a room stores and fans out to.
type MemberSession interface {
	Meta() *domain.Participant
	Signal() SignalConnection
	UpdateSignal(SignalConnection) MemberSession
}

// memberSession implements MemberSession by pairing meta + transport.
type memberSession struct {
	meta *domain.Participant
	sig  SignalConnection
}

func NewMemberSession(meta *domain.Participant) MemberSession {
	return &memberSession{meta: meta}
}

func (m *memberSession) Meta() *domain.Participant { return m.meta }
func (m *memberSession) Signal() SignalConnection  { return m.sig }

func (m *memberSession) UpdateSignal(sig SignalConnection) MemberSession {
	m.sig = sig
	return m
}
