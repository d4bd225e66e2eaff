// Package session holds the two-party host election for one connection.
//
// The election is first-writer-wins with no tie-break: if both peers claim
// host before either SetHost arrives, both end up as host and nothing in the
// protocol corrects it.
package session

import "errors"

var ErrAlreadyEstablished = errors.New("session: already established")

type Role uint8

const (
	RoleUndecided Role = iota
	RoleHost
	RoleClient
)

func (r Role) String() string {
	switch r {
	case RoleHost:
		return "host"
	case RoleClient:
		return "client"
	default:
		return "undecided"
	}
}

// State is the negotiated role for one session. The zero value is a fresh
// Undecided session.
type State struct {
	Role        Role
	Established bool
}

func New() *State {
	return &State{Role: RoleUndecided}
}

// ClaimHost is the local "become host" transition. The caller sends SetHost
// only when this returns nil.
func (s *State) ClaimHost() error {
	if s.Established {
		return ErrAlreadyEstablished
	}
	s.Role = RoleHost
	s.Established = true
	return nil
}

// AcceptHost applies a SetHost received from the peer.
func (s *State) AcceptHost() error {
	if s.Established {
		return ErrAlreadyEstablished
	}
	s.Role = RoleClient
	s.Established = true
	return nil
}

func (s *State) IsHost() bool {
	return s.Established && s.Role == RoleHost
}
