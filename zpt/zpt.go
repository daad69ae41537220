// Package zpt implements the ZPT Navigator (C11): per-session
// zoom/pan/tilt state, mutated independently and read back atomically by
// inspect().
package zpt

import (
	"sync"
)

// Zoom is the granularity at which a session views the memory graph.
type Zoom string

const (
	ZoomEntity    Zoom = "entity"
	ZoomUnit      Zoom = "unit"
	ZoomText      Zoom = "text"
	ZoomCommunity Zoom = "community"
	ZoomCorpus    Zoom = "corpus"
)

// Tilt selects the retrieval lens (§4.10's fusion weighting).
type Tilt string

const (
	TiltKeywords  Tilt = "keywords"
	TiltEmbedding Tilt = "embedding"
	TiltGraph     Tilt = "graph"
)

// State is one session's navigation position. Pan holds arbitrary
// constraint key/value pairs (e.g. {"entity": "<uri>"}); nil/empty means no
// constraint.
type State struct {
	Zoom Zoom
	Pan  map[string]string
	Tilt Tilt
}

// DefaultState is what a brand new session starts with (§4.11).
func DefaultState() State {
	return State{Zoom: ZoomEntity, Pan: map[string]string{}, Tilt: TiltKeywords}
}

type session struct {
	mu    sync.Mutex
	state State
}

// Navigator holds one State per session, each independently lockable so
// concurrent requests for different sessions never contend, while mutations
// within a session serialize in arrival order (§4.11).
type Navigator struct {
	mu       sync.Mutex
	sessions map[string]*session
}

func New() *Navigator {
	return &Navigator{sessions: make(map[string]*session)}
}

func (n *Navigator) sessionFor(id string) *session {
	n.mu.Lock()
	defer n.mu.Unlock()
	s, ok := n.sessions[id]
	if !ok {
		s = &session{state: DefaultState()}
		n.sessions[id] = s
	}
	return s
}

// Zoom sets the zoom level for sessionID.
func (n *Navigator) Zoom(sessionID string, z Zoom) State {
	s := n.sessionFor(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Zoom = z
	return s.state
}

// Pan replaces the pan constraint map for sessionID.
func (n *Navigator) Pan(sessionID string, pan map[string]string) State {
	s := n.sessionFor(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if pan == nil {
		pan = map[string]string{}
	}
	s.state.Pan = pan
	return s.state
}

// Tilt sets the retrieval tilt for sessionID.
func (n *Navigator) Tilt(sessionID string, t Tilt) State {
	s := n.sessionFor(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Tilt = t
	return s.state
}

// Inspect reads back the full current state for sessionID, creating a
// default-state session if none exists yet.
func (n *Navigator) Inspect(sessionID string) State {
	s := n.sessionFor(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Reset drops a session's state back to the default, used when a session
// ends or a client explicitly requests a clean slate.
func (n *Navigator) Reset(sessionID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.sessions, sessionID)
}
