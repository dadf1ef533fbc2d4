package consensus

import (
	"sync"

	"github.com/klingon-tech/cbrledger/pkg/clock"
)

// Engine holds one node's consensus state: the persistent term/vote/log
// state of spec §4.4 plus the volatile role/heartbeat state, guarded by a
// single mutex in the style of the teacher's PoA engine. A second, looser
// mutex protects the audit event log so recordEvent can be called from
// inside a method that already holds mu.
type Engine struct {
	mu sync.Mutex

	nodeID      string
	isAuthority bool

	currentTerm uint64
	votedFor    map[uint64]string // term -> candidate node id
	log         []LogEntry
	commitIndex uint64
	lastApplied uint64

	role              Role
	leaderID          string
	lastHeartbeatAt   int64 // unix seconds
	electionTimeout   int64 // seconds
	heartbeatInterval int64 // seconds

	clock clock.Clock

	eventsMu sync.Mutex
	events   []Event
}

// NewEngine creates a consensus engine for one node. The authority node
// (is_authority) starts as the permanent LEADER; every other node starts
// as FOLLOWER awaiting heartbeats from it.
func NewEngine(nodeID string, isAuthority bool, clk clock.Clock, electionTimeoutSeconds, heartbeatIntervalSeconds int64) *Engine {
	e := &Engine{
		nodeID:            nodeID,
		isAuthority:       isAuthority,
		votedFor:          make(map[uint64]string),
		clock:             clk,
		electionTimeout:   electionTimeoutSeconds,
		heartbeatInterval: heartbeatIntervalSeconds,
	}
	if isAuthority {
		e.role = RoleLeader
		e.leaderID = nodeID
	} else {
		e.role = RoleFollower
	}
	e.lastHeartbeatAt = clk.Now().Unix()
	return e
}

func (e *Engine) NodeID() string { return e.nodeID }

func (e *Engine) IsAuthority() bool { return e.isAuthority }

func (e *Engine) Role() Role {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.role
}

func (e *Engine) LeaderID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.leaderID
}

func (e *Engine) CurrentTerm() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentTerm
}

func (e *Engine) CommitIndex() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.commitIndex
}

func (e *Engine) LastLogIndex() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastLogIndexLocked()
}

func (e *Engine) lastLogIndexLocked() uint64 {
	if len(e.log) == 0 {
		return 0
	}
	return e.log[len(e.log)-1].Index
}

// AdoptHigherTerm raises current_term to term if term is greater than the
// engine's own term, returning the resulting term. The recovering
// authority calls this before resuming AppendEntries calls against a
// cluster that may contain an FO which ran its own election while the
// authority was down — a stale-term AppendEntries would otherwise be
// rejected by AppendEntries's own `term < current_term` guard, so the
// authority must first out-term whatever the FO reached.
func (e *Engine) AdoptHigherTerm(term uint64) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if term > e.currentTerm {
		e.currentTerm = term
	}
	return e.currentTerm
}

// Log returns a copy of the consensus log, following the teacher's
// copy-under-lock idiom for exposing internal slices safely.
func (e *Engine) Log() []LogEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]LogEntry, len(e.log))
	copy(out, e.log)
	return out
}

// DrainEvents returns every audit event recorded since the last drain and
// clears the buffer.
func (e *Engine) DrainEvents() []Event {
	e.eventsMu.Lock()
	defer e.eventsMu.Unlock()
	out := e.events
	e.events = nil
	return out
}

func (e *Engine) recordEvent(subject, actor string, kind EventKind, detail string) Event {
	ev := Event{
		Subject:   subject,
		Actor:     actor,
		State:     kind,
		Detail:    detail,
		CreatedAt: e.clock.Now().Unix(),
	}
	e.eventsMu.Lock()
	e.events = append(e.events, ev)
	e.eventsMu.Unlock()
	return ev
}
