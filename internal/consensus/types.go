// Package consensus implements the Raft-like CBR/FO replication protocol
// of spec §4.4: a single authority node (CBR) is the permanent leader
// under normal conditions; follower-operator (FO) nodes take over
// temporarily on authority failure and hand leadership back on recovery.
package consensus

import (
	"time"

	"github.com/klingon-tech/cbrledger/pkg/types"
)

// Role is a node's current position in the consensus state machine.
type Role string

const (
	RoleFollower  Role = "FOLLOWER"
	RoleCandidate Role = "CANDIDATE"
	RoleLeader    Role = "LEADER"
)

// EventKind tags a consensus audit event (spec §3's "Consensus event").
type EventKind string

const (
	EventVoteRequest          EventKind = "VOTE_REQUEST"
	EventVoteGranted          EventKind = "VOTE_GRANTED"
	EventVoteDenied           EventKind = "VOTE_DENIED"
	EventElectionStart        EventKind = "ELECTION_START"
	EventLeaderElected        EventKind = "LEADER_ELECTED"
	EventElectionFailed       EventKind = "ELECTION_FAILED"
	EventAppendEntries        EventKind = "APPEND_ENTRIES"
	EventCommitted            EventKind = "COMMITTED"
	EventReplication          EventKind = "REPLICATION"
	EventReplicationIncomplete EventKind = "REPLICATION_INCOMPLETE"
)

// Event is an append-only audit record, used solely for observability.
type Event struct {
	Subject   string    // block_hash_or_term_tag
	Actor     string    // node id
	State     EventKind
	Detail    string
	CreatedAt int64
}

// LogEntry is a consensus log entry, primary-keyed by (Term, Index).
type LogEntry struct {
	Term      uint64
	Index     uint64
	BlockHash types.Hash
	Timestamp int64
}

// Peer is the collaborator surface one node's consensus Engine uses to
// reach another node's: its own *Engine satisfies this interface, so in
// the single-process simulation peers are just each other's Engine
// values. A transport-backed implementation (spec §6's Peer) would wrap
// the same three calls in network RPCs.
type Peer interface {
	NodeID() string
	LastLogIndex() uint64
	RequestVote(term uint64, candidateID string, candidateLastIndex uint64) bool
	AppendEntries(term uint64, leaderID string, entry LogEntry) bool
}

// Default timing constants from spec §5: election timeout randomised in
// [1.5s, 3.0s], heartbeat interval 0.5s.
const (
	DefaultElectionTimeoutMin = 1500 * time.Millisecond
	DefaultElectionTimeoutMax = 3000 * time.Millisecond
	DefaultHeartbeatInterval  = 500 * time.Millisecond
)
