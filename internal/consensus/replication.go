package consensus

import (
	"errors"
	"fmt"

	"github.com/klingon-tech/cbrledger/pkg/types"
)

// ErrNotLeader is returned by RunRound when called on a node that does
// not currently hold the LEADER role.
var ErrNotLeader = errors.New("consensus: node is not the leader")

// RunRound appends a log entry for blockHash and, when this node is the
// authority's LEADER, replicates it to votingPeers and commits on
// majority acknowledgement (spec §4.4's normal-operation submission
// protocol). When this node is instead a follower-operator holding the
// LEADER role during an authority outage, the entry is appended and
// accumulated locally without replication, to be drained once the
// authority recovers and requests it (spec §4.4 authority-recovery).
func (e *Engine) RunRound(blockHash types.Hash, votingPeers []Peer) ([]Event, error) {
	e.mu.Lock()
	if e.role != RoleLeader {
		e.mu.Unlock()
		return nil, ErrNotLeader
	}
	term := e.currentTerm
	index := e.lastLogIndexLocked() + 1
	entry := LogEntry{Term: term, Index: index, BlockHash: blockHash, Timestamp: e.clock.Now().Unix()}
	e.log = append(e.log, entry)
	isAuthority := e.isAuthority
	nodeID := e.nodeID
	e.mu.Unlock()

	subject := blockHash.String()
	var events []Event
	events = append(events, e.recordEvent(subject, nodeID, EventAppendEntries,
		fmt.Sprintf("appended index %d term %d", index, term)))

	if !isAuthority {
		return events, nil
	}

	for _, p := range votingPeers {
		events = append(events, e.recordEvent(subject, nodeID, EventVoteRequest,
			fmt.Sprintf("requesting acceptance from %s", p.NodeID())))
		if p.RequestVote(term, nodeID, index) {
			events = append(events, e.recordEvent(subject, p.NodeID(), EventVoteGranted, ""))
		} else {
			events = append(events, e.recordEvent(subject, p.NodeID(), EventVoteDenied, ""))
		}
	}

	majority := len(votingPeers)/2 + 1
	successes := 0
	for _, p := range votingPeers {
		if p.AppendEntries(term, nodeID, entry) {
			successes++
		}
	}

	if successes >= majority {
		e.mu.Lock()
		if index > e.commitIndex {
			e.commitIndex = index
		}
		e.applyCommittedLocked()
		e.mu.Unlock()
		events = append(events, e.recordEvent(subject, nodeID, EventReplication,
			fmt.Sprintf("%d/%d peers replicated", successes, len(votingPeers))))
	} else {
		events = append(events, e.recordEvent(subject, nodeID, EventReplicationIncomplete,
			fmt.Sprintf("%d/%d peers replicated, majority not reached", successes, len(votingPeers))))
	}
	return events, nil
}

// AppendEntries is the follower-side handler a leader calls to replicate
// a log entry (spec §4.4). A stale term is rejected outright; a newer
// term updates current_term and clears voted_for; a CANDIDATE or
// FO-holding-LEADER role downgrades to FOLLOWER, which is how authority
// recovery transfers leadership back.
func (e *Engine) AppendEntries(term uint64, leaderID string, entry LogEntry) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if term < e.currentTerm {
		return false
	}
	if term > e.currentTerm {
		e.currentTerm = term
		e.votedFor = make(map[uint64]string)
	}
	e.leaderID = leaderID
	e.lastHeartbeatAt = e.clock.Now().Unix()
	if e.role == RoleCandidate || e.role == RoleLeader {
		e.role = RoleFollower
	}

	e.log = append(e.log, entry)
	if entry.Index > e.commitIndex {
		e.commitIndex = entry.Index
	}
	e.applyCommittedLocked()
	return true
}

// applyCommittedLocked advances last_applied up to commit_index, emitting
// a COMMITTED event per newly applied entry. Callers must hold e.mu.
func (e *Engine) applyCommittedLocked() {
	for e.lastApplied < e.commitIndex {
		e.lastApplied++
		idx := e.lastApplied
		var entry LogEntry
		for _, le := range e.log {
			if le.Index == idx {
				entry = le
				break
			}
		}
		e.recordEvent(entry.BlockHash.String(), e.nodeID, EventCommitted,
			fmt.Sprintf("applied index %d term %d", entry.Index, entry.Term))
	}
}

// UnreplicatedEntries returns the log entries with index greater than
// replicatedThrough, in order. An FO-leader accumulates entries locally
// without replicating them while the authority is down; on recovery the
// authority drains them with this call, across one or more rounds if
// necessary (spec §4.4 authority-recovery).
func (e *Engine) UnreplicatedEntries(replicatedThrough uint64) []LogEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []LogEntry
	for _, le := range e.log {
		if le.Index > replicatedThrough {
			out = append(out, le)
		}
	}
	return out
}
