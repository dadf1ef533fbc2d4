package node

import (
	"fmt"

	"github.com/klingon-tech/cbrledger/internal/consensus"
	"github.com/klingon-tech/cbrledger/pkg/types"
)

// consensusPeer adapts a sibling Node to consensus.Peer. A node marked
// "down" by SimulateFailure refuses every call, the way an unreachable
// process would simply never answer — a candidate records its missing
// vote as a denial, and a leader counts no replication to it.
type consensusPeer struct {
	target *Node
}

func (p consensusPeer) NodeID() string { return p.target.id }

func (p consensusPeer) LastLogIndex() uint64 {
	if p.target.isDown() {
		return 0
	}
	return p.target.consensus.LastLogIndex()
}

func (p consensusPeer) RequestVote(term uint64, candidateID string, candidateLastIndex uint64) bool {
	if p.target.isDown() {
		return false
	}
	return p.target.consensus.RequestVote(term, candidateID, candidateLastIndex)
}

func (p consensusPeer) AppendEntries(term uint64, leaderID string, entry consensus.LogEntry) bool {
	if p.target.isDown() {
		return false
	}
	return p.target.consensus.AppendEntries(term, leaderID, entry)
}

// RunConsensusRound runs one consensus round for blockHash against every
// connected peer (spec §6's consensus.run_round).
func (n *Node) RunConsensusRound(blockHash types.Hash) ([]consensus.Event, error) {
	return n.consensus.RunRound(blockHash, n.consensusPeers())
}

// CheckElectionTimeout lets a follower check whether the authority has
// gone silent for longer than its election timeout and, if this node is
// the designated initiator, start an election (spec §4.4).
func (n *Node) CheckElectionTimeout() []consensus.Event {
	return n.consensus.CheckElectionTimeout(n.consensusPeers())
}

// SimulateFailure marks this node unreachable to every peer, modeling an
// authority or follower-operator crash (spec §6's consensus.simulate_failure).
func (n *Node) SimulateFailure() {
	n.mu.Lock()
	n.down = true
	n.mu.Unlock()
}

// SimulateRecovery brings this node back online (spec §6's
// consensus.simulate_recovery). A recovering authority must first adopt
// the highest term any peer reached while it was away — an FO may have
// been elected LEADER in a term the authority never saw — since an
// ordinary AppendEntries at a stale term would otherwise be rejected by
// the peer's own guard. It then drains whatever the FO-leader
// accumulated locally without replication and re-runs those rounds
// through the normal replicated path, which is what hands leadership
// back (spec §4.4's authority-recovery protocol).
func (n *Node) SimulateRecovery() ([]consensus.Event, error) {
	n.mu.Lock()
	n.down = false
	n.mu.Unlock()

	if !n.isAuthority {
		return nil, nil
	}

	peers := n.peerList()
	var maxTerm uint64
	var foLeader *Node
	for _, p := range peers {
		if t := p.consensus.CurrentTerm(); t > maxTerm {
			maxTerm = t
		}
		if p.consensus.Role() == consensus.RoleLeader {
			foLeader = p
		}
	}
	n.consensus.AdoptHigherTerm(maxTerm)

	if foLeader == nil {
		return nil, nil
	}

	var events []consensus.Event
	for _, entry := range foLeader.consensus.UnreplicatedEntries(n.consensus.LastLogIndex()) {
		ev, err := n.consensus.RunRound(entry.BlockHash, n.consensusPeers())
		if err != nil {
			return events, fmt.Errorf("simulate_recovery: %w", err)
		}
		events = append(events, ev...)
	}
	return events, nil
}
