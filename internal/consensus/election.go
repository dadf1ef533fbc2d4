package consensus

import "fmt"

// RequestVote is the follower-side handler a candidate calls on each
// voting peer during authority-failure election. Authority nodes are
// never solicited and always refuse.
func (e *Engine) RequestVote(term uint64, candidateID string, candidateLastIndex uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.isAuthority {
		return false
	}
	if term < e.currentTerm {
		return false
	}
	if term > e.currentTerm {
		e.currentTerm = term
		if e.role == RoleLeader || e.role == RoleCandidate {
			e.role = RoleFollower
		}
	}
	if voted, ok := e.votedFor[term]; ok && voted != candidateID {
		return false
	}
	e.votedFor[term] = candidateID
	return true
}

// CheckElectionTimeout implements the authority-failure election protocol.
// candidates is the set of active, non-authority nodes excluding this one.
// It is a no-op unless this node is a non-authority FOLLOWER whose
// heartbeat has aged past its election timeout, and it only starts an
// election when this node's own last log index is the maximum among the
// candidate set (ties broken by the lexicographically smallest node id) —
// the rule spec §4.4 uses to make a single initiator emerge by
// construction, eliminating split votes.
func (e *Engine) CheckElectionTimeout(candidates []Peer) []Event {
	e.mu.Lock()
	if e.isAuthority || e.role != RoleFollower {
		e.mu.Unlock()
		return nil
	}
	elapsed := e.clock.Now().Unix() - e.lastHeartbeatAt
	if elapsed <= e.electionTimeout {
		e.mu.Unlock()
		return nil
	}
	nodeID := e.nodeID
	myLastIndex := e.lastLogIndexLocked()
	e.mu.Unlock()

	best, bestIndex := nodeID, myLastIndex
	for _, c := range candidates {
		ci := c.LastLogIndex()
		if ci > bestIndex || (ci == bestIndex && c.NodeID() < best) {
			best, bestIndex = c.NodeID(), ci
		}
	}
	if best != nodeID {
		return nil
	}

	return e.startElection(candidates)
}

func (e *Engine) startElection(peers []Peer) []Event {
	e.mu.Lock()
	e.currentTerm++
	term := e.currentTerm
	e.role = RoleCandidate
	e.votedFor[term] = e.nodeID
	nodeID := e.nodeID
	myLastIndex := e.lastLogIndexLocked()
	e.mu.Unlock()

	termTag := fmt.Sprintf("term-%d", term)
	var events []Event
	events = append(events, e.recordEvent(termTag, nodeID, EventElectionStart,
		fmt.Sprintf("node %s starting election for term %d", nodeID, term)))

	granted := 1 // vote for self
	for _, p := range peers {
		if p.NodeID() == nodeID {
			continue
		}
		events = append(events, e.recordEvent(termTag, nodeID, EventVoteRequest,
			fmt.Sprintf("requesting vote from %s", p.NodeID())))
		if p.RequestVote(term, nodeID, myLastIndex) {
			granted++
			events = append(events, e.recordEvent(termTag, p.NodeID(), EventVoteGranted, ""))
		} else {
			events = append(events, e.recordEvent(termTag, p.NodeID(), EventVoteDenied, ""))
		}
	}

	votingCount := len(peers) + 1
	majority := votingCount/2 + 1

	e.mu.Lock()
	if granted >= majority {
		e.role = RoleLeader
		e.leaderID = nodeID
	} else {
		e.role = RoleFollower
	}
	e.mu.Unlock()

	if granted >= majority {
		events = append(events, e.recordEvent(termTag, nodeID, EventLeaderElected,
			fmt.Sprintf("elected leader for term %d with %d/%d votes", term, granted, votingCount)))
	} else {
		events = append(events, e.recordEvent(termTag, nodeID, EventElectionFailed,
			fmt.Sprintf("failed to reach majority: %d/%d votes", granted, votingCount)))
	}
	return events
}
