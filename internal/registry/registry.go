// Package registry implements the node registry of spec §3/§6: a
// directory of cluster nodes keyed by node id, their role, liveness
// status, address, and last-known chain position — grounded on the
// teacher's internal/p2p/peerstore.go persisted-peer-record pattern.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/klingon-tech/cbrledger/internal/storage"
	"github.com/klingon-tech/cbrledger/pkg/types"
)

const nodeKeyPrefix = "n/"

// Role tags a node's fixed position in the cluster: CBR is the single
// permanent authority, FO is a follower-operator.
type Role string

const (
	RoleCBR Role = "CBR"
	RoleFO  Role = "FO"
)

// Status is a node's last-observed liveness.
type Status string

const (
	StatusActive       Status = "ACTIVE"
	StatusInactive     Status = "INACTIVE"
	StatusSyncing      Status = "SYNCING"
	StatusDisconnected Status = "DISCONNECTED"
)

// Record is spec §3's Node record. At most one Record exists per NodeID.
type Record struct {
	NodeID            string     `json:"node_id"`
	Role              Role       `json:"role"`
	Status            Status     `json:"status"`
	Address           string     `json:"address"`
	LastSeen          int64      `json:"last_seen"`
	LastKnownHeight    uint64     `json:"last_known_height"`
	LastKnownBlockHash types.Hash `json:"last_known_block_hash"`
}

// ErrNotFound is returned when a node id has no registry record.
var ErrNotFound = errors.New("registry: node not found")

func nodeKey(id string) []byte {
	return []byte(nodeKeyPrefix + id)
}

// Registry is the cluster's node directory, persisted in a storage.DB
// under the "n/" prefix in the same style as the teacher's PeerStore.
type Registry struct {
	db storage.DB
}

// New creates a Registry backed by db.
func New(db storage.DB) *Registry {
	return &Registry{db: db}
}

// RegisterNode upserts a node's record. Re-registering an existing
// node_id overwrites its record in place, preserving the "at most one
// record per node_id" invariant.
func (r *Registry) RegisterNode(rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("registry marshal %s: %w", rec.NodeID, err)
	}
	if err := r.db.Put(nodeKey(rec.NodeID), data); err != nil {
		return fmt.Errorf("registry put %s: %w", rec.NodeID, err)
	}
	return nil
}

// UpdateStatus updates a registered node's status, last-seen timestamp,
// and last-known chain position.
func (r *Registry) UpdateStatus(nodeID string, status Status, lastSeen int64, height uint64, hash types.Hash) error {
	rec, err := r.GetNode(nodeID)
	if err != nil {
		return err
	}
	rec.Status = status
	rec.LastSeen = lastSeen
	rec.LastKnownHeight = height
	rec.LastKnownBlockHash = hash
	return r.RegisterNode(*rec)
}

// GetNode retrieves a single node's record.
func (r *Registry) GetNode(nodeID string) (*Record, error) {
	data, err := r.db.Get(nodeKey(nodeID))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("registry get %s: %w", nodeID, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("registry unmarshal %s: %w", nodeID, err)
	}
	return &rec, nil
}

// GetAllNodes returns every registered node record.
func (r *Registry) GetAllNodes() ([]Record, error) {
	var out []Record
	err := r.db.ForEach([]byte(nodeKeyPrefix), func(key, value []byte) error {
		var rec Record
		if err := json.Unmarshal(value, &rec); err != nil {
			return nil
		}
		out = append(out, rec)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("registry iterate: %w", err)
	}
	return out, nil
}

// GetActiveNodes returns every node currently marked ACTIVE.
func (r *Registry) GetActiveNodes() ([]Record, error) {
	all, err := r.GetAllNodes()
	if err != nil {
		return nil, err
	}
	var out []Record
	for _, rec := range all {
		if rec.Status == StatusActive {
			out = append(out, rec)
		}
	}
	return out, nil
}

// GetConnected returns every ACTIVE node other than nodeID — the peer
// set a node broadcasts blocks to and solicits consensus votes from.
func (r *Registry) GetConnected(nodeID string) ([]Record, error) {
	active, err := r.GetActiveNodes()
	if err != nil {
		return nil, err
	}
	var out []Record
	for _, rec := range active {
		if rec.NodeID != nodeID {
			out = append(out, rec)
		}
	}
	return out, nil
}
