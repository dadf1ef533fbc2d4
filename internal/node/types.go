package node

import (
	"errors"

	"github.com/klingon-tech/cbrledger/pkg/money"
	"github.com/klingon-tech/cbrledger/pkg/txn"
)

// Config configures a single cluster node. Exactly one node in a cluster
// carries IsAuthority=true (the permanent CBR); every other node is an
// FO that only drives consensus during an authority outage (spec §4.4).
type Config struct {
	NodeID                   string
	IsAuthority              bool
	Address                  string
	ElectionTimeoutSeconds   int64
	HeartbeatIntervalSeconds int64
}

// TxRequest is the caller-supplied content of submit_transaction and
// create_offline_transaction (spec §6).
type TxRequest struct {
	Sender   string // bech32 wallet address
	Receiver string // bech32 wallet address
	Amount   money.Amount
	Kind     txn.Kind
	Channel  string
	BankID   string
	Notes    string
}

// Submission-path errors surfaced unchanged to the caller (spec §6/§7).
// INSUFFICIENT_FUNDS and UTXO_LOCKED are the internal/utxo sentinel
// errors, propagated through unwrapped via errors.Is.
var (
	ErrSelfTransfer         = errors.New("sender and receiver must differ")
	ErrInvalidAmount        = errors.New("amount must be positive")
	ErrConsensusUnavailable = errors.New("consensus unavailable: this node is not the current leader")
	ErrInsufficientOffline  = errors.New("wallet has no offline balance to anchor")
	ErrUnknownPeer          = errors.New("node: unknown peer")

	// ErrDoubleSpendSuspected is reserved for a stricter offline acceptance
	// policy than the one this node implements: here, a replayed or
	// conflicting offline spend is detected at sync_offline time against
	// the anchor UTXO's live status (spec §4.3's real-ledger-check
	// variant) and reported through SyncOffline's conflict count rather
	// than rejected up front by CreateOfflineTransaction.
	ErrDoubleSpendSuspected = errors.New("offline double-spend suspected")
)
