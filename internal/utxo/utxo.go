// Package utxo implements the wallet-owned unspent-output state engine
// (spec §4.3): balance, selection, two-phase locked spend, change, and
// the offline-spend anchor rule.
package utxo

import "github.com/klingon-tech/cbrledger/pkg/money"

// Status is a UTXO's lifecycle state.
type Status string

const (
	StatusUnspent Status = "UNSPENT"
	StatusSpent   Status = "SPENT"
)

// Lock marks a UTXO as reserved by an in-flight spend.
type Lock struct {
	LockedBy string `json:"locked_by"` // spending tx id
	LockedAt int64  `json:"locked_at"` // unix seconds, UTC
}

// UTXO is a single unspent (or spent) transaction output owned by a
// wallet — the core's atomic unit of balance.
type UTXO struct {
	ID         string       `json:"id"`
	Owner      string       `json:"owner"` // wallet id
	Amount     money.Amount `json:"amount"`
	Status     Status       `json:"status"`
	CreatingTx string       `json:"creating_tx"`
	SpendingTx string       `json:"spending_tx,omitempty"`
	Seq        uint64       `json:"seq"` // creation order, ascending
	Lock       *Lock        `json:"lock,omitempty"`
}

// IsLocked reports whether u carries an active (non-stale) lock as of now.
func (u *UTXO) IsLocked(now int64, staleAfterSeconds int64) bool {
	if u.Lock == nil {
		return false
	}
	return now-u.Lock.LockedAt < staleAfterSeconds
}
