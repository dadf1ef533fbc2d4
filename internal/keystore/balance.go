package keystore

import "github.com/klingon-tech/cbrledger/pkg/money"

// Balance is a locally cached view of an address's balance, as last
// reported by a node's balance(owner) query (spec §4.3). The keystore
// never computes this itself — UTXO ownership lives on the node side —
// it only caches what the client last fetched, for display between
// queries.
type Balance struct {
	Confirmed money.Amount
	Address   string
}
