package keystore

import (
	"errors"
	"fmt"
	"sort"

	"github.com/klingon-tech/cbrledger/pkg/money"
)

// Coin selection errors.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNoUTXOs           = errors.New("no utxos available")
)

// UTXO is a client-side view of one of the wallet's unspent outputs, as
// last reported by a node — just enough to pick spend candidates from,
// not the full internal/utxo.UTXO record a node keeps.
type UTXO struct {
	ID    string
	Value money.Amount
}

// CoinSelection holds the result of coin selection.
type CoinSelection struct {
	Inputs []UTXO
	Total  money.Amount
	Change money.Amount
}

// SelectCoins chooses UTXOs to fund a transaction of the given target
// amount. It tries two strategies:
//  1. Single UTXO: the smallest single UTXO that covers the target
//     (minimizes inputs).
//  2. Largest-first accumulation: greedily adds the largest UTXOs until
//     the target is met.
//
// Returns the strategy that produces the least change (waste).
func SelectCoins(utxos []UTXO, target money.Amount) (*CoinSelection, error) {
	if len(utxos) == 0 {
		return nil, ErrNoUTXOs
	}
	if !target.IsPositive() {
		return nil, fmt.Errorf("target must be positive")
	}

	candidates := make([]UTXO, 0, len(utxos))
	for _, u := range utxos {
		if u.Value.IsPositive() {
			candidates = append(candidates, u)
		}
	}
	if len(candidates) == 0 {
		return nil, ErrNoUTXOs
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Value.Cmp(candidates[j].Value) < 0
	})

	var single *CoinSelection
	for _, u := range candidates {
		if u.Value.Cmp(target) >= 0 {
			single = &CoinSelection{
				Inputs: []UTXO{u},
				Total:  u.Value,
				Change: u.Value.Sub(target),
			}
			break // already sorted ascending, first match is smallest
		}
	}

	var accum *CoinSelection
	var selected []UTXO
	total := money.Zero
	for i := len(candidates) - 1; i >= 0; i-- {
		selected = append(selected, candidates[i])
		total = total.Add(candidates[i].Value)
		if total.Cmp(target) >= 0 {
			accum = &CoinSelection{
				Inputs: selected,
				Total:  total,
				Change: total.Sub(target),
			}
			break
		}
	}

	switch {
	case single != nil && accum != nil:
		if single.Change.Cmp(accum.Change) <= 0 {
			return single, nil
		}
		return accum, nil
	case single != nil:
		return single, nil
	case accum != nil:
		return accum, nil
	default:
		return nil, fmt.Errorf("%w: have %s, need %s", ErrInsufficientFunds, totalValue(candidates), target)
	}
}

func totalValue(utxos []UTXO) money.Amount {
	total := money.Zero
	for _, u := range utxos {
		total = total.Add(u.Value)
	}
	return total
}
