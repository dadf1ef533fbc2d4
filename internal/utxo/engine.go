package utxo

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/klingon-tech/cbrledger/pkg/clock"
	"github.com/klingon-tech/cbrledger/pkg/money"
)

// StaleLockSeconds is L_max (spec §5): a lock held longer than this is
// considered abandoned and may be broken by a later spend attempt.
const StaleLockSeconds = 5 * 60

// Sentinel errors for engine operations.
var (
	ErrInsufficientFunds = errors.New("insufficient unspent funds")
	ErrUTXOLocked        = errors.New("utxo locked by another spend")
	ErrUTXONotUnspent    = errors.New("utxo is not unspent")
	ErrNoUnspentOutput   = errors.New("wallet has no unspent output to anchor")
)

// Engine implements the UTXO operations of spec §4.3 against a Store.
type Engine struct {
	store *Store
	clock clock.Clock
	seq   atomic.Uint64
}

// NewEngine creates an Engine backed by store, using clk for lock
// timestamps and staleness checks.
func NewEngine(store *Store, clk clock.Clock) *Engine {
	return &Engine{store: store, clock: clk}
}

// Balance returns the sum of owner's UNSPENT UTXO amounts.
func (e *Engine) Balance(owner string) (money.Amount, error) {
	total := money.Zero
	err := e.store.ForOwnerAscending(owner, func(u *UTXO) error {
		if u.Status == StatusUnspent {
			total = total.Add(u.Amount)
		}
		return nil
	})
	if err != nil {
		return money.Zero, fmt.Errorf("balance %s: %w", owner, err)
	}
	return total, nil
}

// Select picks UNSPENT, non-stale-locked outputs for owner in ascending
// creation order until the running sum covers amount. It may return a
// shorter list (and a lower sum) if owner's spendable balance is
// insufficient — the caller must check the returned sum against amount.
func (e *Engine) Select(owner string, amount money.Amount) ([]*UTXO, money.Amount, error) {
	now := e.clock.Now().Unix()
	var picked []*UTXO
	sum := money.Zero

	err := e.store.ForOwnerAscending(owner, func(u *UTXO) error {
		if sum.Cmp(amount) >= 0 {
			return errStop
		}
		if u.Status != StatusUnspent {
			return nil
		}
		if u.IsLocked(now, StaleLockSeconds) {
			return nil
		}
		picked = append(picked, u)
		sum = sum.Add(u.Amount)
		return nil
	})
	if err != nil && err != errStop {
		return nil, money.Zero, fmt.Errorf("select %s: %w", owner, err)
	}
	return picked, sum, nil
}

var errStop = errors.New("stop iteration")

// Create inserts a new UNSPENT output owned by owner.
func (e *Engine) Create(owner string, amount money.Amount, creatingTx string, id string) (*UTXO, error) {
	u := &UTXO{
		ID:         id,
		Owner:      owner,
		Amount:     amount,
		Status:     StatusUnspent,
		CreatingTx: creatingTx,
		Seq:        e.nextSeq(),
	}
	if err := e.store.Put(u); err != nil {
		return nil, fmt.Errorf("create %s: %w", id, err)
	}
	return u, nil
}

func (e *Engine) nextSeq() uint64 {
	return e.seq.Add(1)
}

// Spend runs the two-phase locked spend of spec §4.3 against the outputs
// selected for owner to cover amount:
//
//  1. Lock phase: attempt to claim each selected output with an atomic
//     compare-and-set (locked_by = none, or a stale lock is broken).
//     If any claim fails, every lock obtained so far is released and
//     the whole attempt fails without side effects.
//  2. Spend phase: transition every locked output to SPENT, set
//     spending_tx, and clear the lock.
//
// Returns the change amount (amount of the sender's selected outputs
// minus the spend amount — the caller mints a corresponding change UTXO)
// and the ids of the outputs actually spent.
func (e *Engine) Spend(owner string, amount money.Amount, spendingTx string) (money.Amount, []string, error) {
	selected, sum, err := e.Select(owner, amount)
	if err != nil {
		return money.Zero, nil, err
	}
	if sum.Cmp(amount) < 0 {
		return money.Zero, nil, fmt.Errorf("%w: have %s, need %s", ErrInsufficientFunds, sum, amount)
	}

	now := e.clock.Now().Unix()
	locked := make([]*UTXO, 0, len(selected))

	release := func() {
		for _, u := range locked {
			u.Lock = nil
			_ = e.store.Put(u)
		}
	}

	for _, u := range selected {
		fresh, err := e.store.Get(u.ID)
		if err != nil {
			release()
			return money.Zero, nil, fmt.Errorf("spend %s: reread %s: %w", owner, u.ID, err)
		}
		if fresh.Status != StatusUnspent {
			release()
			return money.Zero, nil, fmt.Errorf("%w: %s", ErrUTXONotUnspent, u.ID)
		}
		if fresh.IsLocked(now, StaleLockSeconds) {
			release()
			return money.Zero, nil, fmt.Errorf("%w: %s", ErrUTXOLocked, u.ID)
		}
		fresh.Lock = &Lock{LockedBy: spendingTx, LockedAt: now}
		if err := e.store.Put(fresh); err != nil {
			release()
			return money.Zero, nil, fmt.Errorf("spend %s: lock %s: %w", owner, u.ID, err)
		}
		// Re-read to verify we actually won the lock (guards against a
		// concurrent spender racing between Get and Put).
		verify, err := e.store.Get(u.ID)
		if err != nil || verify.Lock == nil || verify.Lock.LockedBy != spendingTx {
			release()
			return money.Zero, nil, fmt.Errorf("%w: %s", ErrUTXOLocked, u.ID)
		}
		locked = append(locked, verify)
	}

	spentIDs := make([]string, 0, len(locked))
	for _, u := range locked {
		u.Status = StatusSpent
		u.SpendingTx = spendingTx
		u.Lock = nil
		if err := e.store.Put(u); err != nil {
			return money.Zero, nil, fmt.Errorf("spend %s: finalize %s: %w", owner, u.ID, err)
		}
		spentIDs = append(spentIDs, u.ID)
	}

	change := sum.Sub(amount)
	return change, spentIDs, nil
}

// OfflineAnchor implements the single-output offline-spend variant (spec
// §4.3): it locks and consumes one UNSPENT, non-stale-locked output and
// mints a new anchor UTXO whose amount follows the shrinking rule
// max(0.01, round(0.4 × amount, 2)), to serve as the next offline
// operation's candidate input.
func (e *Engine) OfflineAnchor(owner string, amount money.Amount, tx string, anchorID string) (*UTXO, error) {
	selected, sum, err := e.Select(owner, money.FromCents(1))
	if err != nil {
		return nil, err
	}
	if len(selected) == 0 || sum.IsNegative() {
		return nil, ErrNoUnspentOutput
	}

	candidate := selected[0]
	_, spentIDs, err := e.singleSpend(candidate, tx)
	if err != nil {
		return nil, err
	}
	if len(spentIDs) == 0 {
		return nil, ErrNoUnspentOutput
	}

	anchorAmount := amount.MulFrac(4, 10) // round(0.4 * amount, 2)
	floor := money.FromCents(1)           // 0.01
	if anchorAmount.Cmp(floor) < 0 {
		anchorAmount = floor
	}

	return e.Create(owner, anchorAmount, tx, anchorID)
}

// IsUnspent reports whether the UTXO with the given id is currently
// UNSPENT. The offline-reconciliation sync step (spec §4.3) uses this to
// detect a conflict: an anchor that is no longer UNSPENT by the time
// sync_offline runs was already consumed by a competing spend.
func (e *Engine) IsUnspent(id string) (bool, error) {
	u, err := e.store.Get(id)
	if err != nil {
		return false, fmt.Errorf("is_unspent %s: %w", id, err)
	}
	return u.Status == StatusUnspent, nil
}

// singleSpend locks and spends exactly one already-selected candidate
// output, reusing the same compare-and-set discipline as Spend.
func (e *Engine) singleSpend(candidate *UTXO, spendingTx string) (money.Amount, []string, error) {
	now := e.clock.Now().Unix()

	fresh, err := e.store.Get(candidate.ID)
	if err != nil {
		return money.Zero, nil, fmt.Errorf("anchor spend: reread %s: %w", candidate.ID, err)
	}
	if fresh.Status != StatusUnspent {
		return money.Zero, nil, fmt.Errorf("%w: %s", ErrUTXONotUnspent, candidate.ID)
	}
	if fresh.IsLocked(now, StaleLockSeconds) {
		return money.Zero, nil, fmt.Errorf("%w: %s", ErrUTXOLocked, candidate.ID)
	}

	fresh.Lock = &Lock{LockedBy: spendingTx, LockedAt: now}
	if err := e.store.Put(fresh); err != nil {
		return money.Zero, nil, fmt.Errorf("anchor spend: lock %s: %w", candidate.ID, err)
	}
	verify, err := e.store.Get(candidate.ID)
	if err != nil || verify.Lock == nil || verify.Lock.LockedBy != spendingTx {
		return money.Zero, nil, fmt.Errorf("%w: %s", ErrUTXOLocked, candidate.ID)
	}

	verify.Status = StatusSpent
	verify.SpendingTx = spendingTx
	verify.Lock = nil
	if err := e.store.Put(verify); err != nil {
		return money.Zero, nil, fmt.Errorf("anchor spend: finalize %s: %w", candidate.ID, err)
	}

	return verify.Amount, []string{verify.ID}, nil
}
