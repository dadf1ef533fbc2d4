package keystore

import (
	"errors"
	"fmt"
	"testing"

	"github.com/klingon-tech/cbrledger/pkg/money"
)

func makeUTXOs(values ...int64) []UTXO {
	utxos := make([]UTXO, len(values))
	for i, v := range values {
		utxos[i] = UTXO{ID: fmt.Sprintf("utxo-%d", i), Value: money.FromCents(v)}
	}
	return utxos
}

func TestSelectCoins_ExactMatch(t *testing.T) {
	utxos := makeUTXOs(1000, 2000, 3000)
	sel, err := SelectCoins(utxos, money.FromCents(2000))
	if err != nil {
		t.Fatalf("SelectCoins: %v", err)
	}
	if sel.Total != money.FromCents(2000) {
		t.Errorf("total = %s, want 20.00", sel.Total)
	}
	if sel.Change != money.Zero {
		t.Errorf("change = %s, want 0", sel.Change)
	}
	if len(sel.Inputs) != 1 {
		t.Errorf("inputs = %d, want 1 (exact single match)", len(sel.Inputs))
	}
}

func TestSelectCoins_SingleUTXO(t *testing.T) {
	utxos := makeUTXOs(5000)
	sel, err := SelectCoins(utxos, money.FromCents(3000))
	if err != nil {
		t.Fatalf("SelectCoins: %v", err)
	}
	if sel.Total != money.FromCents(5000) {
		t.Errorf("total = %s, want 50.00", sel.Total)
	}
	if sel.Change != money.FromCents(2000) {
		t.Errorf("change = %s, want 20.00", sel.Change)
	}
}

func TestSelectCoins_MultipleUTXOs(t *testing.T) {
	utxos := makeUTXOs(1000, 2000, 1500)
	sel, err := SelectCoins(utxos, money.FromCents(4000))
	if err != nil {
		t.Fatalf("SelectCoins: %v", err)
	}
	if sel.Total.Cmp(money.FromCents(4000)) < 0 {
		t.Errorf("total = %s, should be >= 40.00", sel.Total)
	}
	if len(sel.Inputs) > 1 {
		if sel.Total != money.FromCents(4500) {
			t.Errorf("total = %s, want 45.00", sel.Total)
		}
		if sel.Change != money.FromCents(500) {
			t.Errorf("change = %s, want 5.00", sel.Change)
		}
	}
}

func TestSelectCoins_PrefersLessChange(t *testing.T) {
	utxos := makeUTXOs(1000, 2000, 3000, 5000)
	sel, err := SelectCoins(utxos, money.FromCents(3000))
	if err != nil {
		t.Fatalf("SelectCoins: %v", err)
	}
	if sel.Change != money.Zero {
		t.Errorf("change = %s, want 0 (exact 30.00 match)", sel.Change)
	}
	if len(sel.Inputs) != 1 {
		t.Errorf("inputs = %d, want 1", len(sel.Inputs))
	}
}

func TestSelectCoins_InsufficientFunds(t *testing.T) {
	utxos := makeUTXOs(1000, 2000)
	_, err := SelectCoins(utxos, money.FromCents(5000))
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("expected ErrInsufficientFunds, got: %v", err)
	}
}

func TestSelectCoins_NoUTXOs(t *testing.T) {
	_, err := SelectCoins(nil, money.FromCents(1000))
	if !errors.Is(err, ErrNoUTXOs) {
		t.Errorf("expected ErrNoUTXOs, got: %v", err)
	}
}

func TestSelectCoins_ZeroTarget(t *testing.T) {
	utxos := makeUTXOs(1000)
	_, err := SelectCoins(utxos, money.Zero)
	if err == nil {
		t.Error("zero target should fail")
	}
}

func TestSelectCoins_AllZeroValue(t *testing.T) {
	utxos := makeUTXOs(0, 0, 0)
	_, err := SelectCoins(utxos, money.FromCents(1000))
	if !errors.Is(err, ErrNoUTXOs) {
		t.Errorf("expected ErrNoUTXOs for all-zero UTXOs, got: %v", err)
	}
}

func TestSelectCoins_LargestFirst(t *testing.T) {
	// Target = 70.00. No single UTXO covers it.
	// Largest-first: 50.00 + 30.00 = 80.00 (change=10.00).
	utxos := makeUTXOs(1000, 3000, 5000, 2000)
	sel, err := SelectCoins(utxos, money.FromCents(7000))
	if err != nil {
		t.Fatalf("SelectCoins: %v", err)
	}
	if sel.Total != money.FromCents(8000) {
		t.Errorf("total = %s, want 80.00", sel.Total)
	}
	if sel.Change != money.FromCents(1000) {
		t.Errorf("change = %s, want 10.00", sel.Change)
	}
	if len(sel.Inputs) != 2 {
		t.Errorf("inputs = %d, want 2", len(sel.Inputs))
	}
}

func TestSelectCoins_AllUTXOs(t *testing.T) {
	utxos := makeUTXOs(1000, 2000, 3000)
	sel, err := SelectCoins(utxos, money.FromCents(6000))
	if err != nil {
		t.Fatalf("SelectCoins: %v", err)
	}
	if sel.Total != money.FromCents(6000) {
		t.Errorf("total = %s, want 60.00", sel.Total)
	}
	if sel.Change != money.Zero {
		t.Errorf("change = %s, want 0", sel.Change)
	}
	if len(sel.Inputs) != 3 {
		t.Errorf("inputs = %d, want 3", len(sel.Inputs))
	}
}

func TestCoinSelection_Fields(t *testing.T) {
	utxos := makeUTXOs(5000)
	sel, _ := SelectCoins(utxos, money.FromCents(3000))
	if sel.Total != sel.Change.Add(money.FromCents(3000)) {
		t.Error("Total should equal Change + target")
	}
}
