package txn

import (
	"testing"

	"github.com/klingon-tech/cbrledger/pkg/money"
)

func sampleTx() *Transaction {
	t := &Transaction{
		ID:        "tx-1",
		Sender:    "wallet-a",
		Receiver:  "wallet-b",
		Amount:    money.FromCents(30000),
		Kind:      KindOnline,
		Channel:   "C2C",
		Status:    StatusPending,
		Timestamp: 1700000000,
		BankID:    "bank-1",
	}
	t.Seal()
	return t
}

func TestSeal_SetsHash(t *testing.T) {
	tx := sampleTx()
	if tx.Hash.IsZero() {
		t.Fatal("Seal should populate a non-zero hash")
	}
	if tx.Hash != tx.ComputeHash() {
		t.Error("Hash should equal ComputeHash() after Seal")
	}
}

func TestComputeHash_Deterministic(t *testing.T) {
	a := sampleTx()
	b := sampleTx()
	if a.Hash != b.Hash {
		t.Error("identical transactions should hash identically")
	}
}

func TestComputeHash_SensitiveToFields(t *testing.T) {
	base := sampleTx()

	variants := []func(*Transaction){
		func(tx *Transaction) { tx.ID = "tx-2" },
		func(tx *Transaction) { tx.Sender = "wallet-c" },
		func(tx *Transaction) { tx.Receiver = "wallet-c" },
		func(tx *Transaction) { tx.Amount = money.FromCents(30001) },
		func(tx *Transaction) { tx.Timestamp++ },
	}

	for i, mutate := range variants {
		tx := sampleTx()
		mutate(tx)
		if tx.ComputeHash() == base.Hash {
			t.Errorf("variant %d did not change the computed hash", i)
		}
	}
}

func TestComputeHash_IgnoresNonIdentifyingFields(t *testing.T) {
	a := sampleTx()
	b := sampleTx()
	b.Status = StatusConfirmed
	b.Channel = "B2B"
	b.Notes = "memo"

	if a.ComputeHash() != b.ComputeHash() {
		t.Error("status/channel/notes should not affect the content hash")
	}
}

func TestMarshalUnmarshalJSON_RoundTrip(t *testing.T) {
	tx := sampleTx()
	tx.UserSig = []byte{0x01, 0x02, 0x03}
	tx.AuthSig = []byte{0xAA}

	data, err := tx.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}

	var out Transaction
	if err := out.UnmarshalJSON(data); err != nil {
		t.Fatalf("UnmarshalJSON: %v", err)
	}

	if out.ID != tx.ID || out.Hash != tx.Hash || out.Amount != tx.Amount {
		t.Errorf("round trip mismatch: got %+v, want %+v", out, tx)
	}
	if len(out.UserSig) != 3 || out.UserSig[2] != 0x03 {
		t.Errorf("UserSig round trip failed: %v", out.UserSig)
	}
	if len(out.BankSig) != 0 {
		t.Errorf("BankSig should remain empty, got %v", out.BankSig)
	}
}
