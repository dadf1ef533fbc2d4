package p2p

import (
	"testing"
	"time"

	"github.com/klingon-tech/cbrledger/internal/ledger"
	"github.com/klingon-tech/cbrledger/internal/registry"
	"github.com/klingon-tech/cbrledger/internal/storage"
	"github.com/klingon-tech/cbrledger/pkg/clock"
	"github.com/klingon-tech/cbrledger/pkg/money"
	"github.com/klingon-tech/cbrledger/pkg/txn"
)

func newTestLedger(t *testing.T) *ledger.Engine {
	t.Helper()
	fc := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	store := ledger.NewStore(storage.NewStore(storage.NewMemory()))
	l := ledger.NewEngine(store, fc)
	if _, err := l.GenesisIfEmpty("authority"); err != nil {
		t.Fatalf("GenesisIfEmpty: %v", err)
	}
	return l
}

func sampleTx(id string) *txn.Transaction {
	tx := &txn.Transaction{ID: id, Sender: "wallet-a", Receiver: "wallet-b", Amount: money.FromCents(250), Timestamp: 1700000000}
	tx.Seal()
	return tx
}

func TestBroadcast_DeliversAndUpdatesRegistry(t *testing.T) {
	source := newTestLedger(t)
	target := newTestLedger(t) // shares an identical genesis (same signer, same fake start)

	txs := []*txn.Transaction{sampleTx("t1")}
	b, err := source.AppendBlock(txs, "authority")
	if err != nil {
		t.Fatalf("AppendBlock: %v", err)
	}

	reg := registry.New(storage.NewMemory())
	reg.RegisterNode(registry.Record{NodeID: "fo-1", Role: registry.RoleFO, Status: registry.StatusActive})

	peer := NewSimPeer("fo-1", target)
	results := Broadcast([]Peer{peer}, b, txs, reg)
	if err := results["fo-1"]; err != nil {
		t.Fatalf("Broadcast result = %v, want nil", err)
	}

	got, err := target.GetByHash(b.Hash)
	if err != nil {
		t.Fatalf("target GetByHash: %v", err)
	}
	if got.Height != b.Height {
		t.Errorf("target block height = %d, want %d", got.Height, b.Height)
	}

	rec, err := reg.GetNode("fo-1")
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if rec.LastKnownHeight != b.Height || rec.LastKnownBlockHash != b.Hash {
		t.Errorf("registry record = %+v, want height %d hash %s", rec, b.Height, b.Hash)
	}
}

func TestBroadcast_IdempotentOnReplay(t *testing.T) {
	source := newTestLedger(t)
	target := newTestLedger(t)

	txs := []*txn.Transaction{sampleTx("t1")}
	b, _ := source.AppendBlock(txs, "authority")

	peer := NewSimPeer("fo-1", target)
	if err := peer.Broadcast(b, txs); err != nil {
		t.Fatalf("first Broadcast: %v", err)
	}
	if err := peer.Broadcast(b, txs); err != nil {
		t.Errorf("replayed Broadcast should be idempotent, got %v", err)
	}
}

func TestRequestSyncAndApplySync(t *testing.T) {
	source := newTestLedger(t)
	source.AppendBlock([]*txn.Transaction{sampleTx("t1")}, "authority")
	source.AppendBlock([]*txn.Transaction{sampleTx("t2")}, "authority")

	target := newTestLedger(t)
	peer := NewSimPeer("source", source)

	resp, err := RequestSync(peer, 1, 10)
	if err != nil {
		t.Fatalf("RequestSync: %v", err)
	}
	if len(resp.Blocks) != 2 {
		t.Fatalf("RequestSync returned %d blocks, want 2", len(resp.Blocks))
	}

	added, failed := ApplySync(resp, target.InsertBlock)
	if added != 2 || failed != 0 {
		t.Errorf("ApplySync = added %d failed %d, want 2, 0", added, failed)
	}

	length, _ := target.ChainLength()
	if length != 3 { // genesis + 2 synced blocks
		t.Errorf("target chain length = %d, want 3", length)
	}
}
