package storage

import (
	"bytes"
	"errors"
	"testing"
)

func testStore(t *testing.T, store Store) {
	t.Helper()

	t.Run("CommitsOnSuccess", func(t *testing.T) {
		err := store.Transaction(func(txn Txn) error {
			return txn.Put([]byte("a"), []byte("1"))
		})
		if err != nil {
			t.Fatalf("Transaction: %v", err)
		}
		v, err := store.Get([]byte("a"))
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if !bytes.Equal(v, []byte("1")) {
			t.Errorf("Get = %q, want %q", v, "1")
		}
	})

	t.Run("RollsBackOnError", func(t *testing.T) {
		boom := errors.New("boom")
		err := store.Transaction(func(txn Txn) error {
			if putErr := txn.Put([]byte("b"), []byte("2")); putErr != nil {
				return putErr
			}
			return boom
		})
		if err == nil {
			t.Fatal("expected Transaction to fail")
		}
		if _, getErr := store.Get([]byte("b")); getErr == nil {
			t.Error("key b should not be visible after a rolled-back transaction")
		}
	})

	t.Run("SeesOwnWritesWithinTransaction", func(t *testing.T) {
		err := store.Transaction(func(txn Txn) error {
			if err := txn.Put([]byte("c"), []byte("3")); err != nil {
				return err
			}
			v, err := txn.Get([]byte("c"))
			if err != nil {
				return err
			}
			if !bytes.Equal(v, []byte("3")) {
				t.Errorf("in-transaction Get = %q, want %q", v, "3")
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Transaction: %v", err)
		}
	})

	t.Run("GroupedWritesAreAtomic", func(t *testing.T) {
		err := store.Transaction(func(txn Txn) error {
			if err := txn.Put([]byte("block/1"), []byte("blockdata")); err != nil {
				return err
			}
			return txn.Put([]byte("tx/1"), []byte("txdata"))
		})
		if err != nil {
			t.Fatalf("Transaction: %v", err)
		}
		if _, err := store.Get([]byte("block/1")); err != nil {
			t.Error("block/1 should be committed")
		}
		if _, err := store.Get([]byte("tx/1")); err != nil {
			t.Error("tx/1 should be committed")
		}
	})
}

func TestMemoryStore(t *testing.T) {
	store := NewStore(NewMemory())
	testStore(t, store)
}

func TestBadgerStore(t *testing.T) {
	dir := t.TempDir()
	db, err := NewBadger(dir)
	if err != nil {
		t.Fatalf("NewBadger: %v", err)
	}
	defer db.Close()
	testStore(t, NewStore(db))
}
