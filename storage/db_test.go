package storage

import (
	"errors"
	"path/filepath"
	"testing"
)

func exerciseDatabase(t *testing.T, db Database) {
	t.Helper()

	if _, err := db.Get([]byte("missing")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := db.Put([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	value, err := db.Get([]byte("a"))
	if err != nil || string(value) != "1" {
		t.Fatalf("get a: %q %v", value, err)
	}

	batch := db.NewBatch()
	batch.Put([]byte("b"), []byte("2"))
	batch.Delete([]byte("a"))
	if batch.Len() != 2 {
		t.Fatalf("expected 2 pending ops, got %d", batch.Len())
	}
	if ok, _ := db.Has([]byte("b")); ok {
		t.Fatalf("batch must not be visible before Write")
	}
	if err := batch.Write(); err != nil {
		t.Fatalf("write batch: %v", err)
	}
	if ok, _ := db.Has([]byte("a")); ok {
		t.Fatalf("expected a deleted by batch")
	}
	value, err = db.Get([]byte("b"))
	if err != nil || string(value) != "2" {
		t.Fatalf("get b: %q %v", value, err)
	}
	if err := db.Delete([]byte("b")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ok, _ := db.Has([]byte("b")); ok {
		t.Fatalf("expected b deleted")
	}
}

func TestMemDB(t *testing.T) {
	db := NewMemDB()
	defer db.Close()
	exerciseDatabase(t, db)
}

func TestLevelDB(t *testing.T) {
	db, err := NewLevelDB(filepath.Join(t.TempDir(), "state"))
	if err != nil {
		t.Fatalf("open leveldb: %v", err)
	}
	defer db.Close()
	exerciseDatabase(t, db)
}

func TestMemDBReturnsCopies(t *testing.T) {
	db := NewMemDB()
	buf := []byte("value")
	if err := db.Put([]byte("k"), buf); err != nil {
		t.Fatalf("put: %v", err)
	}
	buf[0] = 'X'
	got, _ := db.Get([]byte("k"))
	if string(got) != "value" {
		t.Fatalf("stored value aliased caller buffer: %q", got)
	}
	if keys := db.Keys(); len(keys) != 1 || keys[0] != "k" {
		t.Fatalf("unexpected keys %v", keys)
	}
}
