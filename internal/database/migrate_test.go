package database

import (
	"path/filepath"
	"testing"
)

func TestFreshDatabaseAtLatestVersion(t *testing.T) {
	db := openTestDB(t)

	version, err := schemaVersion(db.conn)
	if err != nil {
		t.Fatalf("reading version: %v", err)
	}
	if version != latestVersion() {
		t.Errorf("expected version %d, got %d", latestVersion(), version)
	}
}

func TestReopenDoesNotReapplyMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := Open(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if err := db.InsertEvent(testEvent("e1", "Survivor")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	db.Close()

	db2, err := Open(path)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer db2.Close()

	got, err := db2.GetEvent("e1")
	if err != nil || got == nil {
		t.Fatalf("event lost across reopen: %v %v", got, err)
	}

	version, err := schemaVersion(db2.conn)
	if err != nil {
		t.Fatalf("reading version: %v", err)
	}
	if version != latestVersion() {
		t.Errorf("expected version %d after reopen, got %d", latestVersion(), version)
	}
}
