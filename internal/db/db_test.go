package db

import (
	"context"
	"path/filepath"
	"testing"
)

func TestOpenMigrated_CreatesSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "orgest.db")
	db, err := OpenMigrated(context.Background(), path)
	if err != nil {
		t.Fatalf("OpenMigrated: %v", err)
	}
	defer db.Close()

	for _, table := range []string{"jobs", "job_stages", "job_errors"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestRunMigrations_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orgest.db")
	db, err := OpenMigrated(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if err := RunMigrations(context.Background(), db); err != nil {
		t.Fatalf("second run: %v", err)
	}
}
