package database

import (
	"path/filepath"
	"testing"

	"github.com/aldoetobex/lawsuit-backend/pkg/models"
)

func TestOpenSQLite_Migrate(t *testing.T) {
	db, err := Open("sqlite", "", filepath.Join(t.TempDir(), "app.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	for _, m := range models.All() {
		if !db.Migrator().HasTable(m) {
			t.Fatalf("missing table for %T", m)
		}
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, err := Open("oracle", "", ""); err == nil {
		t.Fatal("expected error")
	}
}
