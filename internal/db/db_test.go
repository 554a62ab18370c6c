package db

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"
)

func TestOpenMigrate(t *testing.T) {
	d, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	if err := d.Migrate(); err != nil {
		t.Fatal(err)
	}
	// Idempotent.
	if err := d.Migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	var n int
	if err := d.QueryRow(`SELECT COUNT(*) FROM file_groups`).Scan(&n); err != nil {
		t.Fatalf("schema missing file_groups: %v", err)
	}
}

func TestOpenMemory(t *testing.T) {
	d, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	if err := d.Migrate(); err != nil {
		t.Fatal(err)
	}
}

func TestTimeHelpers(t *testing.T) {
	if got := NullTime(sql.NullInt64{}); got != nil {
		t.Errorf("NullTime(invalid) = %v, want nil", got)
	}
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	got := NullTime(sql.NullInt64{Int64: at.Unix(), Valid: true})
	if got == nil || !got.Equal(at) {
		t.Errorf("NullTime round trip = %v, want %v", got, at)
	}
	if TimeValue(nil) != nil {
		t.Error("TimeValue(nil) should be nil")
	}
	if v := TimeValue(&at); v.(int64) != at.Unix() {
		t.Errorf("TimeValue = %v, want %d", v, at.Unix())
	}
}
