package database

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestMigrateIsIdempotent(t *testing.T) {
	db, err := New(SQLite, filepath.Join(t.TempDir(), "stats.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	for i := 0; i < 2; i++ {
		if err := Migrate(db, SQLite); err != nil {
			t.Fatalf("migrate run %d: %v", i+1, err)
		}
	}

	rows, err := db.Query(`SELECT name FROM pragma_table_info('db_stats') ORDER BY cid`)
	if err != nil {
		t.Fatalf("table info: %v", err)
	}
	defer rows.Close()
	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("scan: %v", err)
		}
		cols = append(cols, name)
	}
	want := []string{"id", "timestamp", "connections", "query_count", "cache_hit_ratio"}
	if len(cols) != len(want) {
		t.Fatalf("columns = %v, want %v", cols, want)
	}
	for i := range want {
		if cols[i] != want[i] {
			t.Fatalf("columns = %v, want %v", cols, want)
		}
	}
}

func TestMigrateEventsRejectsBadNames(t *testing.T) {
	db, err := New(SQLite, filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := MigrateEvents(db, "metrics", "logs"); err != nil {
		t.Fatalf("migrate events: %v", err)
	}
	err = MigrateEvents(db, "logs; DROP TABLE metrics")
	if !errors.Is(err, ErrSchemaInit) {
		t.Fatalf("err = %v, want ErrSchemaInit", err)
	}
}

func TestNewRejectsUnknownDialect(t *testing.T) {
	if _, err := New(Dialect("oracle"), "x"); err == nil {
		t.Fatal("expected error for unknown dialect")
	}
}
