package migrate

import (
	"io/fs"
	"strings"
	"testing"

	"elaqe.org/internal/store/pg"
)

func TestDatabaseURL(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@db:5432/elaqe?sslmode=disable": "pgx5://u:p@db:5432/elaqe?sslmode=disable",
		"postgresql://u@db/elaqe":                      "pgx5://u@db/elaqe",
		"pgx5://u@db/elaqe":                            "pgx5://u@db/elaqe",
	}
	for in, want := range cases {
		if got := DatabaseURL(in); got != want {
			t.Fatalf("DatabaseURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewManagerRejectsEmptyDSN(t *testing.T) {
	if _, err := NewManager("  "); err == nil {
		t.Fatalf("expected error for empty DSN")
	}
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(pg.Migrations, "migrations")
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	ups, downs := map[string]bool{}, map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	if len(ups) == 0 {
		t.Fatalf("no migrations embedded")
	}
	for v := range ups {
		if !downs[v] {
			t.Fatalf("migration %s has no down script", v)
		}
	}
}
