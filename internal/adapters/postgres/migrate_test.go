package postgres

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/Overland-East-Bay/class-booking-api/internal/adapters/postgres/migrations"
)

func TestExtractUp(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name, in, want string
	}{
		{"no markers", "CREATE TABLE a (x int);", "CREATE TABLE a (x int);"},
		{"up only", "-- +migrate Up\nCREATE TABLE a (x int);", "CREATE TABLE a (x int);"},
		{"up and down", "-- +migrate Up\nCREATE TABLE a (x int);\n-- +migrate Down\nDROP TABLE a;", "CREATE TABLE a (x int);"},
	}
	for _, tc := range cases {
		if got := strings.TrimSpace(extractUp(tc.in)); got != tc.want {
			t.Fatalf("%s: extractUp()=%q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestEmbeddedMigrationsHaveUpSections(t *testing.T) {
	t.Parallel()

	names, err := fs.Glob(migrations.FS, "*.sql")
	if err != nil {
		t.Fatalf("Glob() err=%v", err)
	}
	if len(names) == 0 {
		t.Fatalf("no embedded migrations")
	}
	for _, name := range names {
		b, err := fs.ReadFile(migrations.FS, name)
		if err != nil {
			t.Fatalf("ReadFile(%s) err=%v", name, err)
		}
		up := extractUp(string(b))
		if strings.TrimSpace(up) == "" || strings.Contains(up, "DROP TABLE") {
			t.Fatalf("%s: up section empty or contains down statements", name)
		}
	}
}
