package sqlstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/Termdamp/MatchMixer/internal/adapters/repository"
	"github.com/Termdamp/MatchMixer/internal/adapters/repository/storetest"
	"github.com/Termdamp/MatchMixer/internal/domain/model"
	"github.com/Termdamp/MatchMixer/internal/lobby"
)

// envPostgresDSN points the contract suite at a live PostgreSQL database.
const envPostgresDSN = "MATCHMIXER_TEST_POSTGRES_DSN"

func openTempSQLite(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rooms.db")
	store, err := Open(context.Background(), DriverSQLite, path)
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	return store
}

func TestSQLiteStore_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) repository.Store {
		return openTempSQLite(t)
	})
}

func TestPostgresStore_Contract(t *testing.T) {
	dsn := os.Getenv(envPostgresDSN)
	if dsn == "" {
		t.Skipf("%s not set", envPostgresDSN)
	}
	storetest.Run(t, func(t *testing.T) repository.Store {
		store, err := Open(context.Background(), DriverPostgres, dsn)
		if err != nil {
			t.Fatalf("open postgres store: %v", err)
		}
		if _, err := store.db.Exec(`DELETE FROM rooms`); err != nil {
			t.Fatalf("truncate rooms: %v", err)
		}
		return store
	})
}

func TestSQLiteStore_ReopenKeepsRoomsAndMigrations(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "rooms.db")

	first, err := Open(ctx, DriverSQLite, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	room := model.NewRoom("AB12", "Ann", 7)
	room.Players = append(room.Players, model.Participant{Name: "Bob", Score: 4})
	if _, err := first.Create(ctx, room); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	second, err := Open(ctx, DriverSQLite, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()

	got, err := second.Get(ctx, "AB12")
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if len(got.Players) != 2 || got.Players[1].Name != "Bob" || !got.Players[0].IsHost {
		t.Fatalf("players after reopen = %+v", got.Players)
	}

	var applied int
	if err := second.db.QueryRow(`SELECT COUNT(*) FROM ` + migrationTable).Scan(&applied); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if applied != 2 {
		t.Fatalf("applied migrations = %d, want 2", applied)
	}
}

func TestOpen_RejectsBadArguments(t *testing.T) {
	if _, err := Open(context.Background(), DriverSQLite, " "); err == nil {
		t.Fatal("expected an error for an empty dsn")
	}
	if _, err := Open(context.Background(), "mysql", "x"); err == nil {
		t.Fatal("expected an error for an unsupported driver")
	}
}

func TestDialect_Rebind(t *testing.T) {
	q := "UPDATE rooms SET host = ? WHERE code = ? AND version = ?"
	if got := dialect(DriverSQLite).rebind(q); got != q {
		t.Fatalf("sqlite rebind changed the query: %q", got)
	}
	want := "UPDATE rooms SET host = $1 WHERE code = $2 AND version = $3"
	if got := dialect(DriverPostgres).rebind(q); got != want {
		t.Fatalf("postgres rebind = %q, want %q", got, want)
	}
}

func TestExtractUpMigration(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"CREATE TABLE a (x INT);", "CREATE TABLE a (x INT);"},
		{"-- +migrate Up\nCREATE TABLE a (x INT);\n-- +migrate Down\nDROP TABLE a;", "\nCREATE TABLE a (x INT);\n"},
		{"-- +migrate Up\nCREATE TABLE b (y INT);", "\nCREATE TABLE b (y INT);"},
	}
	for i, tc := range cases {
		if got := extractUpMigration(tc.in); got != tc.want {
			t.Errorf("case %d: got %q, want %q", i, got, tc.want)
		}
	}
}

func TestSQLiteDSN_KeepsExplicitParameters(t *testing.T) {
	if got := sqliteDSN("file:x.db?mode=memory"); got != "file:x.db?mode=memory" {
		t.Fatalf("explicit parameters were overridden: %q", got)
	}
}

func TestSQLiteStore_AppliesConnectionPragmas(t *testing.T) {
	store := openTempSQLite(t)
	defer store.Close()

	var journal string
	if err := store.db.QueryRow(`PRAGMA journal_mode`).Scan(&journal); err != nil {
		t.Fatalf("read journal_mode: %v", err)
	}
	if !strings.EqualFold(journal, "wal") {
		t.Fatalf("journal_mode = %q, want wal", journal)
	}

	var busy int
	if err := store.db.QueryRow(`PRAGMA busy_timeout`).Scan(&busy); err != nil {
		t.Fatalf("read busy_timeout: %v", err)
	}
	if busy != 5000 {
		t.Fatalf("busy_timeout = %d, want 5000", busy)
	}

	var foreignKeys int
	if err := store.db.QueryRow(`PRAGMA foreign_keys`).Scan(&foreignKeys); err != nil {
		t.Fatalf("read foreign_keys: %v", err)
	}
	if foreignKeys != 1 {
		t.Fatalf("foreign_keys = %d, want 1", foreignKeys)
	}
}

func TestSQLiteStore_ConcurrentJoins(t *testing.T) {
	const (
		rooms          = 10
		joinersPerRoom = 16
	)
	ctx := context.Background()
	store := openTempSQLite(t)
	defer store.Close()

	coord := lobby.NewCoordinator(store, lobby.WithWriteRetries(1000))
	codes := make([]string, rooms)
	for i := range codes {
		code, err := coord.CreateRoom(ctx, "Host", 5)
		if err != nil {
			t.Fatalf("create room %d: %v", i, err)
		}
		codes[i] = code
	}

	var g errgroup.Group
	for _, code := range codes {
		for j := range joinersPerRoom {
			name := fmt.Sprintf("p%02d", j)
			g.Go(func() error { return coord.JoinRoom(ctx, code, name, 1+j%10) })
		}
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent join failed: %v", err)
	}

	for _, code := range codes {
		room, err := store.Get(ctx, code)
		if err != nil {
			t.Fatalf("get %s: %v", code, err)
		}
		if len(room.Players) != joinersPerRoom+1 {
			t.Fatalf("room %s has %d players, want %d", code, len(room.Players), joinersPerRoom+1)
		}
	}
}
