package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/wricardo/uno-server/game/engine"
	"github.com/wricardo/uno-server/game/service"
)

var testNow = time.Date(2026, time.March, 14, 18, 30, 0, 0, time.UTC)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "sessions.sqlite"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

func createSession(t *testing.T, store *Store, id, creator string, at time.Time) {
	t.Helper()
	err := store.RunAtomic(context.Background(), id, func(ctx context.Context, v service.View) (*engine.Changeset, error) {
		return engine.NewSession(id, engine.CreateInput{Name: "Table " + id, Rules: "house", CreatorID: creator}, at)
	})
	if err != nil {
		t.Fatalf("create session %s: %v", id, err)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open(""); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sessions.sqlite")
	first, err := Open(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	createSession(t, first, "s1", "alice", testNow)
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	second, err := Open(path)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer second.Close()

	sess, err := second.GetSession(context.Background(), "s1")
	if err != nil {
		t.Fatalf("get session after reopen: %v", err)
	}
	if sess.Name != "Table s1" {
		t.Fatalf("name = %q, want %q", sess.Name, "Table s1")
	}
}

func TestCreateSessionRoundTrip(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	createSession(t, store, "s1", "alice", testNow)

	sess, err := store.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if sess.State != engine.StateWaiting {
		t.Fatalf("state = %q, want %q", sess.State, engine.StateWaiting)
	}
	if sess.CreatorID != "alice" {
		t.Fatalf("creator_id = %q, want %q", sess.CreatorID, "alice")
	}
	if sess.Rules != "house" {
		t.Fatalf("rules = %q, want %q", sess.Rules, "house")
	}
	if sess.CurrentPlayerID != "" {
		t.Fatalf("current_player_id = %q, want empty", sess.CurrentPlayerID)
	}
	if !sess.CreatedAt.Equal(testNow) {
		t.Fatalf("created_at = %v, want %v", sess.CreatedAt, testNow)
	}

	roster, err := store.GetRoster(ctx, "s1")
	if err != nil {
		t.Fatalf("get roster: %v", err)
	}
	if len(roster) != 1 || roster[0].PlayerID != "alice" || roster[0].Ready {
		t.Fatalf("roster = %+v, want alice not ready", roster)
	}

	deck, err := store.GetCards(ctx, "s1", engine.CardFilter{Position: engine.PositionDeck})
	if err != nil {
		t.Fatalf("get cards: %v", err)
	}
	if len(deck) != engine.DeckSize {
		t.Fatalf("deck size = %d, want %d", len(deck), engine.DeckSize)
	}
	for i, c := range deck {
		if c.ID != i+1 {
			t.Fatalf("card %d id = %d, want %d", i, c.ID, i+1)
		}
	}
}

func TestDuplicateCreateIsConflict(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	createSession(t, store, "s1", "alice", testNow)

	err := store.RunAtomic(context.Background(), "s1", func(ctx context.Context, v service.View) (*engine.Changeset, error) {
		return engine.NewSession("s1", engine.CreateInput{Name: "Again", CreatorID: "bob"}, testNow)
	})
	if !errors.Is(err, engine.ErrConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
}

func TestMissingSessionReads(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()

	if _, err := store.GetSession(ctx, "nope"); !errors.Is(err, engine.ErrNotFound) {
		t.Fatalf("get session err = %v, want not found", err)
	}
	if _, err := store.GetRoster(ctx, "nope"); !errors.Is(err, engine.ErrNotFound) {
		t.Fatalf("get roster err = %v, want not found", err)
	}
	if _, err := store.GetCards(ctx, "nope", engine.CardFilter{}); !errors.Is(err, engine.ErrNotFound) {
		t.Fatalf("get cards err = %v, want not found", err)
	}

	err := store.RunAtomic(ctx, "nope", func(ctx context.Context, v service.View) (*engine.Changeset, error) {
		return &engine.Changeset{RemovePlayers: []string{"alice"}}, nil
	})
	if !errors.Is(err, engine.ErrNotFound) {
		t.Fatalf("run atomic err = %v, want not found", err)
	}
}

func TestFailedChangesetRollsBack(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	createSession(t, store, "s1", "alice", testNow)

	err := store.RunAtomic(ctx, "s1", func(ctx context.Context, v service.View) (*engine.Changeset, error) {
		return &engine.Changeset{
			AddEntries:  []engine.RosterEntry{{SessionID: "s1", PlayerID: "bob", JoinedAt: testNow, Seq: 1}},
			UpdateCards: []engine.Card{{ID: 999, Position: engine.PositionHand}},
		}, nil
	})
	if !errors.Is(err, engine.ErrInvariant) {
		t.Fatalf("err = %v, want invariant", err)
	}

	roster, err := store.GetRoster(ctx, "s1")
	if err != nil {
		t.Fatalf("get roster: %v", err)
	}
	if len(roster) != 1 {
		t.Fatalf("roster size = %d, want 1", len(roster))
	}
}

func TestCallbackErrorWritesNothing(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	createSession(t, store, "s1", "alice", testNow)

	boom := errors.New("boom")
	err := store.RunAtomic(ctx, "s1", func(ctx context.Context, v service.View) (*engine.Changeset, error) {
		return &engine.Changeset{RemovePlayers: []string{"alice"}}, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	roster, _ := store.GetRoster(ctx, "s1")
	if len(roster) != 1 {
		t.Fatalf("roster size = %d, want 1", len(roster))
	}
}

func TestGameLifecycleThroughService(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	svc := service.NewGameService(store, nil, service.WithRandomSource(engine.NewSeededSource(5)))

	res, err := svc.CreateSession(ctx, service.CreateRequest{Name: "Friends Night"}, "A")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	id := res.Session.ID

	steps := []func() error{
		func() error { _, err := svc.JoinSession(ctx, id, "B"); return err },
		func() error { _, err := svc.JoinSession(ctx, id, "C"); return err },
		func() error { _, err := svc.SetReady(ctx, id, "A", true); return err },
		func() error { _, err := svc.SetReady(ctx, id, "B", true); return err },
		func() error { _, err := svc.SetReady(ctx, id, "C", true); return err },
		func() error { _, err := svc.StartSession(ctx, id, "A"); return err },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}

	info, err := svc.GetSession(ctx, id)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if info.State != engine.StateInProgress {
		t.Fatalf("state = %q, want %q", info.State, engine.StateInProgress)
	}
	if info.CurrentPlayerID == nil || *info.CurrentPlayerID != "A" {
		t.Fatalf("current player = %v, want A", info.CurrentPlayerID)
	}

	for _, p := range []string{"A", "B", "C"} {
		hand, err := svc.GetHand(ctx, id, p)
		if err != nil {
			t.Fatalf("hand %s: %v", p, err)
		}
		if len(hand) != engine.HandSize {
			t.Fatalf("hand %s size = %d, want %d", p, len(hand), engine.HandSize)
		}
	}
	discard, _ := store.GetCards(ctx, id, engine.CardFilter{Position: engine.PositionDiscard})
	if len(discard) != 1 {
		t.Fatalf("discard size = %d, want 1", len(discard))
	}
	deck, _ := store.GetCards(ctx, id, engine.CardFilter{Position: engine.PositionDeck})
	if want := engine.DeckSize - 3*engine.HandSize - 1; len(deck) != want {
		t.Fatalf("deck size = %d, want %d", len(deck), want)
	}

	// The turn holder leaves; the next player in join order takes over.
	res, err = svc.LeaveSession(ctx, id, "A")
	if err != nil {
		t.Fatalf("leave: %v", err)
	}
	if res.Session.CurrentPlayerID == nil || *res.Session.CurrentPlayerID != "B" {
		t.Fatalf("current player = %v, want B", res.Session.CurrentPlayerID)
	}
	hand, _ := store.GetCards(ctx, id, engine.CardFilter{Position: engine.PositionHand, OwnerID: "A"})
	if len(hand) != engine.HandSize {
		t.Fatalf("departed hand size = %d, want %d", len(hand), engine.HandSize)
	}
}

func TestConcurrentJoinsNeverOverfill(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	svc := service.NewGameService(store, nil)

	res, err := svc.CreateSession(ctx, service.CreateRequest{Name: "Race"}, "host")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	id := res.Session.ID

	const joiners = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := svc.JoinSession(ctx, id, fmt.Sprintf("p%d", n))
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			if !errors.Is(err, engine.ErrInvalidState) {
				t.Errorf("join p%d err = %v, want invalid state", n, err)
			}
		}(i)
	}
	wg.Wait()

	if succeeded != engine.MaxPlayers-1 {
		t.Fatalf("succeeded = %d, want %d", succeeded, engine.MaxPlayers-1)
	}
	roster, _ := store.GetRoster(ctx, id)
	if len(roster) != engine.MaxPlayers {
		t.Fatalf("roster size = %d, want %d", len(roster), engine.MaxPlayers)
	}
}

func TestListSessions(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		createSession(t, store, fmt.Sprintf("s%d", i), "alice", testNow.Add(time.Duration(i)*time.Minute))
	}
	err := store.RunAtomic(ctx, "s1", func(ctx context.Context, v service.View) (*engine.Changeset, error) {
		s, err := v.GetSession(ctx, "s1")
		if err != nil {
			return nil, err
		}
		return engine.End(s, "alice", testNow)
	})
	if err != nil {
		t.Fatalf("end s1: %v", err)
	}

	all, err := store.ListSessions(ctx, engine.SessionFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].ID != "s2" || all[2].ID != "s0" {
		t.Fatalf("list order = %+v, want s2, s1, s0", all)
	}

	finished, _ := store.ListSessions(ctx, engine.SessionFilter{State: engine.StateFinished})
	if len(finished) != 1 || finished[0].ID != "s1" {
		t.Fatalf("finished = %+v, want s1", finished)
	}

	limited, _ := store.ListSessions(ctx, engine.SessionFilter{Limit: 2})
	if len(limited) != 2 {
		t.Fatalf("limited size = %d, want 2", len(limited))
	}
}

func TestPurgeFinished(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	createSession(t, store, "done", "alice", testNow)
	createSession(t, store, "open", "alice", testNow)

	err := store.RunAtomic(ctx, "done", func(ctx context.Context, v service.View) (*engine.Changeset, error) {
		s, err := v.GetSession(ctx, "done")
		if err != nil {
			return nil, err
		}
		return engine.End(s, "alice", testNow)
	})
	if err != nil {
		t.Fatalf("end: %v", err)
	}

	if n, err := store.PurgeFinished(ctx, testNow); err != nil || n != 0 {
		t.Fatalf("purge at cutoff = %d, %v; want 0", n, err)
	}
	n, err := store.PurgeFinished(ctx, testNow.Add(time.Hour))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 1 {
		t.Fatalf("purged = %d, want 1", n)
	}
	if _, err := store.GetSession(ctx, "done"); !errors.Is(err, engine.ErrNotFound) {
		t.Fatalf("get purged session err = %v, want not found", err)
	}
	if _, err := store.GetSession(ctx, "open"); err != nil {
		t.Fatalf("get open session: %v", err)
	}

	var leftover int
	if err := store.sqlDB.QueryRow(`SELECT COUNT(*) FROM cards WHERE session_id = 'done'`).Scan(&leftover); err != nil {
		t.Fatalf("count cards: %v", err)
	}
	if leftover != 0 {
		t.Fatalf("leftover cards = %d, want 0", leftover)
	}
}

func TestUpSection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"up and down", "-- +migrate Up\nCREATE TABLE a (id TEXT);\n-- +migrate Down\nDROP TABLE a;\n", "\nCREATE TABLE a (id TEXT);\n"},
		{"up only", "-- +migrate Up\nSELECT 1;", "\nSELECT 1;"},
		{"no markers", "SELECT 1;", "SELECT 1;"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := upSection(tt.content); got != tt.want {
				t.Fatalf("upSection = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMigrateAppliesPendingFilesOnce(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	extra := fstest.MapFS{
		"002_notes.sql": {Data: []byte("-- +migrate Up\nCREATE TABLE notes (id INTEGER);\n-- +migrate Down\nDROP TABLE notes;\n")},
		"003_empty.sql": {Data: []byte("-- +migrate Up\n-- +migrate Down\n")},
		"README.md":     {Data: []byte("not a migration")},
	}

	for i := 0; i < 2; i++ {
		if err := migrate(ctx, store.sqlDB, extra); err != nil {
			t.Fatalf("migrate run %d: %v", i+1, err)
		}
	}

	var recorded int
	if err := store.sqlDB.QueryRow(`SELECT COUNT(*) FROM schema_migrations WHERE name = '002_notes.sql'`).Scan(&recorded); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if recorded != 1 {
		t.Fatalf("002_notes.sql recorded %d times, want 1", recorded)
	}
	if _, err := store.sqlDB.Exec(`INSERT INTO notes (id) VALUES (1)`); err != nil {
		t.Fatalf("notes table missing: %v", err)
	}
}

func TestMigrateStopsOnCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := OpenContext(ctx, filepath.Join(t.TempDir(), "canceled.sqlite")); err == nil {
		t.Fatal("open with canceled context succeeded")
	}
}

func TestStorageFailureIsNotRetryable(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()

	err := store.RunAtomic(ctx, "s1", func(ctx context.Context, v service.View) (*engine.Changeset, error) {
		cs, err := engine.NewSession("s1", engine.CreateInput{Name: "Table s1", CreatorID: "alice"}, testNow)
		if err != nil {
			return nil, err
		}
		cs.CreateCards[0].Position = engine.Position("table")
		return cs, nil
	})
	if err == nil {
		t.Fatal("check violation committed")
	}
	if code := engine.CodeOf(err); code.Retryable() {
		t.Fatalf("err code = %q, want a non-retryable failure: %v", code, err)
	}
	if _, err := store.GetSession(ctx, "s1"); !errors.Is(err, engine.ErrNotFound) {
		t.Fatalf("get session err = %v, want not found after rollback", err)
	}
}

func TestCommitError(t *testing.T) {
	t.Parallel()

	cause := errors.New("disk I/O error")
	err := commitError("create card", cause)
	if engine.CodeOf(err) != "" {
		t.Fatalf("code = %q, want a plain error", engine.CodeOf(err))
	}
	if !errors.Is(err, cause) {
		t.Fatalf("err = %v, want it to wrap the cause", err)
	}

	err = commitError("begin transaction", context.Canceled)
	if !errors.Is(err, context.Canceled) || engine.CodeOf(err).Retryable() {
		t.Fatalf("err = %v, want a non-retryable canceled error", err)
	}
}
