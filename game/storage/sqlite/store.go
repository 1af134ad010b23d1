package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/wricardo/uno-server/game/engine"
	"github.com/wricardo/uno-server/game/service"
	"github.com/wricardo/uno-server/game/storage/sqlite/migrations"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Store persists sessions, rosters and cards in SQLite.
type Store struct {
	sqlDB *sql.DB
}

var _ service.SessionStore = (*Store)(nil)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite session store and applies embedded migrations.
func Open(path string) (*Store, error) {
	return OpenContext(context.Background(), path)
}

// OpenContext opens the database at path and applies pending migrations
// under ctx.
func OpenContext(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := "file:" + cleanPath +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer connection serializes every atomic unit in this process;
	// immediate transactions serialize against other processes.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := migrate(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// GetSession returns one session row.
func (s *Store) GetSession(ctx context.Context, id string) (engine.Session, error) {
	return view{s.sqlDB}.GetSession(ctx, id)
}

// GetRoster returns the roster ordered by join time.
func (s *Store) GetRoster(ctx context.Context, sessionID string) ([]engine.RosterEntry, error) {
	return view{s.sqlDB}.GetRoster(ctx, sessionID)
}

// GetCards returns the cards matching filter.
func (s *Store) GetCards(ctx context.Context, sessionID string, filter engine.CardFilter) ([]engine.Card, error) {
	return view{s.sqlDB}.GetCards(ctx, sessionID, filter)
}

// ListSessions returns sessions newest first.
func (s *Store) ListSessions(ctx context.Context, filter engine.SessionFilter) ([]engine.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit := -1
	if filter.Limit > 0 {
		limit = filter.Limit
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE (? = '' OR state = ?)
		 ORDER BY created_at DESC, id ASC
		 LIMIT ?`,
		string(filter.State), string(filter.State), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []engine.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read sessions: %w", err)
	}
	return sessions, nil
}

// RunAtomic runs fn inside one immediate transaction. Reads made through
// the view see the transaction, and the changeset commits with them or not
// at all.
func (s *Store) RunAtomic(ctx context.Context, sessionID string, fn service.AtomicFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return commitError("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	cs, err := fn(ctx, view{tx})
	if err != nil {
		return err
	}
	if cs.Empty() {
		return nil
	}

	if err := applyChangeset(ctx, tx, sessionID, cs); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return commitError("commit transaction", err)
	}
	return nil
}

func applyChangeset(ctx context.Context, tx *sql.Tx, sessionID string, cs *engine.Changeset) error {
	if cs.CreateSession {
		if cs.Session == nil {
			return engine.Errorf(engine.CodeInvariant, "create without a session row")
		}
		if err := insertSession(ctx, tx, *cs.Session); err != nil {
			return err
		}
	} else {
		if _, err := (view{tx}).GetSession(ctx, sessionID); err != nil {
			return err
		}
		if cs.Session != nil {
			if err := updateSession(ctx, tx, *cs.Session); err != nil {
				return err
			}
		}
	}

	for _, playerID := range cs.RemovePlayers {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM session_players WHERE session_id = ? AND player_id = ?`, sessionID, playerID)
		if err := expectOneRow(res, err, "remove player "+playerID); err != nil {
			return err
		}
	}
	for _, e := range cs.UpdateEntries {
		res, err := tx.ExecContext(ctx,
			`UPDATE session_players SET score = ?, ready = ?, joined_at = ?, seq = ?
			 WHERE session_id = ? AND player_id = ?`,
			e.Score, e.Ready, toMillis(e.JoinedAt), e.Seq, sessionID, e.PlayerID)
		if err := expectOneRow(res, err, "update player "+e.PlayerID); err != nil {
			return err
		}
	}
	for _, e := range cs.AddEntries {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO session_players (session_id, player_id, score, ready, joined_at, seq)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			sessionID, e.PlayerID, e.Score, e.Ready, toMillis(e.JoinedAt), e.Seq)
		if err != nil {
			if isUniqueViolation(err) {
				return engine.ErrAlreadyMember
			}
			return commitError("add player", err)
		}
	}

	if len(cs.CreateCards) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO cards (session_id, id, type, value, color, position, owner_id, card_order)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return commitError("prepare card insert", err)
		}
		defer stmt.Close()
		for _, c := range cs.CreateCards {
			if _, err := stmt.ExecContext(ctx, sessionID, c.ID, string(c.Type), c.Value,
				string(c.Color), string(c.Position), c.OwnerID, c.Order); err != nil {
				if isUniqueViolation(err) {
					return engine.Errorf(engine.CodeInvariant, "card %d created twice", c.ID)
				}
				return commitError("create card", err)
			}
		}
	}

	if len(cs.UpdateCards) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`UPDATE cards SET type = ?, value = ?, color = ?, position = ?, owner_id = ?, card_order = ?
			 WHERE session_id = ? AND id = ?`)
		if err != nil {
			return commitError("prepare card update", err)
		}
		defer stmt.Close()
		for _, c := range cs.UpdateCards {
			res, err := stmt.ExecContext(ctx, string(c.Type), c.Value, string(c.Color),
				string(c.Position), c.OwnerID, c.Order, sessionID, c.ID)
			if err := expectOneRow(res, err, fmt.Sprintf("update card %d", c.ID)); err != nil {
				return err
			}
		}
	}
	return nil
}

func insertSession(ctx context.Context, tx *sql.Tx, sess engine.Session) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (id, name, rules, state, creator_id, current_player_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Name, sess.Rules, string(sess.State), sess.CreatorID,
		nullString(sess.CurrentPlayerID), toMillis(sess.CreatedAt), toMillis(sess.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return engine.Errorf(engine.CodeConflict, "session id %s already in use", sess.ID)
		}
		return commitError("create session", err)
	}
	return nil
}

func updateSession(ctx context.Context, tx *sql.Tx, sess engine.Session) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE sessions SET name = ?, rules = ?, state = ?, creator_id = ?, current_player_id = ?, updated_at = ?
		 WHERE id = ?`,
		sess.Name, sess.Rules, string(sess.State), sess.CreatorID,
		nullString(sess.CurrentPlayerID), toMillis(sess.UpdatedAt), sess.ID)
	return expectOneRow(res, err, "update session "+sess.ID)
}

// expectOneRow turns a write that touched nothing into an invariant error.
func expectOneRow(res sql.Result, err error, what string) error {
	if err != nil {
		return commitError(what, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return commitError(what, err)
	}
	if n != 1 {
		return engine.Errorf(engine.CodeInvariant, "%s: %d rows affected", what, n)
	}
	return nil
}

// PurgeFinished deletes finished sessions last updated before olderThan.
func (s *Store) PurgeFinished(ctx context.Context, olderThan time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, commitError("begin purge", err)
	}
	defer func() { _ = tx.Rollback() }()

	cutoff := toMillis(olderThan)
	const match = `SELECT id FROM sessions WHERE state = 'finished' AND updated_at < ?`
	if _, err := tx.ExecContext(ctx, `DELETE FROM cards WHERE session_id IN (`+match+`)`, cutoff); err != nil {
		return 0, fmt.Errorf("purge cards: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM session_players WHERE session_id IN (`+match+`)`, cutoff); err != nil {
		return 0, fmt.Errorf("purge players: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE state = 'finished' AND updated_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, commitError("commit purge", err)
	}
	return int(n), nil
}

// view answers reads against either the database or an open transaction.
type view struct {
	q querier
}

const sessionColumns = `id, name, rules, state, creator_id, current_player_id, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (engine.Session, error) {
	var (
		sess      engine.Session
		state     string
		current   sql.NullString
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(&sess.ID, &sess.Name, &sess.Rules, &state, &sess.CreatorID, &current, &createdAt, &updatedAt); err != nil {
		return engine.Session{}, err
	}
	sess.State = engine.State(state)
	sess.CurrentPlayerID = current.String
	sess.CreatedAt = fromMillis(createdAt)
	sess.UpdatedAt = fromMillis(updatedAt)
	return sess, nil
}

func (v view) GetSession(ctx context.Context, id string) (engine.Session, error) {
	if err := ctx.Err(); err != nil {
		return engine.Session{}, err
	}
	row := v.q.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.Session{}, engine.ErrNotFound
	}
	if err != nil {
		return engine.Session{}, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

func (v view) requireSession(ctx context.Context, id string) error {
	var found int
	err := v.q.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, id).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check session: %w", err)
	}
	return nil
}

func (v view) GetRoster(ctx context.Context, sessionID string) ([]engine.RosterEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := v.requireSession(ctx, sessionID); err != nil {
		return nil, err
	}
	rows, err := v.q.QueryContext(ctx,
		`SELECT player_id, score, ready, joined_at, seq FROM session_players
		 WHERE session_id = ?
		 ORDER BY joined_at ASC, seq ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get roster: %w", err)
	}
	defer rows.Close()

	var roster []engine.RosterEntry
	for rows.Next() {
		e := engine.RosterEntry{SessionID: sessionID}
		var joinedAt int64
		if err := rows.Scan(&e.PlayerID, &e.Score, &e.Ready, &joinedAt, &e.Seq); err != nil {
			return nil, fmt.Errorf("scan roster entry: %w", err)
		}
		e.JoinedAt = fromMillis(joinedAt)
		roster = append(roster, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read roster: %w", err)
	}
	return roster, nil
}

func (v view) GetCards(ctx context.Context, sessionID string, filter engine.CardFilter) ([]engine.Card, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := v.requireSession(ctx, sessionID); err != nil {
		return nil, err
	}
	rows, err := v.q.QueryContext(ctx,
		`SELECT id, type, value, color, position, owner_id, card_order FROM cards
		 WHERE session_id = ?
		   AND (? = '' OR position = ?)
		   AND (? = '' OR owner_id = ?)
		 ORDER BY id ASC`,
		sessionID,
		string(filter.Position), string(filter.Position),
		filter.OwnerID, filter.OwnerID,
	)
	if err != nil {
		return nil, fmt.Errorf("get cards: %w", err)
	}
	defer rows.Close()

	var cards []engine.Card
	for rows.Next() {
		c := engine.Card{SessionID: sessionID}
		var typ, color, position string
		if err := rows.Scan(&c.ID, &typ, &c.Value, &color, &position, &c.OwnerID, &c.Order); err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		c.Type = engine.CardType(typ)
		c.Color = engine.Color(color)
		c.Position = engine.Position(position)
		cards = append(cards, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read cards: %w", err)
	}
	return cards, nil
}

func nullString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

// commitError reports a write that lost to a concurrent writer as a
// retryable conflict. Anything else is a plain storage failure.
func commitError(what string, err error) error {
	if isBusyError(err) {
		return engine.Wrap(engine.CodeConflict, err, what+": database busy")
	}
	return fmt.Errorf("%s: %w", what, err)
}

func isBusyError(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3lib.SQLITE_BUSY || code == sqlite3lib.SQLITE_LOCKED
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
