package session

import (
	"cmp"
	"context"
	"fmt"
	"log"
	"slices"
	"sync"
	"time"

	"github.com/wricardo/uno-server/game/engine"
	"github.com/wricardo/uno-server/game/service"
)

// Record is everything stored for one session.
type Record struct {
	Session engine.Session       `json:"session"`
	Roster  []engine.RosterEntry `json:"roster"`
	Cards   []engine.Card        `json:"cards"`
}

func (r *Record) clone() *Record {
	return &Record{
		Session: r.Session,
		Roster:  slices.Clone(r.Roster),
		Cards:   slices.Clone(r.Cards),
	}
}

// Manager is an in-memory SessionStore. Commands on one session are
// serialized by a per-session mutex; different sessions never contend.
type Manager struct {
	records     map[string]*Record
	locks       map[string]*sessionLock
	persistence SessionPersistence
	mu          sync.RWMutex
}

var _ service.SessionStore = (*Manager)(nil)

// NewManager creates a new in-memory session store
func NewManager() *Manager {
	return &Manager{
		records: make(map[string]*Record),
		locks:   make(map[string]*sessionLock),
	}
}

// NewManagerWithPersistence creates a store that writes every committed
// session through to persistence before publishing it in memory
func NewManagerWithPersistence(persistence SessionPersistence) *Manager {
	m := NewManager()
	m.persistence = persistence
	return m
}

// sessionLock serializes commands on one session. refs counts the callers
// holding or waiting on it; the entry leaves the map when refs drops to 0.
type sessionLock struct {
	sync.Mutex
	refs int
}

// acquire locks id and returns the matching release.
func (m *Manager) acquire(id string) func() {
	m.mu.Lock()
	l, ok := m.locks[id]
	if !ok {
		l = &sessionLock{}
		m.locks[id] = l
	}
	l.refs++
	m.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		m.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, id)
		}
		m.mu.Unlock()
	}
}

func (m *Manager) record(id string) (*Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[id]
	return r, ok
}

// GetSession returns the stored session row
func (m *Manager) GetSession(ctx context.Context, id string) (engine.Session, error) {
	return recordView{m.lookup}.GetSession(ctx, id)
}

// GetRoster returns the roster ordered by join time
func (m *Manager) GetRoster(ctx context.Context, sessionID string) ([]engine.RosterEntry, error) {
	return recordView{m.lookup}.GetRoster(ctx, sessionID)
}

// GetCards returns the cards matching filter
func (m *Manager) GetCards(ctx context.Context, sessionID string, filter engine.CardFilter) ([]engine.Card, error) {
	return recordView{m.lookup}.GetCards(ctx, sessionID, filter)
}

func (m *Manager) lookup(id string) (*Record, bool) {
	return m.record(id)
}

// recordView answers reads from whatever record its lookup returns. Records
// are never mutated in place, so a fetched record is a consistent snapshot.
type recordView struct {
	lookup func(id string) (*Record, bool)
}

func (v recordView) GetSession(ctx context.Context, id string) (engine.Session, error) {
	if err := ctx.Err(); err != nil {
		return engine.Session{}, err
	}
	r, ok := v.lookup(id)
	if !ok {
		return engine.Session{}, engine.ErrNotFound
	}
	return r.Session, nil
}

func (v recordView) GetRoster(ctx context.Context, sessionID string) ([]engine.RosterEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r, ok := v.lookup(sessionID)
	if !ok {
		return nil, engine.ErrNotFound
	}
	roster := slices.Clone(r.Roster)
	engine.SortRoster(roster)
	return roster, nil
}

func (v recordView) GetCards(ctx context.Context, sessionID string, filter engine.CardFilter) ([]engine.Card, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r, ok := v.lookup(sessionID)
	if !ok {
		return nil, engine.ErrNotFound
	}
	var out []engine.Card
	for _, c := range r.Cards {
		if filter.Match(c) {
			out = append(out, c)
		}
	}
	return out, nil
}

// ListSessions returns sessions newest first
func (m *Manager) ListSessions(ctx context.Context, filter engine.SessionFilter) ([]engine.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	result := make([]engine.Session, 0, len(m.records))
	for _, r := range m.records {
		if filter.State != "" && r.Session.State != filter.State {
			continue
		}
		result = append(result, r.Session)
	}
	m.mu.RUnlock()

	slices.SortFunc(result, func(a, b engine.Session) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// RunAtomic holds the session's lock while fn reads and the changeset is
// applied to a copy. The copy is persisted (if configured) and only then
// swapped in, so a failed commit leaves nothing behind.
func (m *Manager) RunAtomic(ctx context.Context, sessionID string, fn service.AtomicFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	release := m.acquire(sessionID)
	defer release()

	current, exists := m.record(sessionID)
	view := recordView{func(id string) (*Record, bool) {
		if id != sessionID {
			return m.record(id)
		}
		return current, exists
	}}

	cs, err := fn(ctx, view)
	if err != nil {
		return err
	}
	if cs.Empty() {
		return nil
	}

	var next *Record
	if exists {
		next = current.clone()
	} else {
		if !cs.CreateSession {
			return engine.ErrNotFound
		}
		next = &Record{}
	}
	if err := apply(next, cs); err != nil {
		return err
	}

	if m.persistence != nil {
		if err := m.persistence.Save(next); err != nil {
			return engine.Wrap(engine.CodeConflict, err, "persist session")
		}
	}

	m.mu.Lock()
	m.records[sessionID] = next
	m.mu.Unlock()
	return nil
}

// apply mutates r in place with every write of cs.
func apply(r *Record, cs *engine.Changeset) error {
	if cs.Session != nil {
		r.Session = *cs.Session
	}

	for _, id := range cs.RemovePlayers {
		i := engine.FindEntry(r.Roster, id)
		if i < 0 {
			return engine.Errorf(engine.CodeInvariant, "remove unknown player %q", id)
		}
		r.Roster = slices.Delete(r.Roster, i, i+1)
	}
	for _, e := range cs.UpdateEntries {
		i := engine.FindEntry(r.Roster, e.PlayerID)
		if i < 0 {
			return engine.Errorf(engine.CodeInvariant, "update unknown player %q", e.PlayerID)
		}
		r.Roster[i] = e
	}
	for _, e := range cs.AddEntries {
		if engine.FindEntry(r.Roster, e.PlayerID) >= 0 {
			return engine.ErrAlreadyMember
		}
		r.Roster = append(r.Roster, e)
	}

	r.Cards = append(r.Cards, cs.CreateCards...)
	if len(cs.UpdateCards) > 0 {
		index := make(map[int]int, len(r.Cards))
		for i, c := range r.Cards {
			index[c.ID] = i
		}
		for _, c := range cs.UpdateCards {
			i, ok := index[c.ID]
			if !ok {
				return engine.Errorf(engine.CodeInvariant, "update unknown card %d", c.ID)
			}
			r.Cards[i] = c
		}
	}
	return nil
}

// PurgeFinished removes finished sessions not updated since olderThan
func (m *Manager) PurgeFinished(ctx context.Context, olderThan time.Time) (int, error) {
	m.mu.RLock()
	var candidates []string
	for id, r := range m.records {
		if r.Session.State == engine.StateFinished && r.Session.UpdatedAt.Before(olderThan) {
			candidates = append(candidates, id)
		}
	}
	m.mu.RUnlock()

	removed := 0
	for _, id := range candidates {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		ok, err := m.purgeOne(id, olderThan)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}

func (m *Manager) purgeOne(id string, olderThan time.Time) (bool, error) {
	release := m.acquire(id)
	defer release()

	// Re-check under the session lock.
	r, ok := m.record(id)
	if !ok || r.Session.State != engine.StateFinished || !r.Session.UpdatedAt.Before(olderThan) {
		return false, nil
	}

	if m.persistence != nil && m.persistence.Exists(id) {
		if err := m.persistence.Delete(id); err != nil {
			return false, fmt.Errorf("failed to delete persisted session: %w", err)
		}
	}

	m.mu.Lock()
	delete(m.records, id)
	m.mu.Unlock()
	return true, nil
}

// Count returns the number of stored sessions
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// LoadPersistedSessions loads all persisted sessions into memory
func (m *Manager) LoadPersistedSessions() error {
	if m.persistence == nil {
		return nil // No persistence configured
	}

	sessionIDs, err := m.persistence.ListAll()
	if err != nil {
		return fmt.Errorf("failed to list persisted sessions: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	loadedCount := 0
	for _, id := range sessionIDs {
		if _, exists := m.records[id]; exists {
			continue
		}

		rec, err := m.persistence.Load(id)
		if err != nil {
			log.Printf("Warning: Failed to load persisted session %s: %v", id, err)
			continue
		}

		m.records[id] = rec
		loadedCount++
	}

	if loadedCount > 0 {
		log.Printf("Loaded %d persisted sessions from storage", loadedCount)
	}

	return nil
}
