// Package memory provides an in-memory implementation of the persistence
// gateway used for tests and ephemeral arenas, and as the transactional core
// of the snapshotting Postgres driver.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"rankmine/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.PersistentStore = (*Store)(nil)

type state struct {
	competitions map[string]domain.Competition
	contestants  map[string]domain.Contestant
	rounds       map[string]domain.Round
	entries      map[string]domain.Entry
	assetMeta    map[string]domain.AssetMeta
	templates    map[string]domain.Template
}

func newState() state {
	return state{
		competitions: make(map[string]domain.Competition),
		contestants:  make(map[string]domain.Contestant),
		rounds:       make(map[string]domain.Round),
		entries:      make(map[string]domain.Entry),
		assetMeta:    make(map[string]domain.AssetMeta),
		templates:    make(map[string]domain.Template),
	}
}

func (s state) clone() state {
	cloned := newState()
	for k, v := range s.competitions {
		cloned.competitions[k] = v
	}
	for k, v := range s.contestants {
		cloned.contestants[k] = cloneContestant(v)
	}
	for k, v := range s.rounds {
		cloned.rounds[k] = v
	}
	for k, v := range s.entries {
		cloned.entries[k] = cloneEntry(v)
	}
	for k, v := range s.assetMeta {
		cloned.assetMeta[k] = v
	}
	for k, v := range s.templates {
		cloned.templates[k] = cloneTemplate(v)
	}
	return cloned
}

func cloneContestant(c domain.Contestant) domain.Contestant {
	cp := c
	if c.OrderIndex != nil {
		idx := *c.OrderIndex
		cp.OrderIndex = &idx
	}
	return cp
}

func cloneEntry(e domain.Entry) domain.Entry {
	cp := e
	if e.Score != nil {
		score := *e.Score
		cp.Score = &score
	}
	return cp
}

func cloneTemplate(t domain.Template) domain.Template {
	cp := t
	cp.Contestants = append([]string(nil), t.Contestants...)
	cp.Rounds = append([]domain.TemplateRound(nil), t.Rounds...)
	return cp
}

// Snapshot captures a point-in-time clone of the store state. Snapshotting
// drivers serialize it per bucket.
type Snapshot struct {
	Competitions map[string]domain.Competition `json:"competitions"`
	Contestants  map[string]domain.Contestant  `json:"contestants"`
	Rounds       map[string]domain.Round       `json:"rounds"`
	Entries      map[string]domain.Entry       `json:"entries"`
	AssetMeta    map[string]domain.AssetMeta   `json:"assetMeta"`
	Templates    map[string]domain.Template    `json:"templates"`
}

func snapshotFromState(s state) Snapshot {
	snap := Snapshot{
		Competitions: make(map[string]domain.Competition, len(s.competitions)),
		Contestants:  make(map[string]domain.Contestant, len(s.contestants)),
		Rounds:       make(map[string]domain.Round, len(s.rounds)),
		Entries:      make(map[string]domain.Entry, len(s.entries)),
		AssetMeta:    make(map[string]domain.AssetMeta, len(s.assetMeta)),
		Templates:    make(map[string]domain.Template, len(s.templates)),
	}
	for k, v := range s.competitions {
		snap.Competitions[k] = v
	}
	for k, v := range s.contestants {
		snap.Contestants[k] = cloneContestant(v)
	}
	for k, v := range s.rounds {
		snap.Rounds[k] = v
	}
	for k, v := range s.entries {
		snap.Entries[k] = cloneEntry(v)
	}
	for k, v := range s.assetMeta {
		snap.AssetMeta[k] = v
	}
	for k, v := range s.templates {
		snap.Templates[k] = cloneTemplate(v)
	}
	return snap
}

// migrateSnapshot normalizes snapshots written by older versions: nil buckets
// become empty, zero-valued scoring configs hydrate to the defaults, and
// children orphaned by a missing owner are dropped.
func migrateSnapshot(snap Snapshot) Snapshot {
	if snap.Competitions == nil {
		snap.Competitions = map[string]domain.Competition{}
	}
	if snap.Contestants == nil {
		snap.Contestants = map[string]domain.Contestant{}
	}
	if snap.Rounds == nil {
		snap.Rounds = map[string]domain.Round{}
	}
	if snap.Entries == nil {
		snap.Entries = map[string]domain.Entry{}
	}
	if snap.AssetMeta == nil {
		snap.AssetMeta = map[string]domain.AssetMeta{}
	}
	if snap.Templates == nil {
		snap.Templates = map[string]domain.Template{}
	}

	for id, comp := range snap.Competitions {
		if (comp.Scoring == domain.ScoringConfig{}) {
			comp.Scoring = domain.DefaultScoring()
		}
		if comp.UI == (domain.UIPreferences{}) {
			comp.UI = domain.DefaultUIPreferences()
		}
		snap.Competitions[id] = comp
	}

	competitionExists := func(id string) bool {
		_, ok := snap.Competitions[id]
		return ok
	}
	for id, c := range snap.Contestants {
		if !competitionExists(c.CompetitionID) {
			delete(snap.Contestants, id)
		}
	}
	for id, r := range snap.Rounds {
		if !competitionExists(r.CompetitionID) {
			delete(snap.Rounds, id)
		}
	}
	for key, e := range snap.Entries {
		if !competitionExists(e.CompetitionID) {
			delete(snap.Entries, key)
		}
	}
	for id, m := range snap.AssetMeta {
		if !competitionExists(m.CompetitionID) {
			delete(snap.AssetMeta, id)
		}
	}
	return snap
}

func stateFromSnapshot(snap Snapshot) state {
	st := newState()
	for k, v := range snap.Competitions {
		st.competitions[k] = v
	}
	for k, v := range snap.Contestants {
		st.contestants[k] = cloneContestant(v)
	}
	for k, v := range snap.Rounds {
		st.rounds[k] = v
	}
	for k, v := range snap.Entries {
		st.entries[k] = cloneEntry(v)
	}
	for k, v := range snap.AssetMeta {
		st.assetMeta[k] = v
	}
	for k, v := range snap.Templates {
		st.templates[k] = cloneTemplate(v)
	}
	return st
}

// Store provides an in-memory transactional gateway over the six collections.
type Store struct {
	mu    sync.RWMutex
	state state
	nowFn func() time.Time
}

// NewStore constructs an empty in-memory store.
func NewStore() *Store {
	return &Store{
		state: newState(),
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc replaces the store's time provider; tests use it for
// deterministic touch timestamps.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.nowFn = fn
	}
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = stateFromSnapshot(migrateSnapshot(snap))
}

// transaction mutates a working clone of the store state; the clone replaces
// the live state only when the transactional fn returns nil.
type transaction struct {
	state state
	now   time.Time
}

var _ domain.Transaction = (*transaction)(nil)

// RunInTransaction executes fn against a transactional copy of the store
// state. Any error rolls the whole mutation set back.
func (s *Store) RunInTransaction(_ context.Context, fn func(domain.Transaction) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{state: s.state.clone(), now: s.nowFn()}
	if err := fn(tx); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

func (tx *transaction) PutCompetition(c domain.Competition) error {
	tx.state.competitions[c.ID] = c
	return nil
}

func (tx *transaction) DeleteCompetition(id string) error {
	delete(tx.state.competitions, id)
	for key, c := range tx.state.contestants {
		if c.CompetitionID == id {
			delete(tx.state.contestants, key)
		}
	}
	for key, r := range tx.state.rounds {
		if r.CompetitionID == id {
			delete(tx.state.rounds, key)
		}
	}
	for key, e := range tx.state.entries {
		if e.CompetitionID == id {
			delete(tx.state.entries, key)
		}
	}
	for key, m := range tx.state.assetMeta {
		if m.CompetitionID == id {
			delete(tx.state.assetMeta, key)
		}
	}
	return nil
}

func (tx *transaction) TouchCompetition(id string, at time.Time) error {
	comp, ok := tx.state.competitions[id]
	if !ok {
		return nil
	}
	comp.UpdatedAt = at
	tx.state.competitions[id] = comp
	return nil
}

func (tx *transaction) PutContestant(c domain.Contestant) error {
	tx.state.contestants[c.ID] = cloneContestant(c)
	return nil
}

func (tx *transaction) DeleteContestant(id string) error {
	c, ok := tx.state.contestants[id]
	if !ok {
		return nil
	}
	delete(tx.state.contestants, id)
	for key, e := range tx.state.entries {
		if e.ContestantID == id {
			delete(tx.state.entries, key)
		}
	}
	return tx.TouchCompetition(c.CompetitionID, tx.now)
}

func (tx *transaction) PutRound(r domain.Round) error {
	tx.state.rounds[r.ID] = r
	return nil
}

func (tx *transaction) DeleteRound(id string) error {
	r, ok := tx.state.rounds[id]
	if !ok {
		return nil
	}
	delete(tx.state.rounds, id)
	for key, e := range tx.state.entries {
		if e.RoundID == id {
			delete(tx.state.entries, key)
		}
	}
	return tx.TouchCompetition(r.CompetitionID, tx.now)
}

func (tx *transaction) PutEntry(e domain.Entry) error {
	tx.state.entries[e.Key] = cloneEntry(e)
	return nil
}

func (tx *transaction) PutEntries(entries []domain.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	for _, e := range entries {
		tx.state.entries[e.Key] = cloneEntry(e)
	}
	return tx.TouchCompetition(entries[len(entries)-1].CompetitionID, tx.now)
}

func (tx *transaction) DeleteEntry(key string) error {
	delete(tx.state.entries, key)
	return nil
}

func (tx *transaction) PutAssetMeta(m domain.AssetMeta) error {
	tx.state.assetMeta[m.ID] = m
	return nil
}

func (tx *transaction) DeleteAssetMeta(id string) error {
	delete(tx.state.assetMeta, id)
	return nil
}

func (tx *transaction) PutTemplate(t domain.Template) error {
	tx.state.templates[t.ID] = cloneTemplate(t)
	return nil
}

func (tx *transaction) DeleteTemplate(id string) error {
	delete(tx.state.templates, id)
	return nil
}

func (s *Store) GetCompetition(_ context.Context, id string) (domain.Competition, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.state.competitions[id]
	return c, ok, nil
}

func (s *Store) ListCompetitions(_ context.Context) ([]domain.Competition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Competition, 0, len(s.state.competitions))
	for _, c := range s.state.competitions {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) ListContestants(_ context.Context, competitionID string) ([]domain.Contestant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Contestant
	for _, c := range s.state.contestants {
		if c.CompetitionID == competitionID {
			out = append(out, cloneContestant(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return lessContestant(out[i], out[j])
	})
	return out, nil
}

// lessContestant orders by order index when both carry one; legacy records
// without an index sort after indexed ones by creation time.
func lessContestant(a, b domain.Contestant) bool {
	switch {
	case a.OrderIndex != nil && b.OrderIndex != nil:
		if *a.OrderIndex != *b.OrderIndex {
			return *a.OrderIndex < *b.OrderIndex
		}
	case a.OrderIndex != nil:
		return true
	case b.OrderIndex != nil:
		return false
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func (s *Store) ListRounds(_ context.Context, competitionID string) ([]domain.Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Round
	for _, r := range s.state.rounds {
		if r.CompetitionID == competitionID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OrderIndex != out[j].OrderIndex {
			return out[i].OrderIndex < out[j].OrderIndex
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) ListEntries(_ context.Context, competitionID string) ([]domain.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Entry
	for _, e := range s.state.entries {
		if e.CompetitionID == competitionID {
			out = append(out, cloneEntry(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *Store) GetAssetMeta(_ context.Context, id string) (domain.AssetMeta, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.state.assetMeta[id]
	return m, ok, nil
}

func (s *Store) ListAssetMeta(_ context.Context, competitionID string) ([]domain.AssetMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.AssetMeta
	for _, m := range s.state.assetMeta {
		if m.CompetitionID == competitionID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) GetTemplate(_ context.Context, id string) (domain.Template, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.state.templates[id]
	if !ok {
		return domain.Template{}, false, nil
	}
	return cloneTemplate(t), true, nil
}

func (s *Store) ListTemplates(_ context.Context) ([]domain.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Template, 0, len(s.state.templates))
	for _, t := range s.state.templates {
		out = append(out, cloneTemplate(t))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Close releases nothing for the in-memory store.
func (s *Store) Close() error { return nil }
