package arena

import (
	"context"
	"fmt"

	"rankmine/pkg/domain"
)

// View is a copy of the loaded arena handed to callers. Entries cover the
// full contestant x round grid; cells never written are synthesized empty.
type View struct {
	Competition domain.Competition
	Contestants []domain.Contestant
	Rounds      []domain.Round
	Entries     []domain.Entry
}

// LoadArena reads one competition's full working set into memory. Contestants
// persisted before ordering existed get an order index assigned and written
// back. Any previously loaded arena is flushed and replaced.
func (s *Service) LoadArena(ctx context.Context, competitionID string) (View, error) {
	start := s.nowFn()
	view, err := s.loadArena(ctx, competitionID)
	s.observe(ctx, "load_arena", start, err)
	return view, err
}

func (s *Service) loadArena(ctx context.Context, competitionID string) (View, error) {
	if err := s.sched.Flush(ctx); err != nil {
		return View{}, err
	}
	comp, ok, err := s.store.GetCompetition(ctx, competitionID)
	if err != nil {
		return View{}, err
	}
	if !ok {
		return View{}, domain.ErrNotFound{Entity: domain.EntityCompetition, ID: competitionID}
	}
	contestants, err := s.store.ListContestants(ctx, competitionID)
	if err != nil {
		return View{}, err
	}
	rounds, err := s.store.ListRounds(ctx, competitionID)
	if err != nil {
		return View{}, err
	}
	stored, err := s.store.ListEntries(ctx, competitionID)
	if err != nil {
		return View{}, err
	}

	// Migration on read: stamp sequential indexes onto any legacy
	// contestants that have none. ListContestants already sorted them last.
	var migrated []domain.Contestant
	for i := range contestants {
		if contestants[i].OrderIndex == nil {
			idx := i
			contestants[i].OrderIndex = &idx
			migrated = append(migrated, contestants[i])
		}
	}
	if len(migrated) > 0 {
		err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			for _, c := range migrated {
				if err := tx.PutContestant(c); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return View{}, err
		}
		s.log.Info("assigned order indexes to legacy contestants", "competition", competitionID, "count", len(migrated))
	}

	entries := make(map[string]domain.Entry, len(stored))
	for _, e := range stored {
		entries[e.Key] = e
	}
	now := s.nowFn()
	for _, r := range rounds {
		for _, c := range contestants {
			e, err := domain.EmptyEntry(competitionID, r.ID, c.ID, now)
			if err != nil {
				return View{}, err
			}
			if _, exists := entries[e.Key]; !exists {
				entries[e.Key] = e
			}
		}
	}

	st := &arenaState{
		competition: comp,
		contestants: contestants,
		rounds:      rounds,
		entries:     entries,
	}
	s.mu.Lock()
	s.arena = st
	s.mu.Unlock()
	return s.viewLocked(st), nil
}

// UnloadArena flushes pending writes and drops the working set.
func (s *Service) UnloadArena(ctx context.Context) error {
	if err := s.sched.Flush(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.arena = nil
	s.mu.Unlock()
	return nil
}

// Arena returns a copy of the loaded working set.
func (s *Service) Arena() (View, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.arena == nil {
		return View{}, fmt.Errorf("no arena loaded")
	}
	return s.viewLocked(s.arena), nil
}

// Standings ranks the loaded arena's contestants.
func (s *Service) Standings() ([]domain.StandingRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.arena == nil {
		return nil, fmt.Errorf("no arena loaded")
	}
	entries := make([]domain.Entry, 0, len(s.arena.entries))
	for _, e := range s.arena.entries {
		entries = append(entries, e)
	}
	return domain.ComputeStandings(s.arena.contestants, entries, len(s.arena.rounds)), nil
}

func (s *Service) viewLocked(st *arenaState) View {
	view := View{
		Competition: st.competition,
		Contestants: append([]domain.Contestant(nil), st.contestants...),
		Rounds:      append([]domain.Round(nil), st.rounds...),
	}
	for _, r := range st.rounds {
		for _, c := range st.contestants {
			key, err := domain.EncodeEntryKey(st.competition.ID, r.ID, c.ID)
			if err != nil {
				continue
			}
			if e, ok := st.entries[key]; ok {
				view.Entries = append(view.Entries, e)
			}
		}
	}
	return view
}

// requireArenaLocked returns the working set or an error when none is
// loaded. Callers must hold s.mu.
func (s *Service) requireArenaLocked() (*arenaState, error) {
	if s.arena == nil {
		return nil, fmt.Errorf("no arena loaded")
	}
	return s.arena, nil
}

// AddContestant appends a contestant to the loaded arena and synthesizes an
// empty entry for every existing round in the same transaction.
func (s *Service) AddContestant(ctx context.Context, name, accentColor string) (domain.Contestant, error) {
	start := s.nowFn()
	c, err := s.addContestant(ctx, name, accentColor)
	s.observe(ctx, "add_contestant", start, err)
	return c, err
}

func (s *Service) addContestant(ctx context.Context, name, accentColor string) (domain.Contestant, error) {
	if name == "" {
		return domain.Contestant{}, fmt.Errorf("contestant name required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.requireArenaLocked()
	if err != nil {
		return domain.Contestant{}, err
	}
	now := s.nowFn()
	idx := len(st.contestants)
	contestant := domain.Contestant{
		ID:            s.idFn(),
		CompetitionID: st.competition.ID,
		Name:          name,
		AccentColor:   accentColor,
		OrderIndex:    &idx,
		CreatedAt:     now,
	}
	fresh := make([]domain.Entry, 0, len(st.rounds))
	for _, r := range st.rounds {
		e, err := domain.EmptyEntry(st.competition.ID, r.ID, contestant.ID, now)
		if err != nil {
			return domain.Contestant{}, err
		}
		fresh = append(fresh, e)
	}
	err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if err := tx.PutContestant(contestant); err != nil {
			return err
		}
		if len(fresh) > 0 {
			return tx.PutEntries(fresh)
		}
		return tx.TouchCompetition(st.competition.ID, now)
	})
	if err != nil {
		return domain.Contestant{}, err
	}
	st.contestants = append(st.contestants, contestant)
	for _, e := range fresh {
		st.entries[e.Key] = e
	}
	st.competition.UpdatedAt = now
	return contestant, nil
}

// UpdateContestant renames a contestant or changes its accent color.
func (s *Service) UpdateContestant(ctx context.Context, id, name, accentColor string) (domain.Contestant, error) {
	start := s.nowFn()
	c, err := s.updateContestant(ctx, id, name, accentColor)
	s.observe(ctx, "update_contestant", start, err)
	return c, err
}

func (s *Service) updateContestant(ctx context.Context, id, name, accentColor string) (domain.Contestant, error) {
	if name == "" {
		return domain.Contestant{}, fmt.Errorf("contestant name required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.requireArenaLocked()
	if err != nil {
		return domain.Contestant{}, err
	}
	pos := -1
	for i := range st.contestants {
		if st.contestants[i].ID == id {
			pos = i
			break
		}
	}
	if pos < 0 {
		return domain.Contestant{}, domain.ErrNotFound{Entity: domain.EntityContestant, ID: id}
	}
	updated := st.contestants[pos]
	updated.Name = name
	updated.AccentColor = accentColor
	now := s.nowFn()
	err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if err := tx.PutContestant(updated); err != nil {
			return err
		}
		return tx.TouchCompetition(st.competition.ID, now)
	})
	if err != nil {
		return domain.Contestant{}, err
	}
	st.contestants[pos] = updated
	st.competition.UpdatedAt = now
	return updated, nil
}

// RemoveContestant deletes a contestant, its entries, and reindexes the
// remaining contestants.
func (s *Service) RemoveContestant(ctx context.Context, id string) error {
	start := s.nowFn()
	err := s.removeContestant(ctx, id)
	s.observe(ctx, "remove_contestant", start, err)
	return err
}

func (s *Service) removeContestant(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.requireArenaLocked()
	if err != nil {
		return err
	}
	pos := -1
	for i := range st.contestants {
		if st.contestants[i].ID == id {
			pos = i
			break
		}
	}
	if pos < 0 {
		return domain.ErrNotFound{Entity: domain.EntityContestant, ID: id}
	}
	var doomed []string
	for key, e := range st.entries {
		if e.ContestantID == id {
			doomed = append(doomed, key)
		}
	}
	s.sched.Drop(doomed...)

	remaining := append(append([]domain.Contestant(nil), st.contestants[:pos]...), st.contestants[pos+1:]...)
	for i := range remaining {
		idx := i
		remaining[i].OrderIndex = &idx
	}
	err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if err := tx.DeleteContestant(id); err != nil {
			return err
		}
		for _, c := range remaining {
			if err := tx.PutContestant(c); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	st.contestants = remaining
	for _, key := range doomed {
		delete(st.entries, key)
	}
	st.competition.UpdatedAt = s.nowFn()
	return nil
}

// ReorderContestants persists a new contestant ordering. The id list must be
// a permutation of the current contestants.
func (s *Service) ReorderContestants(ctx context.Context, orderedIDs []string) error {
	start := s.nowFn()
	err := s.reorderContestants(ctx, orderedIDs)
	s.observe(ctx, "reorder_contestants", start, err)
	return err
}

func (s *Service) reorderContestants(ctx context.Context, orderedIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.requireArenaLocked()
	if err != nil {
		return err
	}
	byID := make(map[string]domain.Contestant, len(st.contestants))
	for _, c := range st.contestants {
		byID[c.ID] = c
	}
	if len(orderedIDs) != len(byID) {
		return fmt.Errorf("reorder needs all %d contestants, got %d", len(byID), len(orderedIDs))
	}
	reordered := make([]domain.Contestant, 0, len(orderedIDs))
	for i, id := range orderedIDs {
		c, ok := byID[id]
		if !ok {
			return domain.ErrNotFound{Entity: domain.EntityContestant, ID: id}
		}
		delete(byID, id)
		idx := i
		c.OrderIndex = &idx
		reordered = append(reordered, c)
	}
	now := s.nowFn()
	err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		for _, c := range reordered {
			if err := tx.PutContestant(c); err != nil {
				return err
			}
		}
		return tx.TouchCompetition(st.competition.ID, now)
	})
	if err != nil {
		return err
	}
	st.contestants = reordered
	st.competition.UpdatedAt = now
	return nil
}

// AddRound appends a round and synthesizes an empty entry for every
// contestant in the same transaction.
func (s *Service) AddRound(ctx context.Context, title string) (domain.Round, error) {
	start := s.nowFn()
	r, err := s.addRound(ctx, title)
	s.observe(ctx, "add_round", start, err)
	return r, err
}

func (s *Service) addRound(ctx context.Context, title string) (domain.Round, error) {
	if title == "" {
		return domain.Round{}, fmt.Errorf("round title required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.requireArenaLocked()
	if err != nil {
		return domain.Round{}, err
	}
	now := s.nowFn()
	round := domain.Round{
		ID:            s.idFn(),
		CompetitionID: st.competition.ID,
		Title:         title,
		OrderIndex:    len(st.rounds),
		CreatedAt:     now,
	}
	fresh := make([]domain.Entry, 0, len(st.contestants))
	for _, c := range st.contestants {
		e, err := domain.EmptyEntry(st.competition.ID, round.ID, c.ID, now)
		if err != nil {
			return domain.Round{}, err
		}
		fresh = append(fresh, e)
	}
	err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if err := tx.PutRound(round); err != nil {
			return err
		}
		if len(fresh) > 0 {
			return tx.PutEntries(fresh)
		}
		return tx.TouchCompetition(st.competition.ID, now)
	})
	if err != nil {
		return domain.Round{}, err
	}
	st.rounds = append(st.rounds, round)
	for _, e := range fresh {
		st.entries[e.Key] = e
	}
	st.competition.UpdatedAt = now
	return round, nil
}

// RenameRound updates a round's title.
func (s *Service) RenameRound(ctx context.Context, id, title string) (domain.Round, error) {
	start := s.nowFn()
	r, err := s.renameRound(ctx, id, title)
	s.observe(ctx, "rename_round", start, err)
	return r, err
}

func (s *Service) renameRound(ctx context.Context, id, title string) (domain.Round, error) {
	if title == "" {
		return domain.Round{}, fmt.Errorf("round title required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.requireArenaLocked()
	if err != nil {
		return domain.Round{}, err
	}
	pos := -1
	for i := range st.rounds {
		if st.rounds[i].ID == id {
			pos = i
			break
		}
	}
	if pos < 0 {
		return domain.Round{}, domain.ErrNotFound{Entity: domain.EntityRound, ID: id}
	}
	updated := st.rounds[pos]
	updated.Title = title
	now := s.nowFn()
	err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if err := tx.PutRound(updated); err != nil {
			return err
		}
		return tx.TouchCompetition(st.competition.ID, now)
	})
	if err != nil {
		return domain.Round{}, err
	}
	st.rounds[pos] = updated
	st.competition.UpdatedAt = now
	return updated, nil
}

// RemoveRound deletes a round, its entries, and reindexes the remaining
// rounds.
func (s *Service) RemoveRound(ctx context.Context, id string) error {
	start := s.nowFn()
	err := s.removeRound(ctx, id)
	s.observe(ctx, "remove_round", start, err)
	return err
}

func (s *Service) removeRound(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.requireArenaLocked()
	if err != nil {
		return err
	}
	pos := -1
	for i := range st.rounds {
		if st.rounds[i].ID == id {
			pos = i
			break
		}
	}
	if pos < 0 {
		return domain.ErrNotFound{Entity: domain.EntityRound, ID: id}
	}
	var doomed []string
	for key, e := range st.entries {
		if e.RoundID == id {
			doomed = append(doomed, key)
		}
	}
	s.sched.Drop(doomed...)

	remaining := append(append([]domain.Round(nil), st.rounds[:pos]...), st.rounds[pos+1:]...)
	for i := range remaining {
		remaining[i].OrderIndex = i
	}
	err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if err := tx.DeleteRound(id); err != nil {
			return err
		}
		for _, r := range remaining {
			if err := tx.PutRound(r); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	st.rounds = remaining
	for _, key := range doomed {
		delete(st.entries, key)
	}
	st.competition.UpdatedAt = s.nowFn()
	return nil
}

// ReorderRounds persists a new round ordering. The id list must be a
// permutation of the current rounds.
func (s *Service) ReorderRounds(ctx context.Context, orderedIDs []string) error {
	start := s.nowFn()
	err := s.reorderRounds(ctx, orderedIDs)
	s.observe(ctx, "reorder_rounds", start, err)
	return err
}

func (s *Service) reorderRounds(ctx context.Context, orderedIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.requireArenaLocked()
	if err != nil {
		return err
	}
	byID := make(map[string]domain.Round, len(st.rounds))
	for _, r := range st.rounds {
		byID[r.ID] = r
	}
	if len(orderedIDs) != len(byID) {
		return fmt.Errorf("reorder needs all %d rounds, got %d", len(byID), len(orderedIDs))
	}
	reordered := make([]domain.Round, 0, len(orderedIDs))
	for i, id := range orderedIDs {
		r, ok := byID[id]
		if !ok {
			return domain.ErrNotFound{Entity: domain.EntityRound, ID: id}
		}
		delete(byID, id)
		r.OrderIndex = i
		reordered = append(reordered, r)
	}
	now := s.nowFn()
	err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		for _, r := range reordered {
			if err := tx.PutRound(r); err != nil {
				return err
			}
		}
		return tx.TouchCompetition(st.competition.ID, now)
	})
	if err != nil {
		return err
	}
	st.rounds = reordered
	st.competition.UpdatedAt = now
	return nil
}
