package arena

import (
	"context"
	"fmt"

	"rankmine/pkg/domain"
)

// UpsertEntry merges a mutation into the cell for (roundID, contestantID) and
// queues the result with the write-behind scheduler. The mutator sees the
// current entry, so untouched fields (note, link, asset) survive a score-only
// update and vice versa.
func (s *Service) UpsertEntry(ctx context.Context, roundID, contestantID string, mutate func(*domain.Entry)) (domain.Entry, error) {
	start := s.nowFn()
	e, err := s.upsertEntry(ctx, roundID, contestantID, mutate)
	s.observe(ctx, "upsert_entry", start, err)
	return e, err
}

func (s *Service) upsertEntry(_ context.Context, roundID, contestantID string, mutate func(*domain.Entry)) (domain.Entry, error) {
	if mutate == nil {
		return domain.Entry{}, fmt.Errorf("entry mutator required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.requireArenaLocked()
	if err != nil {
		return domain.Entry{}, err
	}
	if !st.hasRound(roundID) {
		return domain.Entry{}, domain.ErrNotFound{Entity: domain.EntityRound, ID: roundID}
	}
	if !st.hasContestant(contestantID) {
		return domain.Entry{}, domain.ErrNotFound{Entity: domain.EntityContestant, ID: contestantID}
	}
	now := s.nowFn()
	key, err := domain.EncodeEntryKey(st.competition.ID, roundID, contestantID)
	if err != nil {
		return domain.Entry{}, err
	}
	entry, ok := st.entries[key]
	if !ok {
		entry, err = domain.EmptyEntry(st.competition.ID, roundID, contestantID, now)
		if err != nil {
			return domain.Entry{}, err
		}
	}
	mutate(&entry)
	// Identity fields are not for the mutator to change.
	entry.Key = key
	entry.CompetitionID = st.competition.ID
	entry.RoundID = roundID
	entry.ContestantID = contestantID
	entry.UpdatedAt = now

	if entry.Score != nil {
		clamped := st.competition.Scoring.Clamp(*entry.Score)
		entry.Score = &clamped
	}

	st.entries[key] = entry
	st.competition.UpdatedAt = now
	if err := s.sched.Schedule(entry); err != nil {
		return domain.Entry{}, err
	}
	return entry, nil
}

// SetScore records a score for a cell; a nil score clears it back to
// unscored.
func (s *Service) SetScore(ctx context.Context, roundID, contestantID string, score *float64) (domain.Entry, error) {
	return s.UpsertEntry(ctx, roundID, contestantID, func(e *domain.Entry) {
		if score == nil {
			e.Score = nil
			return
		}
		v := *score
		e.Score = &v
	})
}

// SetNote records free-form text on a cell.
func (s *Service) SetNote(ctx context.Context, roundID, contestantID, note string) (domain.Entry, error) {
	return s.UpsertEntry(ctx, roundID, contestantID, func(e *domain.Entry) {
		e.Note = note
	})
}

// SetLink records a reference URL on a cell.
func (s *Service) SetLink(ctx context.Context, roundID, contestantID, link string) (domain.Entry, error) {
	return s.UpsertEntry(ctx, roundID, contestantID, func(e *domain.Entry) {
		e.Link = link
	})
}

func (st *arenaState) hasRound(id string) bool {
	for _, r := range st.rounds {
		if r.ID == id {
			return true
		}
	}
	return false
}

func (st *arenaState) hasContestant(id string) bool {
	for _, c := range st.contestants {
		if c.ID == id {
			return true
		}
	}
	return false
}
