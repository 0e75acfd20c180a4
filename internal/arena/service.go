// Package arena is the application service for competitions: it owns the
// loaded working set, debounces entry writes through the flush scheduler, and
// runs every structural change as one storage transaction.
package arena

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"rankmine/internal/blob"
	"rankmine/pkg/domain"
)

// Service coordinates the persistent store, the blob store, and the loaded
// arena. All methods are safe for concurrent use, but the service assumes it
// is the only writer against its store.
type Service struct {
	store   domain.PersistentStore
	blobs   blob.Store
	log     Logger
	metrics MetricsRecorder
	nowFn   func() time.Time
	idFn    func() string
	quiet   time.Duration

	mu    sync.RWMutex
	arena *arenaState
	sched *FlushScheduler
}

// arenaState is the in-memory working set for one loaded competition.
type arenaState struct {
	competition domain.Competition
	contestants []domain.Contestant
	rounds      []domain.Round
	entries     map[string]domain.Entry
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithNowFunc overrides the time source for deterministic tests.
func WithNowFunc(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.nowFn = fn
		}
	}
}

// WithIDFunc overrides record ID minting for deterministic tests.
func WithIDFunc(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.idFn = fn
		}
	}
}

// WithQuietPeriod overrides the write-behind debounce interval.
func WithQuietPeriod(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.quiet = d
		}
	}
}

// New constructs a service over the given stores.
func New(store domain.PersistentStore, blobs blob.Store, opts ...Option) *Service {
	s := &Service{
		store:   store,
		blobs:   blobs,
		log:     noopLogger{},
		metrics: noopMetrics{},
		nowFn:   func() time.Time { return time.Now().UTC() },
		idFn:    uuid.NewString,
		quiet:   DefaultQuietPeriod,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.sched = NewFlushScheduler(store, s.quiet, s.log, s.metrics)
	return s
}

// Store exposes the underlying persistent store.
func (s *Service) Store() domain.PersistentStore { return s.store }

// Blobs exposes the underlying blob store.
func (s *Service) Blobs() blob.Store { return s.blobs }

// Scheduler exposes the write-behind scheduler, mainly for tests.
func (s *Service) Scheduler() *FlushScheduler { return s.sched }

func (s *Service) observe(ctx context.Context, op string, start time.Time, err error) {
	s.metrics.Observe(ctx, op, err == nil, time.Since(start))
}

// CreateCompetition persists a new competition with the given title and
// scoring configuration and returns it.
func (s *Service) CreateCompetition(ctx context.Context, title string, scoring domain.ScoringConfig) (domain.Competition, error) {
	start := s.nowFn()
	comp, err := s.createCompetition(ctx, title, scoring)
	s.observe(ctx, "create_competition", start, err)
	return comp, err
}

func (s *Service) createCompetition(ctx context.Context, title string, scoring domain.ScoringConfig) (domain.Competition, error) {
	if title == "" {
		return domain.Competition{}, fmt.Errorf("competition title required")
	}
	if (scoring == domain.ScoringConfig{}) {
		scoring = domain.DefaultScoring()
	}
	if err := scoring.Validate(); err != nil {
		return domain.Competition{}, err
	}
	now := s.nowFn()
	comp := domain.Competition{
		ID:        s.idFn(),
		Title:     title,
		Scoring:   scoring,
		UI:        domain.DefaultUIPreferences(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.PutCompetition(comp)
	})
	if err != nil {
		return domain.Competition{}, err
	}
	s.log.Info("created competition", "id", comp.ID, "title", comp.Title)
	return comp, nil
}

// ListCompetitions returns all competitions, most recently updated first.
func (s *Service) ListCompetitions(ctx context.Context) ([]domain.Competition, error) {
	return s.store.ListCompetitions(ctx)
}

// RenameCompetition updates a competition's title.
func (s *Service) RenameCompetition(ctx context.Context, id, title string) (domain.Competition, error) {
	start := s.nowFn()
	comp, err := s.mutateCompetition(ctx, id, func(c *domain.Competition) error {
		if title == "" {
			return fmt.Errorf("competition title required")
		}
		c.Title = title
		return nil
	})
	s.observe(ctx, "rename_competition", start, err)
	return comp, err
}

// SetUIPreferences updates a competition's UI preferences.
func (s *Service) SetUIPreferences(ctx context.Context, id string, prefs domain.UIPreferences) (domain.Competition, error) {
	start := s.nowFn()
	comp, err := s.mutateCompetition(ctx, id, func(c *domain.Competition) error {
		if err := prefs.Validate(); err != nil {
			return err
		}
		c.UI = prefs
		return nil
	})
	s.observe(ctx, "set_ui_preferences", start, err)
	return comp, err
}

// mutateCompetition loads, mutates, stamps, and persists one competition,
// keeping the loaded arena header in sync.
func (s *Service) mutateCompetition(ctx context.Context, id string, mutate func(*domain.Competition) error) (domain.Competition, error) {
	comp, ok, err := s.store.GetCompetition(ctx, id)
	if err != nil {
		return domain.Competition{}, err
	}
	if !ok {
		return domain.Competition{}, domain.ErrNotFound{Entity: domain.EntityCompetition, ID: id}
	}
	if err := mutate(&comp); err != nil {
		return domain.Competition{}, err
	}
	comp.UpdatedAt = s.nowFn()
	err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.PutCompetition(comp)
	})
	if err != nil {
		return domain.Competition{}, err
	}
	s.mu.Lock()
	if s.arena != nil && s.arena.competition.ID == id {
		s.arena.competition = comp
	}
	s.mu.Unlock()
	return comp, nil
}

// UpdateScoring changes a competition's scoring configuration and rewrites
// every scored entry into the new range in the same transaction.
func (s *Service) UpdateScoring(ctx context.Context, id string, scoring domain.ScoringConfig) (domain.Competition, error) {
	start := s.nowFn()
	comp, err := s.updateScoring(ctx, id, scoring)
	s.observe(ctx, "update_scoring", start, err)
	return comp, err
}

func (s *Service) updateScoring(ctx context.Context, id string, scoring domain.ScoringConfig) (domain.Competition, error) {
	if err := scoring.Validate(); err != nil {
		return domain.Competition{}, err
	}
	comp, ok, err := s.store.GetCompetition(ctx, id)
	if err != nil {
		return domain.Competition{}, err
	}
	if !ok {
		return domain.Competition{}, domain.ErrNotFound{Entity: domain.EntityCompetition, ID: id}
	}
	// Pending writes must land before entries are re-read for remapping.
	if err := s.sched.Flush(ctx); err != nil {
		return domain.Competition{}, err
	}
	entries, err := s.store.ListEntries(ctx, id)
	if err != nil {
		return domain.Competition{}, err
	}
	now := s.nowFn()
	remapped := domain.RemapEntries(entries, comp.Scoring, scoring, now)
	comp.Scoring = scoring
	comp.UpdatedAt = now
	err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if err := tx.PutCompetition(comp); err != nil {
			return err
		}
		for _, e := range remapped {
			if err := tx.PutEntry(e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Competition{}, err
	}

	s.mu.Lock()
	if s.arena != nil && s.arena.competition.ID == id {
		s.arena.competition = comp
		for _, e := range remapped {
			s.arena.entries[e.Key] = e
		}
	}
	s.mu.Unlock()
	s.log.Info("rescaled competition", "id", id, "remapped", len(remapped))
	return comp, nil
}

// DeleteCompetition removes a competition and everything it owns. Blob
// payloads are deleted best-effort after the transaction commits.
func (s *Service) DeleteCompetition(ctx context.Context, id string) error {
	start := s.nowFn()
	err := s.deleteCompetition(ctx, id)
	s.observe(ctx, "delete_competition", start, err)
	return err
}

func (s *Service) deleteCompetition(ctx context.Context, id string) error {
	s.mu.Lock()
	if s.arena != nil && s.arena.competition.ID == id {
		keys := make([]string, 0, len(s.arena.entries))
		for key := range s.arena.entries {
			keys = append(keys, key)
		}
		s.sched.Drop(keys...)
		s.arena = nil
	}
	s.mu.Unlock()

	err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.DeleteCompetition(id)
	})
	if err != nil {
		return err
	}
	s.deleteBlobPrefix(ctx, id+"/")
	s.log.Info("deleted competition", "id", id)
	return nil
}

// deleteBlobPrefix removes payloads under prefix; failures only log because
// the store rows are already gone.
func (s *Service) deleteBlobPrefix(ctx context.Context, prefix string) {
	if s.blobs == nil {
		return
	}
	infos, err := s.blobs.List(ctx, prefix)
	if err != nil {
		s.log.Warn("listing blob payloads for cleanup failed", "prefix", prefix, "error", err)
		return
	}
	for _, info := range infos {
		if _, err := s.blobs.Delete(ctx, info.Key); err != nil {
			s.log.Warn("blob payload cleanup failed", "key", info.Key, "error", err)
		}
	}
}

// Flush synchronously writes any pending entry batch.
func (s *Service) Flush(ctx context.Context) error {
	return s.sched.Flush(ctx)
}

// Close flushes pending writes, stops the scheduler, and closes the store.
func (s *Service) Close(ctx context.Context) error {
	if err := s.sched.Close(ctx); err != nil {
		return err
	}
	return s.store.Close()
}
