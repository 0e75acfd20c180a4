package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"rankmine/pkg/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "rankmine.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedCompetition(t *testing.T, store *Store, id string) {
	t.Helper()
	at := time.Unix(1000, 0).UTC()
	err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if err := tx.PutCompetition(domain.Competition{
			ID:        id,
			Title:     "Competition " + id,
			Scoring:   domain.DefaultScoring(),
			UI:        domain.DefaultUIPreferences(),
			CreatedAt: at,
			UpdatedAt: at,
		}); err != nil {
			return err
		}
		for _, conID := range []string{"con-a", "con-b"} {
			idx := 0
			if conID == "con-b" {
				idx = 1
			}
			if err := tx.PutContestant(domain.Contestant{
				ID: id + "-" + conID, CompetitionID: id, Name: conID, OrderIndex: &idx, CreatedAt: at,
			}); err != nil {
				return err
			}
		}
		for i, roundID := range []string{"r1", "r2"} {
			if err := tx.PutRound(domain.Round{
				ID: id + "-" + roundID, CompetitionID: id, Title: roundID, OrderIndex: i, CreatedAt: at,
			}); err != nil {
				return err
			}
		}
		for _, roundID := range []string{id + "-r1", id + "-r2"} {
			for _, conID := range []string{id + "-con-a", id + "-con-b"} {
				entry, err := domain.EmptyEntry(id, roundID, conID, at)
				if err != nil {
					return err
				}
				if err := tx.PutEntry(entry); err != nil {
					return err
				}
			}
		}
		return tx.PutAssetMeta(domain.AssetMeta{
			ID: id + "-asset", CompetitionID: id, MimeType: "image/png", SizeBytes: 42, CreatedAt: at,
		})
	})
	if err != nil {
		t.Fatalf("seed competition %s: %v", id, err)
	}
}

func TestSchemaSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "rankmine.db")
	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	seedCompetition(t, store, "comp-1")
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewStore(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	comp, ok, err := reopened.GetCompetition(context.Background(), "comp-1")
	if err != nil || !ok {
		t.Fatalf("expected competition after reopen, ok=%v err=%v", ok, err)
	}
	if comp.Scoring != domain.DefaultScoring() {
		t.Fatalf("scoring config lost on reopen: %+v", comp.Scoring)
	}
	entries, err := reopened.ListEntries(context.Background(), "comp-1")
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries after reopen, got %d", len(entries))
	}
}

func TestDeleteCompetitionCascades(t *testing.T) {
	store := openTestStore(t)
	seedCompetition(t, store, "comp-1")
	seedCompetition(t, store, "comp-2")
	ctx := context.Background()

	err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.DeleteCompetition("comp-1")
	})
	if err != nil {
		t.Fatalf("delete competition: %v", err)
	}

	if _, ok, _ := store.GetCompetition(ctx, "comp-1"); ok {
		t.Fatal("competition should be gone")
	}
	contestants, _ := store.ListContestants(ctx, "comp-1")
	rounds, _ := store.ListRounds(ctx, "comp-1")
	entries, _ := store.ListEntries(ctx, "comp-1")
	assets, _ := store.ListAssetMeta(ctx, "comp-1")
	if len(contestants)+len(rounds)+len(entries)+len(assets) != 0 {
		t.Fatalf("cascade left orphans: %d contestants, %d rounds, %d entries, %d assets",
			len(contestants), len(rounds), len(entries), len(assets))
	}

	survivors, err := store.ListEntries(ctx, "comp-2")
	if err != nil {
		t.Fatalf("list survivor entries: %v", err)
	}
	if len(survivors) != 4 {
		t.Fatalf("sibling competition lost entries: got %d, want 4", len(survivors))
	}
}

func TestDeleteContestantCascadesAndTouches(t *testing.T) {
	store := openTestStore(t)
	seedCompetition(t, store, "comp-1")
	ctx := context.Background()

	later := time.Unix(2000, 0).UTC()
	store.SetNowFunc(func() time.Time { return later })
	err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.DeleteContestant("comp-1-con-a")
	})
	if err != nil {
		t.Fatalf("delete contestant: %v", err)
	}

	entries, err := store.ListEntries(ctx, "comp-1")
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 surviving entries, got %d", len(entries))
	}
	for _, e := range entries {
		if e.ContestantID == "comp-1-con-a" {
			t.Fatalf("entry %s survived contestant cascade", e.Key)
		}
	}
	comp, _, err := store.GetCompetition(ctx, "comp-1")
	if err != nil {
		t.Fatalf("get competition: %v", err)
	}
	if !comp.UpdatedAt.Equal(later) {
		t.Fatalf("expected owner touch at %v, got %v", later, comp.UpdatedAt)
	}
}

func TestTransactionRollsBackOnError(t *testing.T) {
	store := openTestStore(t)
	seedCompetition(t, store, "comp-1")
	ctx := context.Background()

	boom := errors.New("boom")
	err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if err := tx.DeleteCompetition("comp-1"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped boom, got %v", err)
	}

	if _, ok, _ := store.GetCompetition(ctx, "comp-1"); !ok {
		t.Fatal("rollback lost the competition")
	}
	entries, _ := store.ListEntries(ctx, "comp-1")
	if len(entries) != 4 {
		t.Fatalf("rollback lost entries: got %d, want 4", len(entries))
	}
}

func TestLegacyContestantsSortAfterIndexed(t *testing.T) {
	store := openTestStore(t)
	seedCompetition(t, store, "comp-1")
	ctx := context.Background()

	err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.PutContestant(domain.Contestant{
			ID: "comp-1-legacy", CompetitionID: "comp-1", Name: "legacy",
			CreatedAt: time.Unix(500, 0).UTC(),
		})
	})
	if err != nil {
		t.Fatalf("put legacy contestant: %v", err)
	}

	contestants, err := store.ListContestants(ctx, "comp-1")
	if err != nil {
		t.Fatalf("list contestants: %v", err)
	}
	if len(contestants) != 3 {
		t.Fatalf("expected 3 contestants, got %d", len(contestants))
	}
	if contestants[2].ID != "comp-1-legacy" {
		t.Fatalf("legacy contestant should sort last, got order %q, %q, %q",
			contestants[0].ID, contestants[1].ID, contestants[2].ID)
	}
	if contestants[2].OrderIndex != nil {
		t.Fatalf("legacy contestant should round-trip a nil order index")
	}
}

func TestUnscoredScoreRoundTrips(t *testing.T) {
	store := openTestStore(t)
	seedCompetition(t, store, "comp-1")
	ctx := context.Background()

	score := 7.5
	err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		entry, err := domain.EmptyEntry("comp-1", "comp-1-r1", "comp-1-con-a", time.Unix(1500, 0).UTC())
		if err != nil {
			return err
		}
		entry.Score = &score
		entry.Note = "great run"
		return tx.PutEntry(entry)
	})
	if err != nil {
		t.Fatalf("upsert entry: %v", err)
	}

	entries, err := store.ListEntries(ctx, "comp-1")
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	scored, unscored := 0, 0
	for _, e := range entries {
		if e.Scored() {
			scored++
			if *e.Score != score || e.Note != "great run" {
				t.Fatalf("scored entry did not round-trip: %+v", e)
			}
		} else {
			unscored++
			if e.Score != nil {
				t.Fatalf("unscored entry grew a score: %+v", e)
			}
		}
	}
	if scored != 1 || unscored != 3 {
		t.Fatalf("expected 1 scored and 3 unscored, got %d and %d", scored, unscored)
	}
}

func TestTemplateRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	at := time.Unix(1000, 0).UTC()

	want := domain.Template{
		ID:          "tpl-1",
		Name:        "Weekly Bake-Off",
		Scoring:     domain.ScoringConfig{Min: 1, Max: 5, Step: 0.5, Mode: domain.ScoringStars},
		Contestants: []string{"Ada", "Grace"},
		Rounds: []domain.TemplateRound{
			{Title: "Signature", OrderIndex: 0},
			{Title: "Showstopper", OrderIndex: 1},
		},
		CreatedAt: at,
		UpdatedAt: at,
	}
	err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.PutTemplate(want)
	})
	if err != nil {
		t.Fatalf("put template: %v", err)
	}

	got, ok, err := store.GetTemplate(ctx, "tpl-1")
	if err != nil || !ok {
		t.Fatalf("get template: ok=%v err=%v", ok, err)
	}
	if got.Name != want.Name || got.Scoring != want.Scoring {
		t.Fatalf("template header did not round-trip: %+v", got)
	}
	if len(got.Contestants) != 2 || got.Contestants[0] != "Ada" {
		t.Fatalf("template contestants did not round-trip: %v", got.Contestants)
	}
	if len(got.Rounds) != 2 || got.Rounds[1].Title != "Showstopper" {
		t.Fatalf("template rounds did not round-trip: %v", got.Rounds)
	}
}
