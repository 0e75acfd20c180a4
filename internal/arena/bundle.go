package arena

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"rankmine/pkg/domain"
)

// BundleVersion is the exchange format version this build reads and writes.
const BundleVersion = 1

// Bundle is the versioned JSON exchange format for one competition. Asset
// payloads are not carried; the manifest lets the receiving side keep the
// metadata and report the payload as unavailable.
type Bundle struct {
	Version       int                 `json:"version"`
	ExportedAt    time.Time           `json:"exportedAt"`
	Competition   domain.Competition  `json:"competition"`
	Contestants   []domain.Contestant `json:"contestants"`
	Rounds        []domain.Round      `json:"rounds"`
	Entries       []BundleEntry       `json:"entries"`
	AssetManifest []ManifestAsset     `json:"assetManifest"`
}

// BundleEntry strips an entry down to its cell coordinates and payload; keys
// and competition IDs are reconstructed on import.
type BundleEntry struct {
	RoundID      string    `json:"roundId"`
	ContestantID string    `json:"contestantId"`
	Score        *float64  `json:"score,omitempty"`
	Note         string    `json:"note,omitempty"`
	Link         string    `json:"link,omitempty"`
	AssetID      string    `json:"assetId,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ManifestAsset describes an asset whose payload stayed on the exporting
// device.
type ManifestAsset struct {
	AssetID   string    `json:"assetId"`
	MimeType  string    `json:"mimeType"`
	SizeBytes int64     `json:"sizeBytes"`
	CreatedAt time.Time `json:"createdAt"`
}

// ExportBundle assembles the exchange bundle for one competition. Pending
// writes are flushed first so the bundle reflects the latest edits.
func (s *Service) ExportBundle(ctx context.Context, competitionID string) (Bundle, error) {
	start := s.nowFn()
	b, err := s.exportBundle(ctx, competitionID)
	s.observe(ctx, "export_bundle", start, err)
	return b, err
}

func (s *Service) exportBundle(ctx context.Context, competitionID string) (Bundle, error) {
	if err := s.sched.Flush(ctx); err != nil {
		return Bundle{}, err
	}
	comp, ok, err := s.store.GetCompetition(ctx, competitionID)
	if err != nil {
		return Bundle{}, err
	}
	if !ok {
		return Bundle{}, domain.ErrNotFound{Entity: domain.EntityCompetition, ID: competitionID}
	}
	contestants, err := s.store.ListContestants(ctx, competitionID)
	if err != nil {
		return Bundle{}, err
	}
	rounds, err := s.store.ListRounds(ctx, competitionID)
	if err != nil {
		return Bundle{}, err
	}
	entries, err := s.store.ListEntries(ctx, competitionID)
	if err != nil {
		return Bundle{}, err
	}
	assets, err := s.store.ListAssetMeta(ctx, competitionID)
	if err != nil {
		return Bundle{}, err
	}

	bundle := Bundle{
		Version:     BundleVersion,
		ExportedAt:  s.nowFn(),
		Competition: comp,
		Contestants: contestants,
		Rounds:      rounds,
	}
	for _, e := range entries {
		bundle.Entries = append(bundle.Entries, BundleEntry{
			RoundID:      e.RoundID,
			ContestantID: e.ContestantID,
			Score:        e.Score,
			Note:         e.Note,
			Link:         e.Link,
			AssetID:      e.AssetID,
			UpdatedAt:    e.UpdatedAt,
		})
	}
	for _, m := range assets {
		bundle.AssetManifest = append(bundle.AssetManifest, ManifestAsset{
			AssetID:   m.ID,
			MimeType:  m.MimeType,
			SizeBytes: m.SizeBytes,
			CreatedAt: m.CreatedAt,
		})
	}
	return bundle, nil
}

// WriteBundle exports a competition as indented JSON.
func (s *Service) WriteBundle(ctx context.Context, competitionID string, w io.Writer) error {
	bundle, err := s.ExportBundle(ctx, competitionID)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(bundle)
}

// ImportBundle validates a bundle and materializes it as a brand new
// competition with fresh IDs throughout, so importing the same bundle twice
// yields two independent competitions. Asset metadata is imported; payloads
// stayed on the exporting device, so FetchAsset reports them unavailable.
func (s *Service) ImportBundle(ctx context.Context, bundle Bundle) (domain.Competition, error) {
	start := s.nowFn()
	comp, err := s.importBundle(ctx, bundle)
	s.observe(ctx, "import_bundle", start, err)
	return comp, err
}

func (s *Service) importBundle(ctx context.Context, bundle Bundle) (domain.Competition, error) {
	if err := validateBundle(bundle); err != nil {
		return domain.Competition{}, err
	}
	now := s.nowFn()

	comp := bundle.Competition
	comp.ID = s.idFn()
	if (comp.Scoring == domain.ScoringConfig{}) {
		comp.Scoring = domain.DefaultScoring()
	}
	if (comp.UI == domain.UIPreferences{}) {
		comp.UI = domain.DefaultUIPreferences()
	}
	if comp.CreatedAt.IsZero() {
		comp.CreatedAt = now
	}
	comp.UpdatedAt = now

	contestantIDs := make(map[string]string, len(bundle.Contestants))
	contestants := make([]domain.Contestant, 0, len(bundle.Contestants))
	for i, c := range bundle.Contestants {
		fresh := c
		fresh.ID = s.idFn()
		fresh.CompetitionID = comp.ID
		if fresh.OrderIndex == nil {
			idx := i
			fresh.OrderIndex = &idx
		}
		if fresh.CreatedAt.IsZero() {
			fresh.CreatedAt = now
		}
		contestantIDs[c.ID] = fresh.ID
		contestants = append(contestants, fresh)
	}

	roundIDs := make(map[string]string, len(bundle.Rounds))
	rounds := make([]domain.Round, 0, len(bundle.Rounds))
	for _, r := range bundle.Rounds {
		fresh := r
		fresh.ID = s.idFn()
		fresh.CompetitionID = comp.ID
		if fresh.CreatedAt.IsZero() {
			fresh.CreatedAt = now
		}
		roundIDs[r.ID] = fresh.ID
		rounds = append(rounds, fresh)
	}

	assetIDs := make(map[string]string, len(bundle.AssetManifest))
	assets := make([]domain.AssetMeta, 0, len(bundle.AssetManifest))
	for _, m := range bundle.AssetManifest {
		fresh := domain.AssetMeta{
			ID:            s.idFn(),
			CompetitionID: comp.ID,
			MimeType:      m.MimeType,
			SizeBytes:     m.SizeBytes,
			CreatedAt:     m.CreatedAt,
		}
		if fresh.CreatedAt.IsZero() {
			fresh.CreatedAt = now
		}
		assetIDs[m.AssetID] = fresh.ID
		assets = append(assets, fresh)
	}

	entries := make([]domain.Entry, 0, len(bundle.Entries))
	for _, be := range bundle.Entries {
		roundID, ok := roundIDs[be.RoundID]
		if !ok {
			return domain.Competition{}, fmt.Errorf("bundle: entry references unknown round %s", be.RoundID)
		}
		contestantID, ok := contestantIDs[be.ContestantID]
		if !ok {
			return domain.Competition{}, fmt.Errorf("bundle: entry references unknown contestant %s", be.ContestantID)
		}
		key, err := domain.EncodeEntryKey(comp.ID, roundID, contestantID)
		if err != nil {
			return domain.Competition{}, err
		}
		assetID := ""
		if be.AssetID != "" {
			mapped, known := assetIDs[be.AssetID]
			if !known {
				// Reference to an asset the manifest never declared; drop it
				// rather than point at nothing.
				s.log.Warn("dropping undeclared asset reference", "asset", be.AssetID)
			} else {
				assetID = mapped
			}
		}
		updatedAt := be.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = now
		}
		entry := domain.Entry{
			Key:           key,
			CompetitionID: comp.ID,
			RoundID:       roundID,
			ContestantID:  contestantID,
			Note:          be.Note,
			Link:          be.Link,
			AssetID:       assetID,
			UpdatedAt:     updatedAt,
		}
		if be.Score != nil {
			v := comp.Scoring.Clamp(*be.Score)
			entry.Score = &v
		}
		entries = append(entries, entry)
	}

	err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if err := tx.PutCompetition(comp); err != nil {
			return err
		}
		for _, c := range contestants {
			if err := tx.PutContestant(c); err != nil {
				return err
			}
		}
		for _, r := range rounds {
			if err := tx.PutRound(r); err != nil {
				return err
			}
		}
		for _, m := range assets {
			if err := tx.PutAssetMeta(m); err != nil {
				return err
			}
		}
		for _, e := range entries {
			if err := tx.PutEntry(e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Competition{}, err
	}
	s.log.Info("imported bundle", "competition", comp.ID, "entries", len(entries))
	return comp, nil
}

// ReadBundle imports a competition from its JSON form.
func (s *Service) ReadBundle(ctx context.Context, r io.Reader) (domain.Competition, error) {
	var bundle Bundle
	dec := json.NewDecoder(r)
	if err := dec.Decode(&bundle); err != nil {
		return domain.Competition{}, fmt.Errorf("bundle: decode: %w", err)
	}
	return s.ImportBundle(ctx, bundle)
}

// validateBundle checks the structural rules one at a time so the error names
// the first rule violated.
func validateBundle(b Bundle) error {
	if b.Version != BundleVersion {
		return fmt.Errorf("bundle: unsupported version %d", b.Version)
	}
	if b.Competition.ID == "" {
		return fmt.Errorf("bundle: competition id required")
	}
	if b.Competition.Title == "" {
		return fmt.Errorf("bundle: competition title required")
	}
	if (b.Competition.Scoring != domain.ScoringConfig{}) {
		if err := b.Competition.Scoring.Validate(); err != nil {
			return fmt.Errorf("bundle: %w", err)
		}
	}
	seenContestants := make(map[string]struct{}, len(b.Contestants))
	for _, c := range b.Contestants {
		if c.ID == "" {
			return fmt.Errorf("bundle: contestant id required")
		}
		if c.Name == "" {
			return fmt.Errorf("bundle: contestant %s has no name", c.ID)
		}
		if c.CompetitionID != b.Competition.ID {
			return fmt.Errorf("bundle: contestant %s belongs to a different competition", c.ID)
		}
		if _, dup := seenContestants[c.ID]; dup {
			return fmt.Errorf("bundle: duplicate contestant id %s", c.ID)
		}
		seenContestants[c.ID] = struct{}{}
	}
	seenRounds := make(map[string]struct{}, len(b.Rounds))
	for _, r := range b.Rounds {
		if r.ID == "" {
			return fmt.Errorf("bundle: round id required")
		}
		if r.Title == "" {
			return fmt.Errorf("bundle: round %s has no title", r.ID)
		}
		if r.CompetitionID != b.Competition.ID {
			return fmt.Errorf("bundle: round %s belongs to a different competition", r.ID)
		}
		if _, dup := seenRounds[r.ID]; dup {
			return fmt.Errorf("bundle: duplicate round id %s", r.ID)
		}
		seenRounds[r.ID] = struct{}{}
	}
	for _, m := range b.AssetManifest {
		if m.AssetID == "" {
			return fmt.Errorf("bundle: asset manifest item missing id")
		}
	}
	return nil
}
