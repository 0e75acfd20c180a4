package arena

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"rankmine/pkg/domain"
)

func TestBundleRoundTripCreatesIndependentCompetition(t *testing.T) {
	svc := newTestService(t)
	comp := loadedArena(t, svc)
	ctx := context.Background()
	view, _ := svc.Arena()

	score := 8.0
	if _, err := svc.SetScore(ctx, view.Rounds[0].ID, view.Contestants[0].ID, &score); err != nil {
		t.Fatalf("set score: %v", err)
	}
	if _, err := svc.SetNote(ctx, view.Rounds[1].ID, view.Contestants[1].ID, "bold flavors"); err != nil {
		t.Fatalf("set note: %v", err)
	}

	bundle, err := svc.ExportBundle(ctx, comp.ID)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if bundle.Version != BundleVersion {
		t.Fatalf("unexpected version %d", bundle.Version)
	}
	if len(bundle.Contestants) != 2 || len(bundle.Rounds) != 2 || len(bundle.Entries) != 4 {
		t.Fatalf("unexpected bundle shape: %d/%d/%d", len(bundle.Contestants), len(bundle.Rounds), len(bundle.Entries))
	}

	imported, err := svc.ImportBundle(ctx, bundle)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if imported.ID == comp.ID {
		t.Fatal("import must mint a fresh competition id")
	}
	if imported.Title != comp.Title {
		t.Fatalf("title not carried: %q", imported.Title)
	}

	entries, err := svc.Store().ListEntries(ctx, imported.ID)
	if err != nil {
		t.Fatalf("list imported entries: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("expected 4 imported entries, got %d", len(entries))
	}
	scored, noted := 0, 0
	for _, e := range entries {
		if e.CompetitionID != imported.ID {
			t.Fatalf("imported entry owned by wrong competition: %+v", e)
		}
		if strings.Count(e.Key, "::") != 2 {
			t.Fatalf("malformed imported key %q", e.Key)
		}
		if e.Scored() {
			scored++
			if *e.Score != 8 {
				t.Fatalf("imported score mismatch: %g", *e.Score)
			}
		}
		if e.Note == "bold flavors" {
			noted++
		}
	}
	if scored != 1 || noted != 1 {
		t.Fatalf("payload not carried: scored=%d noted=%d", scored, noted)
	}

	// The original competition is untouched.
	if _, ok, _ := svc.Store().GetCompetition(ctx, comp.ID); !ok {
		t.Fatal("source competition disappeared")
	}
}

func TestWriteAndReadBundleJSON(t *testing.T) {
	svc := newTestService(t)
	comp := loadedArena(t, svc)
	ctx := context.Background()

	var buf bytes.Buffer
	if err := svc.WriteBundle(ctx, comp.ID, &buf); err != nil {
		t.Fatalf("write bundle: %v", err)
	}
	if !strings.Contains(buf.String(), `"version": 1`) {
		t.Fatalf("serialized bundle missing version marker: %s", buf.String()[:120])
	}
	imported, err := svc.ReadBundle(ctx, &buf)
	if err != nil {
		t.Fatalf("read bundle: %v", err)
	}
	if imported.ID == comp.ID {
		t.Fatal("round trip should mint a fresh id")
	}
}

func TestImportBundleValidationStopsAtFirstBrokenRule(t *testing.T) {
	svc := newTestService(t)
	comp := loadedArena(t, svc)
	ctx := context.Background()
	base, err := svc.ExportBundle(ctx, comp.ID)
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	t.Run("wrong version", func(t *testing.T) {
		b := base
		b.Version = 2
		if _, err := svc.ImportBundle(ctx, b); err == nil || !strings.Contains(err.Error(), "unsupported version") {
			t.Fatalf("expected version error, got %v", err)
		}
	})
	t.Run("missing title", func(t *testing.T) {
		b := base
		b.Competition.Title = ""
		if _, err := svc.ImportBundle(ctx, b); err == nil || !strings.Contains(err.Error(), "title required") {
			t.Fatalf("expected title error, got %v", err)
		}
	})
	t.Run("invalid scoring", func(t *testing.T) {
		b := base
		b.Competition.Scoring.Step = -1
		if _, err := svc.ImportBundle(ctx, b); err == nil {
			t.Fatal("expected scoring validation error")
		}
	})
	t.Run("foreign contestant", func(t *testing.T) {
		b := base
		b.Contestants = append([]domain.Contestant(nil), b.Contestants...)
		b.Contestants[0].CompetitionID = "someone-else"
		if _, err := svc.ImportBundle(ctx, b); err == nil || !strings.Contains(err.Error(), "different competition") {
			t.Fatalf("expected ownership error, got %v", err)
		}
	})
	t.Run("entry with unknown round", func(t *testing.T) {
		b := base
		b.Entries = append([]BundleEntry(nil), b.Entries...)
		b.Entries[0].RoundID = "ghost"
		if _, err := svc.ImportBundle(ctx, b); err == nil || !strings.Contains(err.Error(), "unknown round") {
			t.Fatalf("expected unknown round error, got %v", err)
		}
	})
}

func TestImportBundleKeepsAssetMetadataWithoutPayload(t *testing.T) {
	svc := newTestService(t)
	comp := loadedArena(t, svc)
	ctx := context.Background()
	view, _ := svc.Arena()

	meta, err := svc.AttachAsset(ctx, view.Rounds[0].ID, view.Contestants[0].ID, "image/png", strings.NewReader("png-bytes"))
	if err != nil {
		t.Fatalf("attach asset: %v", err)
	}
	bundle, err := svc.ExportBundle(ctx, comp.ID)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(bundle.AssetManifest) != 1 || bundle.AssetManifest[0].AssetID != meta.ID {
		t.Fatalf("asset manifest not exported: %+v", bundle.AssetManifest)
	}

	imported, err := svc.ImportBundle(ctx, bundle)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	assets, err := svc.ListAssets(ctx, imported.ID)
	if err != nil {
		t.Fatalf("list assets: %v", err)
	}
	if len(assets) != 1 || assets[0].MimeType != "image/png" {
		t.Fatalf("asset metadata not imported: %+v", assets)
	}
	if assets[0].ID == meta.ID {
		t.Fatal("imported asset should have a fresh id")
	}
	// Payload stayed on the exporting side.
	if _, _, err := svc.FetchAsset(ctx, assets[0].ID); !errors.Is(err, domain.ErrAssetUnavailable) {
		t.Fatalf("expected ErrAssetUnavailable, got %v", err)
	}
}
