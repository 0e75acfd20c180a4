package arena

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"rankmine/pkg/domain"
)

func TestAttachAssetStoresPayloadAndMetadata(t *testing.T) {
	svc := newTestService(t)
	comp := loadedArena(t, svc)
	ctx := context.Background()
	view, _ := svc.Arena()
	roundID, contestantID := view.Rounds[0].ID, view.Contestants[0].ID

	meta, err := svc.AttachAsset(ctx, roundID, contestantID, "image/png", strings.NewReader("payload"))
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if meta.CompetitionID != comp.ID || meta.MimeType != "image/png" || meta.SizeBytes != int64(len("payload")) {
		t.Fatalf("unexpected metadata: %+v", meta)
	}

	got, rc, err := svc.FetchAsset(ctx, meta.ID)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != "payload" {
		t.Fatalf("payload mismatch: %q", data)
	}
	if got.ID != meta.ID {
		t.Fatalf("metadata mismatch: %+v", got)
	}

	view, _ = svc.Arena()
	attached := false
	for _, e := range view.Entries {
		if e.RoundID == roundID && e.ContestantID == contestantID && e.AssetID == meta.ID {
			attached = true
		}
	}
	if !attached {
		t.Fatal("entry should reference the attached asset")
	}
}

func TestAttachAssetReplacesPreviousOne(t *testing.T) {
	svc := newTestService(t)
	comp := loadedArena(t, svc)
	ctx := context.Background()
	view, _ := svc.Arena()
	roundID, contestantID := view.Rounds[0].ID, view.Contestants[0].ID

	first, err := svc.AttachAsset(ctx, roundID, contestantID, "image/png", strings.NewReader("one"))
	if err != nil {
		t.Fatalf("attach first: %v", err)
	}
	second, err := svc.AttachAsset(ctx, roundID, contestantID, "image/jpeg", strings.NewReader("two"))
	if err != nil {
		t.Fatalf("attach second: %v", err)
	}

	assets, err := svc.ListAssets(ctx, comp.ID)
	if err != nil {
		t.Fatalf("list assets: %v", err)
	}
	if len(assets) != 1 || assets[0].ID != second.ID {
		t.Fatalf("replaced asset metadata should be gone: %+v", assets)
	}
	if _, _, err := svc.FetchAsset(ctx, first.ID); err == nil {
		t.Fatal("replaced asset should be unfetchable")
	}
}

func TestDetachAssetClearsReferenceAndPayload(t *testing.T) {
	svc := newTestService(t)
	comp := loadedArena(t, svc)
	ctx := context.Background()
	view, _ := svc.Arena()
	roundID, contestantID := view.Rounds[0].ID, view.Contestants[0].ID

	meta, err := svc.AttachAsset(ctx, roundID, contestantID, "image/png", strings.NewReader("payload"))
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if err := svc.DetachAsset(ctx, roundID, contestantID); err != nil {
		t.Fatalf("detach: %v", err)
	}

	assets, _ := svc.ListAssets(ctx, comp.ID)
	if len(assets) != 0 {
		t.Fatalf("metadata should be removed: %+v", assets)
	}
	var nf domain.ErrNotFound
	if _, _, err := svc.FetchAsset(ctx, meta.ID); !errors.As(err, &nf) {
		t.Fatalf("expected not-found after detach, got %v", err)
	}
	view, _ = svc.Arena()
	for _, e := range view.Entries {
		if e.AssetID != "" {
			t.Fatalf("entry still references detached asset: %+v", e)
		}
	}

	// Detaching an empty cell is a no-op.
	if err := svc.DetachAsset(ctx, roundID, contestantID); err != nil {
		t.Fatalf("second detach: %v", err)
	}
}

func TestFetchMissingPayloadReportsUnavailable(t *testing.T) {
	svc := newTestService(t)
	comp := loadedArena(t, svc)
	ctx := context.Background()

	// Metadata row without a stored payload, as after a bundle import.
	err := svc.Store().RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.PutAssetMeta(domain.AssetMeta{
			ID: "orphan", CompetitionID: comp.ID, MimeType: "image/png", SizeBytes: 9,
		})
	})
	if err != nil {
		t.Fatalf("seed metadata: %v", err)
	}
	if _, _, err := svc.FetchAsset(ctx, "orphan"); !errors.Is(err, domain.ErrAssetUnavailable) {
		t.Fatalf("expected ErrAssetUnavailable, got %v", err)
	}
}
