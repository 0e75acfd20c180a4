package arena

import (
	"context"
	"fmt"
	"io"

	"rankmine/internal/blob"
	"rankmine/pkg/domain"
)

// AttachAsset stores a binary payload for the cell at (roundID, contestantID):
// the payload goes to the blob store, the metadata row to the persistent
// store, and the cell's asset reference is updated through the scheduler. Any
// previously attached asset on that cell is removed.
func (s *Service) AttachAsset(ctx context.Context, roundID, contestantID, mimeType string, payload io.Reader) (domain.AssetMeta, error) {
	start := s.nowFn()
	meta, err := s.attachAsset(ctx, roundID, contestantID, mimeType, payload)
	s.observe(ctx, "attach_asset", start, err)
	return meta, err
}

func (s *Service) attachAsset(ctx context.Context, roundID, contestantID, mimeType string, payload io.Reader) (domain.AssetMeta, error) {
	if s.blobs == nil {
		return domain.AssetMeta{}, fmt.Errorf("no blob store configured")
	}
	s.mu.RLock()
	st := s.arena
	s.mu.RUnlock()
	if st == nil {
		return domain.AssetMeta{}, fmt.Errorf("no arena loaded")
	}
	competitionID := st.competition.ID

	assetID := s.idFn()
	info, err := s.blobs.Put(ctx, blobKey(competitionID, assetID), payload, blob.PutOptions{ContentType: mimeType})
	if err != nil {
		return domain.AssetMeta{}, fmt.Errorf("store payload: %w", err)
	}
	meta := domain.AssetMeta{
		ID:            assetID,
		CompetitionID: competitionID,
		MimeType:      mimeType,
		SizeBytes:     info.Size,
		CreatedAt:     s.nowFn(),
	}

	var previous string
	entry, err := s.upsertEntry(ctx, roundID, contestantID, func(e *domain.Entry) {
		previous = e.AssetID
		e.AssetID = assetID
	})
	if err != nil {
		// The payload is orphaned; remove it again.
		if _, derr := s.blobs.Delete(ctx, blobKey(competitionID, assetID)); derr != nil {
			s.log.Warn("orphaned payload cleanup failed", "asset", assetID, "error", derr)
		}
		return domain.AssetMeta{}, err
	}

	err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if previous != "" && previous != assetID {
			if err := tx.DeleteAssetMeta(previous); err != nil {
				return err
			}
		}
		return tx.PutAssetMeta(meta)
	})
	if err != nil {
		return domain.AssetMeta{}, err
	}
	if previous != "" && previous != assetID {
		if _, derr := s.blobs.Delete(ctx, blobKey(competitionID, previous)); derr != nil {
			s.log.Warn("replaced payload cleanup failed", "asset", previous, "error", derr)
		}
	}
	s.log.Debug("attached asset", "asset", assetID, "entry", entry.Key)
	return meta, nil
}

// DetachAsset clears the asset reference on a cell and removes the metadata
// row and payload.
func (s *Service) DetachAsset(ctx context.Context, roundID, contestantID string) error {
	start := s.nowFn()
	err := s.detachAsset(ctx, roundID, contestantID)
	s.observe(ctx, "detach_asset", start, err)
	return err
}

func (s *Service) detachAsset(ctx context.Context, roundID, contestantID string) error {
	s.mu.RLock()
	st := s.arena
	s.mu.RUnlock()
	if st == nil {
		return fmt.Errorf("no arena loaded")
	}
	competitionID := st.competition.ID

	var previous string
	if _, err := s.upsertEntry(ctx, roundID, contestantID, func(e *domain.Entry) {
		previous = e.AssetID
		e.AssetID = ""
	}); err != nil {
		return err
	}
	if previous == "" {
		return nil
	}
	err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.DeleteAssetMeta(previous)
	})
	if err != nil {
		return err
	}
	if s.blobs != nil {
		if _, derr := s.blobs.Delete(ctx, blobKey(competitionID, previous)); derr != nil {
			s.log.Warn("detached payload cleanup failed", "asset", previous, "error", derr)
		}
	}
	return nil
}

// FetchAsset returns an asset's metadata and payload. Metadata without a
// payload (for example after importing a bundle on another device) yields
// ErrAssetUnavailable.
func (s *Service) FetchAsset(ctx context.Context, assetID string) (domain.AssetMeta, io.ReadCloser, error) {
	meta, ok, err := s.store.GetAssetMeta(ctx, assetID)
	if err != nil {
		return domain.AssetMeta{}, nil, err
	}
	if !ok {
		return domain.AssetMeta{}, nil, domain.ErrNotFound{Entity: domain.EntityAssetMeta, ID: assetID}
	}
	if s.blobs == nil {
		return meta, nil, domain.ErrAssetUnavailable
	}
	_, rc, err := s.blobs.Get(ctx, blobKey(meta.CompetitionID, assetID))
	if err != nil {
		return meta, nil, domain.ErrAssetUnavailable
	}
	return meta, rc, nil
}

// ListAssets returns the asset metadata rows owned by a competition.
func (s *Service) ListAssets(ctx context.Context, competitionID string) ([]domain.AssetMeta, error) {
	return s.store.ListAssetMeta(ctx, competitionID)
}

func blobKey(competitionID, assetID string) string {
	return competitionID + "/" + assetID
}
