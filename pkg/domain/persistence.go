package domain

import (
	"context"
	"time"
)

// Transaction exposes the write operations a persistence implementation must
// support within one atomic scope. Deletes of records that no longer exist are
// no-ops; the cascade deletes remove every dependent record or none at all.
type Transaction interface {
	PutCompetition(Competition) error
	// DeleteCompetition removes the competition together with all contestants,
	// rounds, entries and asset metadata that reference it.
	DeleteCompetition(id string) error
	// TouchCompetition refreshes the competition's updatedAt so recency-sorted
	// listings stay correct. Touching a missing competition is a no-op.
	TouchCompetition(id string, at time.Time) error

	PutContestant(Contestant) error
	// DeleteContestant removes the contestant and every entry referencing it,
	// leaving entries of other contestants untouched.
	DeleteContestant(id string) error

	PutRound(Round) error
	// DeleteRound removes the round and every entry referencing it.
	DeleteRound(id string) error

	PutEntry(Entry) error
	// PutEntries writes a batch of entries and touches the owning competition
	// in the same transaction.
	PutEntries([]Entry) error
	DeleteEntry(key string) error

	PutAssetMeta(AssetMeta) error
	DeleteAssetMeta(id string) error

	PutTemplate(Template) error
	DeleteTemplate(id string) error
}

// PersistentStore is the gateway over the six durable collections. Reads take
// a context and return copies; writes run through RunInTransaction, whose fn
// either commits entirely or leaves the store unchanged.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) error

	GetCompetition(ctx context.Context, id string) (Competition, bool, error)
	// ListCompetitions returns all competitions ordered by updatedAt descending.
	ListCompetitions(ctx context.Context) ([]Competition, error)
	ListContestants(ctx context.Context, competitionID string) ([]Contestant, error)
	// ListRounds returns the competition's rounds ordered by orderIndex.
	ListRounds(ctx context.Context, competitionID string) ([]Round, error)
	ListEntries(ctx context.Context, competitionID string) ([]Entry, error)

	GetAssetMeta(ctx context.Context, id string) (AssetMeta, bool, error)
	ListAssetMeta(ctx context.Context, competitionID string) ([]AssetMeta, error)

	GetTemplate(ctx context.Context, id string) (Template, bool, error)
	// ListTemplates returns all templates ordered by updatedAt descending.
	ListTemplates(ctx context.Context) ([]Template, error)

	Close() error
}
