// Package domain defines the persistent entities, the composite-key codec,
// and the pure scoring algorithms used by rankmine.
package domain

import (
	"fmt"
	"math"
	"time"
)

// EntityType identifies the durable collection a record belongs to.
type EntityType string

// Supported entity type identifiers used in errors and persistence buckets.
const (
	// EntityCompetition identifies the root competition record.
	EntityCompetition EntityType = "competition"
	// EntityContestant identifies a contestant record.
	EntityContestant EntityType = "contestant"
	// EntityRound identifies a round record.
	EntityRound EntityType = "round"
	// EntityEntry identifies a scored-cell record.
	EntityEntry EntityType = "entry"
	// EntityAssetMeta identifies asset metadata stored apart from its payload.
	EntityAssetMeta EntityType = "asset_meta"
	// EntityTemplate identifies a reusable competition template.
	EntityTemplate EntityType = "template"
)

// ScoringMode selects how scores are entered and rendered.
type ScoringMode string

// Canonical scoring modes. Stars mode additionally constrains the score span.
const (
	ScoringNumeric ScoringMode = "numeric"
	ScoringSlider  ScoringMode = "slider"
	ScoringStars   ScoringMode = "stars"
)

// ScoringConfig bounds the values a score cell may hold.
type ScoringConfig struct {
	Min  float64     `json:"min"`
	Max  float64     `json:"max"`
	Step float64     `json:"step"`
	Unit string      `json:"unit,omitempty"`
	Mode ScoringMode `json:"mode"`
}

// Span returns the width of the configured score range.
func (c ScoringConfig) Span() float64 { return c.Max - c.Min }

// Clamp forces v into the configured [Min, Max] range.
func (c ScoringConfig) Clamp(v float64) float64 {
	return math.Min(math.Max(v, c.Min), c.Max)
}

// Validate enforces the scoring invariants: min strictly below max, a positive
// step, a known mode, and a span of at most 10 for stars mode.
func (c ScoringConfig) Validate() error {
	if c.Min >= c.Max {
		return fmt.Errorf("scoring: min %g must be strictly below max %g", c.Min, c.Max)
	}
	if c.Step <= 0 {
		return fmt.Errorf("scoring: step %g must be strictly positive", c.Step)
	}
	switch c.Mode {
	case ScoringNumeric, ScoringSlider:
	case ScoringStars:
		if c.Span() > 10 {
			return fmt.Errorf("scoring: stars mode requires a span of at most 10, got %g", c.Span())
		}
	default:
		return fmt.Errorf("scoring: unknown mode %q", c.Mode)
	}
	return nil
}

// DefaultScoring is applied to new competitions and to legacy records persisted
// before scoring bounds were configurable.
func DefaultScoring() ScoringConfig {
	return ScoringConfig{Min: 0, Max: 10, Step: 1, Mode: ScoringNumeric}
}

// Canonical UI preference values carried on a competition.
const (
	ThemeNeoArcade     = "neoArcade"
	ThemeCalm          = "calm"
	DensityComfortable = "comfortable"
	DensityCompact     = "compact"
)

// UIPreferences persists per-competition presentation choices. The rendering
// layer is out of scope here; the values are stored opaquely.
type UIPreferences struct {
	Theme   string `json:"theme"`
	Density string `json:"density"`
}

// DefaultUIPreferences returns the preferences assigned to new competitions.
func DefaultUIPreferences() UIPreferences {
	return UIPreferences{Theme: ThemeNeoArcade, Density: DensityComfortable}
}

// Validate rejects preference values outside the canonical sets.
func (u UIPreferences) Validate() error {
	switch u.Theme {
	case ThemeNeoArcade, ThemeCalm:
	default:
		return fmt.Errorf("unknown theme %q", u.Theme)
	}
	switch u.Density {
	case DensityComfortable, DensityCompact:
	default:
		return fmt.Errorf("unknown density %q", u.Density)
	}
	return nil
}

// Competition is the root aggregate. Contestants, rounds, entries and asset
// metadata are owned by exactly one competition and die with it.
type Competition struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Scoring   ScoringConfig `json:"scoring"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
	UI        UIPreferences `json:"ui"`
}

// Contestant is one scored column of a competition's grid.
//
// OrderIndex is a pointer because records persisted by older versions carry no
// index; loading assigns and persists a positional default for those.
type Contestant struct {
	ID            string    `json:"id"`
	CompetitionID string    `json:"competitionId"`
	Name          string    `json:"name"`
	AccentColor   string    `json:"accentColor,omitempty"`
	OrderIndex    *int      `json:"orderIndex,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Round is one scored row of a competition's grid.
type Round struct {
	ID            string    `json:"id"`
	CompetitionID string    `json:"competitionId"`
	Title         string    `json:"title"`
	OrderIndex    int       `json:"orderIndex"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Entry is the scored cell for one (round, contestant) pair. Its Key is the
// deterministic composite identifier produced by EncodeEntryKey, never a
// random id. A nil Score means "unscored": it contributes 0 to totals and is
// excluded from the scored-count. Entries are sparse; an absent record is
// equivalent to an unscored entry with no note, link or asset.
type Entry struct {
	Key           string    `json:"key"`
	CompetitionID string    `json:"competitionId"`
	RoundID       string    `json:"roundId"`
	ContestantID  string    `json:"contestantId"`
	Score         *float64  `json:"score,omitempty"`
	Note          string    `json:"note,omitempty"`
	Link          string    `json:"link,omitempty"`
	AssetID       string    `json:"assetId,omitempty"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Scored reports whether the entry carries a defined score.
func (e Entry) Scored() bool { return e.Score != nil }

// EmptyEntry synthesizes the unscored entry for one grid cell, computing its
// composite key. It fails when any id would make the key ambiguous.
func EmptyEntry(competitionID, roundID, contestantID string, at time.Time) (Entry, error) {
	key, err := EncodeEntryKey(competitionID, roundID, contestantID)
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		Key:           key,
		CompetitionID: competitionID,
		RoundID:       roundID,
		ContestantID:  contestantID,
		UpdatedAt:     at,
	}, nil
}

// AssetMeta describes a stored binary payload. The payload itself lives in a
// blob store keyed by the asset id, so metadata listings never read binaries.
type AssetMeta struct {
	ID            string    `json:"id"`
	CompetitionID string    `json:"competitionId"`
	MimeType      string    `json:"mimeType"`
	SizeBytes     int64     `json:"sizeBytes"`
	CreatedAt     time.Time `json:"createdAt"`
}

// TemplateRound captures one round of a template: title and row position only.
type TemplateRound struct {
	Title      string `json:"title"`
	OrderIndex int    `json:"orderIndex"`
}

// Template is a structural snapshot of a competition: scoring configuration,
// contestant names and round titles in order. It carries no identifiers and no
// scores; instantiating always mints fresh ids.
type Template struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Scoring     ScoringConfig   `json:"scoring"`
	Contestants []string        `json:"contestants"`
	Rounds      []TemplateRound `json:"rounds"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}
