package domain

import (
	"testing"
	"time"
)

func TestScoringConfigValidate(t *testing.T) {
	cases := []struct {
		name    string
		cfg     ScoringConfig
		wantErr bool
	}{
		{"numeric defaults", DefaultScoring(), false},
		{"slider", ScoringConfig{Min: -5, Max: 5, Step: 0.5, Mode: ScoringSlider}, false},
		{"stars within span", ScoringConfig{Min: 0, Max: 5, Step: 0.5, Mode: ScoringStars}, false},
		{"min equals max", ScoringConfig{Min: 3, Max: 3, Step: 1, Mode: ScoringNumeric}, true},
		{"min above max", ScoringConfig{Min: 10, Max: 0, Step: 1, Mode: ScoringNumeric}, true},
		{"zero step", ScoringConfig{Min: 0, Max: 10, Step: 0, Mode: ScoringNumeric}, true},
		{"negative step", ScoringConfig{Min: 0, Max: 10, Step: -1, Mode: ScoringNumeric}, true},
		{"stars span too wide", ScoringConfig{Min: 0, Max: 11, Step: 1, Mode: ScoringStars}, true},
		{"unknown mode", ScoringConfig{Min: 0, Max: 10, Step: 1, Mode: "dial"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr && err == nil {
				t.Fatalf("expected validation failure for %+v", tc.cfg)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected validation failure: %v", err)
			}
		})
	}
}

func TestEmptyEntrySynthesis(t *testing.T) {
	at := time.Unix(7, 0).UTC()
	e, err := EmptyEntry("comp", "round", "contestant", at)
	if err != nil {
		t.Fatalf("empty entry: %v", err)
	}
	if e.Key != "comp::round::contestant" {
		t.Fatalf("unexpected key %s", e.Key)
	}
	if e.Scored() {
		t.Fatalf("expected synthesized entry to be unscored")
	}
	if e.Note != "" || e.Link != "" || e.AssetID != "" {
		t.Fatalf("expected synthesized entry to carry no note, link or asset")
	}
	if !e.UpdatedAt.Equal(at) {
		t.Fatalf("expected updatedAt %v, got %v", at, e.UpdatedAt)
	}
}

func TestEmptyEntryRejectsDelimiterInIDs(t *testing.T) {
	if _, err := EmptyEntry("comp::x", "round", "contestant", time.Now().UTC()); err == nil {
		t.Fatalf("expected delimiter collision to fail")
	}
}
