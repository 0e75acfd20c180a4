package domain

import (
	"math"
	"time"
)

// remapScale fixes remapped scores to four decimal places, enough for any
// sensible step while absorbing float drift from the normalize/map arithmetic.
const remapScale = 1e4

// RemapScore rescales a score recorded under old bounds into new bounds:
// normalize into [0,1] (0 when the old range is degenerate), map into the new
// range, quantize to the nearest step multiple anchored at the new minimum,
// round to fixed precision and clamp. The transform is lossy and only
// approximately order-preserving under coarse quantization.
func RemapScore(oldCfg, newCfg ScoringConfig, score float64) float64 {
	t := 0.0
	if span := oldCfg.Span(); span > 0 {
		t = (score - oldCfg.Min) / span
	}
	v := newCfg.Min + t*newCfg.Span()
	if newCfg.Step > 0 {
		steps := math.Round((v - newCfg.Min) / newCfg.Step)
		v = newCfg.Min + steps*newCfg.Step
	}
	v = math.Round(v*remapScale) / remapScale
	return math.Min(math.Max(v, newCfg.Min), newCfg.Max)
}

// RemapEntries applies RemapScore to every scored entry and returns only the
// entries whose stored value actually changes, stamped at the given time.
// Repeating the remap with unchanged bounds therefore rewrites nothing.
func RemapEntries(entries []Entry, oldCfg, newCfg ScoringConfig, at time.Time) []Entry {
	var changed []Entry
	for _, e := range entries {
		if !e.Scored() {
			continue
		}
		remapped := RemapScore(oldCfg, newCfg, *e.Score)
		if remapped == *e.Score {
			continue
		}
		e.Score = &remapped
		e.UpdatedAt = at
		changed = append(changed, e)
	}
	return changed
}
