package domain

import (
	"fmt"
	"sort"
)

// StandingRow is one ranked leaderboard row.
type StandingRow struct {
	Contestant  Contestant `json:"contestant"`
	TotalScore  float64    `json:"totalScore"`
	ScoredCount int        `json:"scoredCount"`
	Progress    string     `json:"progress"`
}

// ComputeStandings ranks contestants over the supplied entries. Unscored
// entries contribute nothing to totals or counts. Rows sort by total score
// descending, then scored-count descending (consistency beats a few high
// scores), then contestant creation time ascending, then id, so the result is
// deterministic regardless of input order.
func ComputeStandings(contestants []Contestant, entries []Entry, totalRounds int) []StandingRow {
	type stats struct {
		total float64
		count int
	}
	byContestant := make(map[string]*stats, len(contestants))
	for _, c := range contestants {
		byContestant[c.ID] = &stats{}
	}
	for _, e := range entries {
		st, ok := byContestant[e.ContestantID]
		if !ok || !e.Scored() {
			continue
		}
		st.total += *e.Score
		st.count++
	}

	rows := make([]StandingRow, 0, len(contestants))
	for _, c := range contestants {
		st := byContestant[c.ID]
		rows = append(rows, StandingRow{
			Contestant:  c,
			TotalScore:  st.total,
			ScoredCount: st.count,
			Progress:    fmt.Sprintf("%d / %d", st.count, totalRounds),
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.TotalScore != b.TotalScore {
			return a.TotalScore > b.TotalScore
		}
		if a.ScoredCount != b.ScoredCount {
			return a.ScoredCount > b.ScoredCount
		}
		if !a.Contestant.CreatedAt.Equal(b.Contestant.CreatedAt) {
			return a.Contestant.CreatedAt.Before(b.Contestant.CreatedAt)
		}
		return a.Contestant.ID < b.Contestant.ID
	})
	return rows
}
