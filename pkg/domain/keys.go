package domain

import (
	"fmt"
	"strings"
)

// KeyDelimiter separates the three parts of an entry's composite key. It is
// reserved: no competition, round or contestant id may contain it.
const KeyDelimiter = "::"

// EntryKeyParts holds the decoded components of a composite entry key.
type EntryKeyParts struct {
	CompetitionID string
	RoundID       string
	ContestantID  string
}

// EncodeEntryKey builds the composite key addressing one score cell. It fails
// when any part contains the delimiter, which would make decoding ambiguous;
// such a call is a programming-contract violation, not a recoverable state.
func EncodeEntryKey(competitionID, roundID, contestantID string) (string, error) {
	for _, part := range []string{competitionID, roundID, contestantID} {
		if strings.Contains(part, KeyDelimiter) {
			return "", fmt.Errorf("entry key: part %q contains reserved delimiter %q", part, KeyDelimiter)
		}
	}
	return competitionID + KeyDelimiter + roundID + KeyDelimiter + contestantID, nil
}

// DecodeEntryKey splits a composite key back into its three parts, failing
// unless the split yields exactly three.
func DecodeEntryKey(key string) (EntryKeyParts, error) {
	parts := strings.Split(key, KeyDelimiter)
	if len(parts) != 3 {
		return EntryKeyParts{}, fmt.Errorf("entry key: %q does not split into exactly three parts", key)
	}
	return EntryKeyParts{
		CompetitionID: parts[0],
		RoundID:       parts[1],
		ContestantID:  parts[2],
	}, nil
}
