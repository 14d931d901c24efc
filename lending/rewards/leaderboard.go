package rewards

import (
	"sort"
)

// LeaderboardLimit is the maximum number of leaderboard entries.
const LeaderboardLimit = 10

// Entry is one leaderboard row. Seq is the student's insertion sequence,
// which breaks point ties in favor of earlier registrations.
type Entry struct {
	UID    string
	Points int
	Seq    int64
}

// Rank filters out students without points, orders the rest by points
// descending (ties by insertion sequence) and cuts the result to limit.
// The input slice is not modified.
func Rank(entries []Entry, limit int) []Entry {
	ranked := make([]Entry, 0, len(entries))

	for _, entry := range entries {
		if entry.Points > 0 {
			ranked = append(ranked, entry)
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Points != ranked[j].Points {
			return ranked[i].Points > ranked[j].Points
		}

		return ranked[i].Seq < ranked[j].Seq
	})

	if limit >= 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}

	return ranked
}
