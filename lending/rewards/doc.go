// Package rewards is the point-accounting logic triggered by loan lifecycle
// events, plus the leaderboard ranking policy.
//
// It is pure: a fixed event kind -> point delta mapping with no decay, no
// caps and no negative adjustments. The deltas are applied by the lending
// Engine inside the same unit of work as the triggering borrow or return.
package rewards
