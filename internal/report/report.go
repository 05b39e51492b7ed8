// Package report aggregates the award ledger into scoreboards.
package report

import (
	"sort"

	"kudosbot/internal/domain"
)

// Leader is one scoreboard row.
type Leader struct {
	Awardee           string  `json:"awardee"`
	Awards            int     `json:"awards"`
	EarliestAwardTime float64 `json:"earliest_award_time"`
}

// ByAwardee groups awards by the awarded comment's author.
func ByAwardee(awards []domain.Award) map[string][]domain.Award {
	out := map[string][]domain.Award{}
	for _, a := range awards {
		out[a.AwardedCommentAuthor] = append(out[a.AwardedCommentAuthor], a)
	}
	return out
}

// TopAwardees ranks awardees by award count, descending. Ties go to whoever
// earned their first point earliest. n <= 0 returns the whole board.
func TopAwardees(awards []domain.Award, n int) []Leader {
	grouped := ByAwardee(awards)
	leaders := make([]Leader, 0, len(grouped))
	for awardee, list := range grouped {
		earliest := list[0].AwardingCommentTime
		for _, a := range list[1:] {
			if a.AwardingCommentTime < earliest {
				earliest = a.AwardingCommentTime
			}
		}
		leaders = append(leaders, Leader{Awardee: awardee, Awards: len(list), EarliestAwardTime: earliest})
	}
	sort.Slice(leaders, func(i, j int) bool {
		if leaders[i].Awards != leaders[j].Awards {
			return leaders[i].Awards > leaders[j].Awards
		}
		if leaders[i].EarliestAwardTime != leaders[j].EarliestAwardTime {
			return leaders[i].EarliestAwardTime < leaders[j].EarliestAwardTime
		}
		return leaders[i].Awardee < leaders[j].Awardee
	})
	if n > 0 && len(leaders) > n {
		leaders = leaders[:n]
	}
	return leaders
}
