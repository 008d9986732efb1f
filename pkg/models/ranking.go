package models

import "sort"

// Tally sums votes and picks out userID's own value. An empty userID never
// matches.
func Tally(votes []Vote, userID string) VoteResult {
	var result VoteResult
	for _, v := range votes {
		result.VoteCount += v.Value
		if userID != "" && v.UserID == userID {
			value := v.Value
			result.UserVote = &value
		}
	}
	return result
}

// SortSongs orders songs by score, highest first. Ties keep the earlier
// addition first.
func SortSongs(songs []Song) {
	sort.SliceStable(songs, func(i, j int) bool {
		if songs[i].VoteCount != songs[j].VoteCount {
			return songs[i].VoteCount > songs[j].VoteCount
		}
		return songs[i].AddedAt.Before(songs[j].AddedAt)
	})
}
