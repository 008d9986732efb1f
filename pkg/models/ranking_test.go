package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func intPtr(v int) *int { return &v }

func TestTally(t *testing.T) {
	votes := []Vote{
		{UserID: "a", Value: 1},
		{UserID: "b", Value: 1},
		{UserID: "c", Value: -1},
	}

	assert.Equal(t, VoteResult{VoteCount: 1, UserVote: intPtr(-1)}, Tally(votes, "c"))
	assert.Equal(t, VoteResult{VoteCount: 1}, Tally(votes, "z"))
	assert.Equal(t, VoteResult{VoteCount: 1}, Tally(votes, ""))
	assert.Equal(t, VoteResult{}, Tally(nil, "a"))
}

func TestSortSongs(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	songs := []Song{
		{ID: "late-zero", VoteCount: 0, AddedAt: base.Add(3 * time.Minute)},
		{ID: "top", VoteCount: 5, AddedAt: base.Add(4 * time.Minute)},
		{ID: "early-zero", VoteCount: 0, AddedAt: base.Add(time.Minute)},
		{ID: "negative", VoteCount: -2, AddedAt: base},
	}

	SortSongs(songs)

	var ids []string
	for _, s := range songs {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"top", "early-zero", "late-zero", "negative"}, ids)
}
