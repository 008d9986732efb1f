package vote

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collab-room-system/internal/apperr"
	"github.com/collab-room-system/pkg/models"
)

type fakeVoteRepo struct {
	songs map[string]*models.Song
	users map[string]bool
	votes map[string]*models.Vote
}

func newFakeVoteRepo() *fakeVoteRepo {
	return &fakeVoteRepo{
		songs: make(map[string]*models.Song),
		users: make(map[string]bool),
		votes: make(map[string]*models.Vote),
	}
}

func (r *fakeVoteRepo) Transaction(ctx context.Context, fn func(Repository) error) error {
	return fn(r)
}

func (r *fakeVoteRepo) GetSong(ctx context.Context, songID string) (*models.Song, error) {
	song, ok := r.songs[songID]
	if !ok {
		return nil, apperr.NotFound("song")
	}
	return song, nil
}

func (r *fakeVoteRepo) UserExists(ctx context.Context, userID string) (bool, error) {
	return r.users[userID], nil
}

func (r *fakeVoteRepo) GetVote(ctx context.Context, songID, userID string) (*models.Vote, error) {
	for _, v := range r.votes {
		if v.SongID == songID && v.UserID == userID {
			copied := *v
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakeVoteRepo) CreateVote(ctx context.Context, vote *models.Vote) error {
	for _, v := range r.votes {
		if v.SongID == vote.SongID && v.UserID == vote.UserID {
			return apperr.Conflict("duplicate vote")
		}
	}
	copied := *vote
	r.votes[vote.ID] = &copied
	return nil
}

func (r *fakeVoteRepo) UpdateVoteValue(ctx context.Context, voteID string, value int, castAt time.Time) error {
	v, ok := r.votes[voteID]
	if !ok {
		return apperr.NotFound("vote")
	}
	v.Value = value
	v.CastAt = castAt
	return nil
}

func (r *fakeVoteRepo) DeleteVote(ctx context.Context, voteID string) error {
	delete(r.votes, voteID)
	return nil
}

func (r *fakeVoteRepo) DeleteUserVote(ctx context.Context, songID, userID string) error {
	for id, v := range r.votes {
		if v.SongID == songID && v.UserID == userID {
			delete(r.votes, id)
		}
	}
	return nil
}

func (r *fakeVoteRepo) ListVotes(ctx context.Context, songID string) ([]models.Vote, error) {
	var out []models.Vote
	for _, v := range r.votes {
		if v.SongID == songID {
			out = append(out, *v)
		}
	}
	return out, nil
}

func (r *fakeVoteRepo) sum(songID string) int {
	total := 0
	for _, v := range r.votes {
		if v.SongID == songID {
			total += v.Value
		}
	}
	return total
}

func setup() (*Service, *fakeVoteRepo) {
	repo := newFakeVoteRepo()
	repo.songs["s1"] = &models.Song{ID: "s1", RoomID: "r1"}
	repo.users["u1"] = true
	repo.users["u2"] = true
	return NewService(repo), repo
}

func intPtr(v int) *int { return &v }

func TestCast_Scenario(t *testing.T) {
	svc, _ := setup()
	ctx := context.Background()

	res, err := svc.Cast(ctx, "s1", "u1", 1)
	require.NoError(t, err)
	assert.Equal(t, models.VoteResult{VoteCount: 1, UserVote: intPtr(1)}, res)

	res, err = svc.Cast(ctx, "s1", "u2", -1)
	require.NoError(t, err)
	assert.Equal(t, models.VoteResult{VoteCount: 0, UserVote: intPtr(-1)}, res)

	res, err = svc.Cast(ctx, "s1", "u1", 1)
	require.NoError(t, err)
	assert.Equal(t, -1, res.VoteCount)
	assert.Nil(t, res.UserVote)
}

func TestCast_ToggleTwiceRetracts(t *testing.T) {
	for _, value := range []int{1, -1} {
		svc, repo := setup()
		ctx := context.Background()

		single, err := svc.Cast(ctx, "s1", "u1", value)
		require.NoError(t, err)

		twice, err := svc.Cast(ctx, "s1", "u1", value)
		require.NoError(t, err)

		assert.Nil(t, twice.UserVote)
		assert.Equal(t, single.VoteCount-value, twice.VoteCount)
		assert.Empty(t, repo.votes)
	}
}

func TestCast_ChangesValueInPlace(t *testing.T) {
	svc, repo := setup()
	ctx := context.Background()

	_, err := svc.Cast(ctx, "s1", "u1", 1)
	require.NoError(t, err)
	res, err := svc.Cast(ctx, "s1", "u1", -1)
	require.NoError(t, err)

	assert.Equal(t, models.VoteResult{VoteCount: -1, UserVote: intPtr(-1)}, res)
	assert.Len(t, repo.votes, 1)
}

func TestCast_Errors(t *testing.T) {
	tests := []struct {
		name   string
		songID string
		userID string
		value  int
		want   error
	}{
		{"zero value", "s1", "u1", 0, apperr.ErrInvalidArgument},
		{"value too large", "s1", "u1", 2, apperr.ErrInvalidArgument},
		{"missing user id", "s1", "", 1, apperr.ErrInvalidArgument},
		{"unknown song", "nope", "u1", 1, apperr.ErrNotFound},
		{"unknown user", "s1", "ghost", 1, apperr.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo := setup()
			_, err := svc.Cast(context.Background(), tt.songID, tt.userID, tt.value)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.Empty(t, repo.votes)
		})
	}
}

func TestRemove(t *testing.T) {
	svc, repo := setup()
	ctx := context.Background()

	_, err := svc.Cast(ctx, "s1", "u1", 1)
	require.NoError(t, err)
	_, err = svc.Cast(ctx, "s1", "u2", 1)
	require.NoError(t, err)

	res, err := svc.Remove(ctx, "s1", "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.VoteCount)
	assert.Nil(t, res.UserVote)

	// removing a vote that does not exist is a no-op
	res, err = svc.Remove(ctx, "s1", "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.VoteCount)
	assert.Len(t, repo.votes, 1)

	_, err = svc.Remove(ctx, "missing", "u1")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestAggregate_MatchesRowSum(t *testing.T) {
	svc, repo := setup()
	ctx := context.Background()
	for i := 3; i <= 6; i++ {
		repo.users[string(rune('a'+i))] = true
	}

	ops := []struct {
		user  string
		value int
		undo  bool
	}{
		{"u1", 1, false}, {"u2", -1, false}, {"d", -1, false}, {"e", 1, false},
		{"u1", -1, false}, {"d", 0, true}, {"f", 1, false}, {"f", 1, false}, {"g", -1, false},
	}
	for _, op := range ops {
		var err error
		if op.undo {
			_, err = svc.Remove(ctx, "s1", op.user)
		} else {
			_, err = svc.Cast(ctx, "s1", op.user, op.value)
		}
		require.NoError(t, err)

		res, err := svc.Aggregate(ctx, "s1", "")
		require.NoError(t, err)
		assert.Equal(t, repo.sum("s1"), res.VoteCount)
		assert.Nil(t, res.UserVote)
	}

	res, err := svc.Aggregate(ctx, "s1", "u1")
	require.NoError(t, err)
	assert.Equal(t, intPtr(-1), res.UserVote)
}
