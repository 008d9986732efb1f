package client

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collab-room-system/pkg/events"
	"github.com/collab-room-system/pkg/models"
)

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func intPtr(v int) *int { return &v }

func frame(t *testing.T, roomID string, p events.Payload) []byte {
	t.Helper()
	ev, err := events.New(roomID, p)
	require.NoError(t, err)
	data, err := ev.Frame()
	require.NoError(t, err)
	return data
}

func songIDs(songs []models.Song) []string {
	ids := make([]string, 0, len(songs))
	for _, s := range songs {
		ids = append(ids, s.ID)
	}
	return ids
}

func seeded(t *testing.T) *State {
	t.Helper()
	s := NewState("me")
	s.Resync(&models.Room{
		ID:   "r1",
		Name: "Friday",
		Songs: []models.Song{
			{ID: "a", AddedAt: base, VoteCount: 1},
			{ID: "b", AddedAt: base.Add(time.Minute), VoteCount: 1, UserVote: intPtr(1)},
			{ID: "c", AddedAt: base.Add(2 * time.Minute)},
		},
		Queue: []models.QueueEntry{
			{ID: "q2", Position: 2},
			{ID: "q1", Position: 1},
		},
	})
	return s
}

func TestState_Resync(t *testing.T) {
	s := seeded(t)

	assert.Equal(t, "r1", s.RoomID())
	assert.Equal(t, "Friday", s.Room().Name)
	assert.Empty(t, s.Room().Songs)
	assert.Equal(t, []string{"a", "b", "c"}, songIDs(s.Songs()))
	assert.Equal(t, "q1", s.Queue()[0].ID)
}

func TestState_ResyncSumsRawVotes(t *testing.T) {
	s := NewState("me")
	s.Resync(&models.Room{
		ID: "r1",
		Songs: []models.Song{
			{ID: "a", AddedAt: base},
			{ID: "b", AddedAt: base.Add(time.Minute), Votes: []models.Vote{
				{UserID: "me", Value: 1},
				{UserID: "u2", Value: 1},
			}},
		},
	})

	songs := s.Songs()
	assert.Equal(t, []string{"b", "a"}, songIDs(songs))
	assert.Equal(t, 2, songs[0].VoteCount)
	require.NotNil(t, songs[0].UserVote)
	assert.Equal(t, 1, *songs[0].UserVote)
}

func TestState_VoteUpdatedServerWins(t *testing.T) {
	s := seeded(t)

	// someone else's vote moves the count but not our own vote
	require.NoError(t, s.Apply(frame(t, "r1", events.VoteUpdatedPayload{
		SongID:     "c",
		UserID:     "u2",
		VoteResult: models.VoteResult{VoteCount: 5, UserVote: intPtr(1)},
	})))
	songs := s.Songs()
	assert.Equal(t, []string{"c", "a", "b"}, songIDs(songs))
	assert.Equal(t, 5, songs[0].VoteCount)
	assert.Nil(t, songs[0].UserVote)

	// our own optimistic guess is replaced by the server's answer
	_, err := s.ToggleVote("a", 1)
	require.NoError(t, err)
	require.NoError(t, s.Apply(frame(t, "r1", events.VoteUpdatedPayload{
		SongID:     "a",
		UserID:     "me",
		VoteResult: models.VoteResult{VoteCount: 7, UserVote: intPtr(1)},
	})))
	songs = s.Songs()
	assert.Equal(t, "a", songs[0].ID)
	assert.Equal(t, 7, songs[0].VoteCount)
	require.NotNil(t, songs[0].UserVote)
	assert.Equal(t, 1, *songs[0].UserVote)
}

func TestState_TieBreakKeepsInsertionOrder(t *testing.T) {
	s := seeded(t)

	require.NoError(t, s.Apply(frame(t, "r1", events.VoteUpdatedPayload{
		SongID:     "c",
		UserID:     "u2",
		VoteResult: models.VoteResult{VoteCount: 1},
	})))
	assert.Equal(t, []string{"a", "b", "c"}, songIDs(s.Songs()))
}

func TestState_ToggleVote(t *testing.T) {
	s := seeded(t)

	res, err := s.ToggleVote("c", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, res.VoteCount)
	assert.Equal(t, 1, *res.UserVote)

	res, err = s.ToggleVote("c", 1)
	require.NoError(t, err)
	assert.Equal(t, 0, res.VoteCount)
	assert.Nil(t, res.UserVote)

	// switching from +1 to -1 moves the count by two
	res, err = s.ToggleVote("b", -1)
	require.NoError(t, err)
	assert.Equal(t, -1, res.VoteCount)
	assert.Equal(t, -1, *res.UserVote)
	assert.Equal(t, []string{"a", "c", "b"}, songIDs(s.Songs()))

	_, err = s.ToggleVote("missing", 1)
	assert.True(t, errors.Is(err, ErrSongNotFound))
	_, err = s.ToggleVote("a", 2)
	assert.Error(t, err)
}

func TestState_SongAddedHandlesBothShapes(t *testing.T) {
	s := seeded(t)

	// "x" carries a server count and rows, "y" rows only; equal scores fall
	// back to the earlier addition
	raw := []byte(`{
		"type": "songAdded",
		"roomId": "r1",
		"room": {
			"id": "r1",
			"name": "Friday",
			"songs": [
				{"id": "x", "addedAt": "2024-05-01T12:01:00Z", "voteCount": 3, "userVote": null,
				 "votes": [{"userId": "me", "voteValue": 1}]},
				{"id": "y", "addedAt": "2024-05-01T12:00:00Z",
				 "votes": [{"userId": "me", "voteValue": -1}, {"userId": "u2", "voteValue": 1}, {"userId": "u3", "voteValue": 1}, {"userId": "u4", "voteValue": 1}, {"userId": "u5", "voteValue": 1}]}
			]
		}
	}`)
	require.NoError(t, s.Apply(raw))

	songs := s.Songs()
	require.Len(t, songs, 2)
	assert.Equal(t, "y", songs[0].ID)
	assert.Equal(t, 3, songs[0].VoteCount)
	require.NotNil(t, songs[0].UserVote)
	assert.Equal(t, -1, *songs[0].UserVote)

	assert.Equal(t, "x", songs[1].ID)
	assert.Equal(t, 3, songs[1].VoteCount, "server count wins over the rows' sum")
	require.NotNil(t, songs[1].UserVote, "own vote comes from the rows, not the wire userVote")
	assert.Equal(t, 1, *songs[1].UserVote)
}

func TestState_OtherUsersSnapshotKeepsOwnVote(t *testing.T) {
	s := NewState("u1")
	s.Resync(&models.Room{
		ID: "r1",
		Songs: []models.Song{
			{ID: "s1", AddedAt: base, Votes: []models.Vote{{SongID: "s1", UserID: "u1", Value: 1}}},
		},
	})
	songs := s.Songs()
	require.NotNil(t, songs[0].UserVote)

	// u2 adds a song; the broadcast room is not built for any viewer
	require.NoError(t, s.Apply(frame(t, "r1", events.SongAddedPayload{Room: &models.Room{
		ID: "r1",
		Songs: []models.Song{
			{ID: "s1", AddedAt: base, VoteCount: 1, Votes: []models.Vote{{SongID: "s1", UserID: "u1", Value: 1}}},
			{ID: "s2", AddedAt: base.Add(time.Minute), AddedByUserID: "u2"},
		},
	}})))

	songs = s.Songs()
	require.Equal(t, []string{"s1", "s2"}, songIDs(songs))
	assert.Equal(t, 1, songs[0].VoteCount)
	require.NotNil(t, songs[0].UserVote)
	assert.Equal(t, 1, *songs[0].UserVote)

	// toggling the same value again retracts it
	res, err := s.ToggleVote("s1", 1)
	require.NoError(t, err)
	assert.Equal(t, 0, res.VoteCount)
	assert.Nil(t, res.UserVote)
}

func TestState_QueueEvents(t *testing.T) {
	s := seeded(t)

	require.NoError(t, s.Apply(frame(t, "r1", events.SongAddedPayload{
		QueueItem: &models.QueueEntry{ID: "q3", Position: 3},
	})))
	assert.Len(t, s.Queue(), 3)

	require.NoError(t, s.Apply(frame(t, "r1", events.SongRemovedPayload{QueueID: "q1"})))
	queue := s.Queue()
	require.Len(t, queue, 2)
	assert.Equal(t, "q2", queue[0].ID)
	assert.Equal(t, 1, queue[0].Position)
	assert.Equal(t, 2, queue[1].Position)

	require.NoError(t, s.Apply(frame(t, "r1", events.QueueReorderedPayload{
		Queue: []models.QueueEntry{{ID: "q3", Position: 1}, {ID: "q2", Position: 2}},
	})))
	assert.Equal(t, "q3", s.Queue()[0].ID)

	require.NoError(t, s.Apply(frame(t, "r1", events.QueueClearedPayload{})))
	assert.Empty(t, s.Queue())
}

func TestState_RoomLifecycle(t *testing.T) {
	s := seeded(t)

	require.NoError(t, s.Apply(frame(t, "r1", events.SongRemovedPayload{SongID: "b"})))
	assert.Equal(t, []string{"a", "c"}, songIDs(s.Songs()))

	state := models.PlaybackState{IsPlaying: true, ControlledBy: "u2"}
	require.NoError(t, s.Apply(frame(t, "r1", events.PlaybackStatePayload{UserID: "u2", State: state})))
	require.NotNil(t, s.Playback())
	assert.True(t, s.Playback().IsPlaying)

	require.NoError(t, s.Apply(frame(t, "r1", events.PlaybackControlPayload{UserID: "u2", Action: "pause"})))
	assert.Equal(t, "pause", s.LastCommand().Action)

	require.NoError(t, s.Apply(frame(t, "r1", events.RoomDeletedPayload{ID: "r1"})))
	assert.True(t, s.Deleted())
}

func TestState_IgnoresOtherRooms(t *testing.T) {
	s := seeded(t)

	require.NoError(t, s.Apply(frame(t, "r2", events.QueueClearedPayload{})))
	assert.Len(t, s.Queue(), 2)
}

func TestState_ErrorFrames(t *testing.T) {
	s := seeded(t)

	err := s.Apply(frame(t, "r1", events.ErrorPayload{Message: "room not found", Command: "joinRoom"}))
	var serverErr *ServerError
	require.True(t, errors.As(err, &serverErr))
	assert.Equal(t, "joinRoom: room not found", serverErr.Error())

	assert.Error(t, s.Apply([]byte(`not json`)))
}

func TestState_ResyncJSON(t *testing.T) {
	room := models.Room{
		ID:    "r1",
		Songs: []models.Song{{ID: "a", VoteCount: 2, UserVote: intPtr(1)}},
	}
	data, err := json.Marshal(room)
	require.NoError(t, err)

	s := NewState("me")
	require.NoError(t, s.ResyncJSON(data))
	songs := s.Songs()
	require.Len(t, songs, 1)
	assert.Equal(t, 2, songs[0].VoteCount)
	assert.Equal(t, 1, *songs[0].UserVote)
}
