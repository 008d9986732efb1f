package queue

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collab-room-system/internal/apperr"
	"github.com/collab-room-system/pkg/models"
)

type fakeQueueRepo struct {
	locked  []string
	rooms   map[string]*models.Room
	users   map[string]bool
	songs   map[string]*models.Song
	entries map[string]*models.QueueEntry
}

func newFakeQueueRepo() *fakeQueueRepo {
	return &fakeQueueRepo{
		rooms:   make(map[string]*models.Room),
		users:   make(map[string]bool),
		songs:   make(map[string]*models.Song),
		entries: make(map[string]*models.QueueEntry),
	}
}

func (r *fakeQueueRepo) Transaction(ctx context.Context, fn func(Repository) error) error {
	return fn(r)
}

func (r *fakeQueueRepo) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	room, ok := r.rooms[roomID]
	if !ok {
		return nil, apperr.NotFound("room")
	}
	return room, nil
}

func (r *fakeQueueRepo) LockRoom(ctx context.Context, roomID string) (*models.Room, error) {
	room, err := r.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	r.locked = append(r.locked, roomID)
	return room, nil
}

func (r *fakeQueueRepo) UserExists(ctx context.Context, userID string) (bool, error) {
	return r.users[userID], nil
}

func (r *fakeQueueRepo) GetSong(ctx context.Context, songID string) (*models.Song, error) {
	song, ok := r.songs[songID]
	if !ok {
		return nil, apperr.NotFound("song")
	}
	return song, nil
}

func (r *fakeQueueRepo) GetEntry(ctx context.Context, roomID, entryID string) (*models.QueueEntry, error) {
	e, ok := r.entries[entryID]
	if !ok || e.RoomID != roomID {
		return nil, apperr.NotFound("queue entry")
	}
	copied := *e
	return &copied, nil
}

func (r *fakeQueueRepo) GetEntryAt(ctx context.Context, roomID string, position int) (*models.QueueEntry, error) {
	for _, e := range r.entries {
		if e.RoomID == roomID && e.Position == position {
			copied := *e
			return &copied, nil
		}
	}
	return nil, apperr.NotFound("queue entry")
}

func (r *fakeQueueRepo) MaxPosition(ctx context.Context, roomID string) (int, error) {
	max := 0
	for _, e := range r.entries {
		if e.RoomID == roomID && e.Position > max {
			max = e.Position
		}
	}
	return max, nil
}

func (r *fakeQueueRepo) CountEntries(ctx context.Context, roomID string) (int, error) {
	n := 0
	for _, e := range r.entries {
		if e.RoomID == roomID {
			n++
		}
	}
	return n, nil
}

func (r *fakeQueueRepo) CreateEntry(ctx context.Context, entry *models.QueueEntry) error {
	copied := *entry
	r.entries[entry.ID] = &copied
	return nil
}

func (r *fakeQueueRepo) DeleteEntry(ctx context.Context, entryID string) error {
	delete(r.entries, entryID)
	return nil
}

func (r *fakeQueueRepo) ShiftPositions(ctx context.Context, roomID string, from, to, delta int) error {
	for _, e := range r.entries {
		if e.RoomID == roomID && e.Position >= from && e.Position <= to {
			e.Position += delta
		}
	}
	return nil
}

func (r *fakeQueueRepo) SetPosition(ctx context.Context, entryID string, position int) error {
	r.entries[entryID].Position = position
	return nil
}

func (r *fakeQueueRepo) DeleteRoomEntries(ctx context.Context, roomID string) error {
	for id, e := range r.entries {
		if e.RoomID == roomID {
			delete(r.entries, id)
		}
	}
	return nil
}

func (r *fakeQueueRepo) ListEntries(ctx context.Context, roomID string) ([]models.QueueEntry, error) {
	var out []models.QueueEntry
	for _, e := range r.entries {
		if e.RoomID == roomID {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func setup(t *testing.T) (*Service, *fakeQueueRepo) {
	t.Helper()
	repo := newFakeQueueRepo()
	repo.rooms["r1"] = &models.Room{ID: "r1", HostID: "host"}
	repo.rooms["r2"] = &models.Room{ID: "r2", HostID: "host"}
	for _, u := range []string{"host", "u1", "u2"} {
		repo.users[u] = true
	}
	for _, id := range []string{"A", "B", "C", "D"} {
		repo.songs[id] = &models.Song{ID: id, RoomID: "r1"}
	}
	repo.songs["X"] = &models.Song{ID: "X", RoomID: "r2"}
	return NewService(repo), repo
}

// order returns song ids of the room queue in position order.
func order(t *testing.T, svc *Service, roomID string) []string {
	t.Helper()
	entries, err := svc.List(context.Background(), roomID)
	require.NoError(t, err)
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.SongID)
	}
	return ids
}

func assertDense(t *testing.T, repo *fakeQueueRepo, roomID string) {
	t.Helper()
	entries, _ := repo.ListEntries(context.Background(), roomID)
	for i, e := range entries {
		require.Equal(t, i+1, e.Position, "positions %v", entries)
	}
}

func enqueueAll(t *testing.T, svc *Service, userID string, songIDs ...string) []*models.QueueEntry {
	t.Helper()
	var out []*models.QueueEntry
	for _, id := range songIDs {
		e, err := svc.Enqueue(context.Background(), "r1", id, userID)
		require.NoError(t, err)
		out = append(out, e)
	}
	return out
}

func TestEnqueue_AssignsNextPosition(t *testing.T) {
	svc, _ := setup(t)
	entries := enqueueAll(t, svc, "u1", "A", "B", "C")

	for i, e := range entries {
		assert.Equal(t, i+1, e.Position)
		assert.Equal(t, models.QueueStatusQueued, e.Status)
	}
}

func TestEnqueue_Errors(t *testing.T) {
	tests := []struct {
		name   string
		roomID string
		songID string
		userID string
		want   error
	}{
		{"unknown room", "nope", "A", "u1", apperr.ErrNotFound},
		{"unknown user", "r1", "A", "ghost", apperr.ErrNotFound},
		{"unknown song", "r1", "Z", "u1", apperr.ErrNotFound},
		{"song from another room", "r1", "X", "u1", apperr.ErrNotFound},
		{"missing user", "r1", "A", "", apperr.ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo := setup(t)
			_, err := svc.Enqueue(context.Background(), tt.roomID, tt.songID, tt.userID)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.Empty(t, repo.entries)
		})
	}
}

func TestMove_ToBack(t *testing.T) {
	svc, repo := setup(t)
	entries := enqueueAll(t, svc, "u1", "A", "B", "C")

	require.NoError(t, svc.Move(context.Background(), "r1", entries[0].ID, 3, "u1"))
	assert.Equal(t, []string{"B", "C", "A"}, order(t, svc, "r1"))
	assertDense(t, repo, "r1")
}

func TestMove_ToFront(t *testing.T) {
	svc, repo := setup(t)
	entries := enqueueAll(t, svc, "u1", "A", "B", "C", "D")

	require.NoError(t, svc.Move(context.Background(), "r1", entries[3].ID, 2, "u1"))
	assert.Equal(t, []string{"A", "D", "B", "C"}, order(t, svc, "r1"))
	assertDense(t, repo, "r1")
}

func TestMoveFrom(t *testing.T) {
	svc, _ := setup(t)
	enqueueAll(t, svc, "u1", "A", "B", "C")

	require.NoError(t, svc.MoveFrom(context.Background(), "r1", 3, 1, "u1"))
	assert.Equal(t, []string{"C", "A", "B"}, order(t, svc, "r1"))

	err := svc.MoveFrom(context.Background(), "r1", 9, 1, "u1")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestMove_Errors(t *testing.T) {
	svc, _ := setup(t)
	entries := enqueueAll(t, svc, "u1", "A", "B")
	ctx := context.Background()

	err := svc.Move(ctx, "r1", entries[0].ID, 0, "u1")
	assert.True(t, errors.Is(err, apperr.ErrInvalidArgument))

	err = svc.Move(ctx, "r1", entries[0].ID, 3, "u1")
	assert.True(t, errors.Is(err, apperr.ErrInvalidArgument))

	err = svc.Move(ctx, "r1", "missing", 1, "u1")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	err = svc.Move(ctx, "r1", entries[0].ID, 2, "u2")
	assert.True(t, errors.Is(err, apperr.ErrForbidden))

	// entry exists but in another room
	err = svc.Move(ctx, "r2", entries[0].ID, 1, "u1")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	assert.Equal(t, []string{"A", "B"}, order(t, svc, "r1"))
}

func TestDequeue_RenumbersLaterEntries(t *testing.T) {
	svc, repo := setup(t)
	entries := enqueueAll(t, svc, "u1", "A", "B", "C", "D")

	require.NoError(t, svc.Dequeue(context.Background(), "r1", entries[1].ID, "u1"))
	assert.Equal(t, []string{"A", "C", "D"}, order(t, svc, "r1"))
	assertDense(t, repo, "r1")
}

func TestDequeue_ForbiddenForOtherUser(t *testing.T) {
	svc, _ := setup(t)
	entries := enqueueAll(t, svc, "u1", "A", "B")

	err := svc.Dequeue(context.Background(), "r1", entries[0].ID, "u2")
	assert.True(t, errors.Is(err, apperr.ErrForbidden))
	assert.Equal(t, []string{"A", "B"}, order(t, svc, "r1"))

	err = svc.Dequeue(context.Background(), "r1", "missing", "u2")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestClear(t *testing.T) {
	svc, repo := setup(t)
	enqueueAll(t, svc, "u1", "A", "B")
	_, err := svc.Enqueue(context.Background(), "r2", "X", "u1")
	require.NoError(t, err)
	ctx := context.Background()

	err = svc.Clear(ctx, "r1", "u1")
	assert.True(t, errors.Is(err, apperr.ErrForbidden))
	assert.Len(t, order(t, svc, "r1"), 2)

	require.NoError(t, svc.Clear(ctx, "r1", "host"))
	assert.Empty(t, order(t, svc, "r1"))
	assert.Len(t, repo.entries, 1, "other rooms are untouched")

	err = svc.Clear(ctx, "nope", "host")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestMutations_LockTheRoomRow(t *testing.T) {
	svc, repo := setup(t)
	ctx := context.Background()
	entries := enqueueAll(t, svc, "u1", "A", "B")

	require.NoError(t, svc.Move(ctx, "r1", entries[0].ID, 2, "u1"))
	require.NoError(t, svc.MoveFrom(ctx, "r1", 2, 1, "u1"))
	require.NoError(t, svc.Dequeue(ctx, "r1", entries[1].ID, "u1"))
	require.NoError(t, svc.Clear(ctx, "r1", "host"))
	assert.Equal(t, []string{"r1", "r1", "r1", "r1", "r1", "r1"}, repo.locked)

	_, err := svc.List(ctx, "r1")
	require.NoError(t, err)
	assert.Len(t, repo.locked, 6, "reads take no lock")

	err = svc.Dequeue(ctx, "missing", entries[0].ID, "u1")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestQueue_StaysDenseUnderRandomOperations(t *testing.T) {
	svc, repo := setup(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))
	songs := []string{"A", "B", "C", "D"}

	for i := 0; i < 300; i++ {
		entries, err := svc.List(ctx, "r1")
		require.NoError(t, err)

		switch op := rng.Intn(3); {
		case op == 0 || len(entries) == 0:
			_, err = svc.Enqueue(ctx, "r1", songs[rng.Intn(len(songs))], "u1")
		case op == 1:
			e := entries[rng.Intn(len(entries))]
			err = svc.Dequeue(ctx, "r1", e.ID, "u1")
		default:
			e := entries[rng.Intn(len(entries))]
			err = svc.Move(ctx, "r1", e.ID, 1+rng.Intn(len(entries)), "u1")
		}
		require.NoError(t, err, fmt.Sprintf("step %d", i))
		assertDense(t, repo, "r1")
	}
}
