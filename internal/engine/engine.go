// Package engine turns every room mutation and its broadcast into a single
// step. Mutations on one room are serialized; different rooms run in
// parallel.
package engine

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	zlog "github.com/rs/zerolog/log"

	"github.com/collab-room-system/internal/apperr"
	"github.com/collab-room-system/internal/room"
	"github.com/collab-room-system/internal/roomlock"
	"github.com/collab-room-system/pkg/events"
	"github.com/collab-room-system/pkg/models"
)

// Broadcaster fans an event out to the subscribers of a room.
type Broadcaster interface {
	Publish(ctx context.Context, roomID string, p events.Payload) error
}

// PlaybackController drives a user's player. It returns apperr.ErrNoSession
// when the user has no provider credentials.
type PlaybackController interface {
	Apply(ctx context.Context, userID string, cmd models.PlaybackCommand) error
}

type Rooms interface {
	Create(ctx context.Context, code, name, hostID string) (*models.Room, error)
	Join(ctx context.Context, roomID, userID string, isGuest bool) (*models.Room, error)
	Leave(ctx context.Context, roomID, userID string) (*models.Room, error)
	Get(ctx context.Context, roomID, viewerID string) (*models.Room, error)
	ResolveCode(ctx context.Context, code string) (string, error)
	Update(ctx context.Context, roomID string, patch room.Patch) (*models.Room, error)
	Delete(ctx context.Context, roomID string) (string, error)
	AddSong(ctx context.Context, roomID string, track models.Track, userID string) (*models.Room, error)
	RemoveSong(ctx context.Context, roomID, songID, requesterID string) (*models.Room, error)
	Invalidate(ctx context.Context, roomID string)
}

type Queue interface {
	Enqueue(ctx context.Context, roomID, songID, userID string) (*models.QueueEntry, error)
	Dequeue(ctx context.Context, roomID, entryID, requesterID string) error
	Move(ctx context.Context, roomID, entryID string, to int, requesterID string) error
	MoveFrom(ctx context.Context, roomID string, from, to int, requesterID string) error
	Clear(ctx context.Context, roomID, requesterID string) error
	List(ctx context.Context, roomID string) ([]models.QueueEntry, error)
}

type Votes interface {
	SongRoom(ctx context.Context, songID string) (string, error)
	Cast(ctx context.Context, songID, userID string, value int) (models.VoteResult, error)
	Remove(ctx context.Context, songID, userID string) (models.VoteResult, error)
	Aggregate(ctx context.Context, songID, userID string) (models.VoteResult, error)
}

type Engine struct {
	locks    *roomlock.Locker
	rooms    Rooms
	queue    Queue
	votes    Votes
	hub      Broadcaster
	playback PlaybackController
	validate *validator.Validate
}

type Option func(*Engine)

func WithPlayback(p PlaybackController) Option {
	return func(e *Engine) { e.playback = p }
}

func New(rooms Rooms, queue Queue, votes Votes, hub Broadcaster, opts ...Option) *Engine {
	e := &Engine{
		locks:    roomlock.New(),
		rooms:    rooms,
		queue:    queue,
		votes:    votes,
		hub:      hub,
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// publish is best effort: the mutation is already committed.
func (e *Engine) publish(ctx context.Context, roomID string, p events.Payload) {
	if err := e.hub.Publish(ctx, roomID, p); err != nil {
		zlog.Warn().Err(err).
			Str("room_id", roomID).
			Str("event", string(p.EventType())).
			Msg("broadcast failed")
	}
}

func (e *Engine) CreateRoom(ctx context.Context, code, name, hostID string) (*models.Room, error) {
	if code != "" {
		unlock := e.locks.Lock("code:" + code)
		defer unlock()
	}
	return e.rooms.Create(ctx, code, name, hostID)
}

func (e *Engine) JoinRoom(ctx context.Context, roomID, userID string, isGuest bool) (*models.Room, error) {
	unlock := e.locks.Lock(roomID)
	defer unlock()

	rm, err := e.rooms.Join(ctx, roomID, userID, isGuest)
	if err != nil {
		return nil, err
	}
	e.publish(ctx, roomID, events.UserJoinedPayload{UserID: userID, Room: shared(rm)})
	return rm, nil
}

func (e *Engine) LeaveRoom(ctx context.Context, roomID, userID string) (*models.Room, error) {
	unlock := e.locks.Lock(roomID)
	defer unlock()

	rm, err := e.rooms.Leave(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}
	e.publish(ctx, roomID, events.UserLeftPayload{UserID: userID, Room: shared(rm)})
	return rm, nil
}

func (e *Engine) GetRoom(ctx context.Context, roomID, viewerID string) (*models.Room, error) {
	unlock := e.locks.RLock(roomID)
	defer unlock()
	return e.rooms.Get(ctx, roomID, viewerID)
}

func (e *Engine) GetRoomByCode(ctx context.Context, code, viewerID string) (*models.Room, error) {
	roomID, err := e.rooms.ResolveCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return e.GetRoom(ctx, roomID, viewerID)
}

func (e *Engine) UpdateRoom(ctx context.Context, roomID string, patch room.Patch) (*models.Room, error) {
	unlock := e.locks.Lock(roomID)
	defer unlock()

	rm, err := e.rooms.Update(ctx, roomID, patch)
	if err != nil {
		return nil, err
	}
	e.publish(ctx, roomID, events.RoomUpdatedPayload{Room: shared(rm)})
	return rm, nil
}

func (e *Engine) DeleteRoom(ctx context.Context, roomID string) (string, error) {
	unlock := e.locks.Lock(roomID)
	defer unlock()

	id, err := e.rooms.Delete(ctx, roomID)
	if err != nil {
		return "", err
	}
	e.publish(ctx, roomID, events.RoomDeletedPayload{ID: id})
	return id, nil
}

func (e *Engine) AddSong(ctx context.Context, roomID string, track models.Track, userID string) (*models.Room, error) {
	unlock := e.locks.Lock(roomID)
	defer unlock()

	rm, err := e.rooms.AddSong(ctx, roomID, track, userID)
	if err != nil {
		return nil, err
	}
	e.publish(ctx, roomID, events.SongAddedPayload{Room: shared(rm)})
	return rm, nil
}

func (e *Engine) RemoveSong(ctx context.Context, roomID, songID, requesterID string) (*models.Room, error) {
	unlock := e.locks.Lock(roomID)
	defer unlock()

	rm, err := e.rooms.RemoveSong(ctx, roomID, songID, requesterID)
	if err != nil {
		return nil, err
	}
	e.publish(ctx, roomID, events.SongRemovedPayload{SongID: songID, Room: shared(rm)})
	return rm, nil
}

func (e *Engine) Enqueue(ctx context.Context, roomID, songID, userID string) (*models.QueueEntry, error) {
	unlock := e.locks.Lock(roomID)
	defer unlock()

	entry, err := e.queue.Enqueue(ctx, roomID, songID, userID)
	if err != nil {
		return nil, err
	}
	e.rooms.Invalidate(ctx, roomID)
	e.publish(ctx, roomID, events.SongAddedPayload{QueueItem: entry})
	return entry, nil
}

func (e *Engine) Dequeue(ctx context.Context, roomID, entryID, requesterID string) error {
	unlock := e.locks.Lock(roomID)
	defer unlock()

	if err := e.queue.Dequeue(ctx, roomID, entryID, requesterID); err != nil {
		return err
	}
	e.rooms.Invalidate(ctx, roomID)
	e.publish(ctx, roomID, events.SongRemovedPayload{QueueID: entryID})
	e.publishQueue(ctx, roomID)
	return nil
}

// Move relocates a queue entry. A non-empty entryID wins over from.
func (e *Engine) Move(ctx context.Context, roomID, entryID string, from, to int, requesterID string) error {
	unlock := e.locks.Lock(roomID)
	defer unlock()

	var err error
	if entryID != "" {
		err = e.queue.Move(ctx, roomID, entryID, to, requesterID)
	} else {
		err = e.queue.MoveFrom(ctx, roomID, from, to, requesterID)
	}
	if err != nil {
		return err
	}
	e.rooms.Invalidate(ctx, roomID)
	e.publishQueue(ctx, roomID)
	return nil
}

func (e *Engine) ClearQueue(ctx context.Context, roomID, requesterID string) error {
	unlock := e.locks.Lock(roomID)
	defer unlock()

	if err := e.queue.Clear(ctx, roomID, requesterID); err != nil {
		return err
	}
	e.rooms.Invalidate(ctx, roomID)
	e.publish(ctx, roomID, events.QueueClearedPayload{})
	return nil
}

func (e *Engine) ListQueue(ctx context.Context, roomID string) ([]models.QueueEntry, error) {
	unlock := e.locks.RLock(roomID)
	defer unlock()
	return e.queue.List(ctx, roomID)
}

// shared copies a snapshot for broadcast. Counts and vote rows stay, the
// per-viewer userVote is cleared so receivers derive their own from the rows.
func shared(rm *models.Room) *models.Room {
	if rm == nil {
		return nil
	}
	out := *rm
	out.Songs = make([]models.Song, len(rm.Songs))
	copy(out.Songs, rm.Songs)
	for i := range out.Songs {
		out.Songs[i].UserVote = nil
	}
	return &out
}

// publishQueue sends the full queue after a structural change. Must be
// called with the room lock held.
func (e *Engine) publishQueue(ctx context.Context, roomID string) {
	entries, err := e.queue.List(ctx, roomID)
	if err != nil {
		zlog.Warn().Err(err).Str("room_id", roomID).Msg("failed to load queue for broadcast")
		return
	}
	e.publish(ctx, roomID, events.QueueReorderedPayload{Queue: entries})
}

func (e *Engine) CastVote(ctx context.Context, songID, userID string, value int) (models.VoteResult, error) {
	roomID, err := e.votes.SongRoom(ctx, songID)
	if err != nil {
		return models.VoteResult{}, err
	}
	unlock := e.locks.Lock(roomID)
	defer unlock()

	result, err := e.votes.Cast(ctx, songID, userID, value)
	if err != nil {
		return models.VoteResult{}, err
	}
	e.rooms.Invalidate(ctx, roomID)
	e.publish(ctx, roomID, events.VoteUpdatedPayload{SongID: songID, UserID: userID, VoteResult: result})
	return result, nil
}

func (e *Engine) RemoveVote(ctx context.Context, songID, userID string) (models.VoteResult, error) {
	roomID, err := e.votes.SongRoom(ctx, songID)
	if err != nil {
		return models.VoteResult{}, err
	}
	unlock := e.locks.Lock(roomID)
	defer unlock()

	result, err := e.votes.Remove(ctx, songID, userID)
	if err != nil {
		return models.VoteResult{}, err
	}
	e.rooms.Invalidate(ctx, roomID)
	e.publish(ctx, roomID, events.VoteUpdatedPayload{SongID: songID, UserID: userID, VoteResult: result})
	return result, nil
}

func (e *Engine) VoteAggregate(ctx context.Context, songID, userID string) (models.VoteResult, error) {
	roomID, err := e.votes.SongRoom(ctx, songID)
	if err != nil {
		return models.VoteResult{}, err
	}
	unlock := e.locks.RLock(roomID)
	defer unlock()
	return e.votes.Aggregate(ctx, songID, userID)
}

// Playback applies cmd to the sender's player when one is linked and tells
// the room. A provider failure is returned and nothing is broadcast.
func (e *Engine) Playback(ctx context.Context, roomID, userID string, cmd models.PlaybackCommand) error {
	if err := e.validate.Struct(cmd); err != nil {
		return apperr.InvalidArgument("invalid playback command: %v", err)
	}
	if cmd.Action == models.PlaybackSeek && cmd.PositionMs == nil {
		return apperr.InvalidArgument("seek requires positionMs")
	}
	if _, err := e.GetRoom(ctx, roomID, userID); err != nil {
		return err
	}

	if e.playback != nil {
		err := e.playback.Apply(ctx, userID, cmd)
		switch {
		case err == nil:
		case errors.Is(err, apperr.ErrNoSession):
			zlog.Debug().Str("room_id", roomID).Str("user_id", userID).Msg("no provider session, relaying playback command only")
		default:
			return err
		}
	}

	e.publish(ctx, roomID, events.PlaybackControlPayload{
		UserID:     userID,
		Action:     string(cmd.Action),
		PositionMs: cmd.PositionMs,
		DeviceID:   cmd.DeviceID,
		TrackID:    cmd.TrackID,
	})
	return nil
}

// PlaybackState relays the controller's player state to the room.
func (e *Engine) PlaybackState(ctx context.Context, roomID, userID string, state models.PlaybackState) error {
	if _, err := e.GetRoom(ctx, roomID, userID); err != nil {
		return err
	}
	if state.ControlledBy == "" {
		state.ControlledBy = userID
	}
	e.publish(ctx, roomID, events.PlaybackStatePayload{UserID: userID, State: state})
	return nil
}
