// Package client keeps a local, reconciled copy of one room from the realtime
// event stream.
package client

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/collab-room-system/pkg/events"
	"github.com/collab-room-system/pkg/models"
)

// ErrSongNotFound is returned by ToggleVote for a song the state does not hold.
var ErrSongNotFound = errors.New("song not in local state")

// ServerError is an error event sent back for a failed command.
type ServerError struct {
	Message string
	Command string
}

func (e *ServerError) Error() string {
	if e.Command == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Command, e.Message)
}

// wireSong decodes a song while remembering whether the server sent
// precomputed aggregates.
type wireSong struct {
	models.Song
	VoteCount *int            `json:"voteCount"`
	UserVote  json.RawMessage `json:"userVote"`
}

type wireRoom struct {
	models.Room
	Songs []wireSong `json:"songs"`
}

// State is safe for concurrent use. Server values always replace local
// guesses.
type State struct {
	mu       sync.RWMutex
	userID   string
	roomID   string
	room     models.Room
	songs    []models.Song
	queue    []models.QueueEntry
	playback *models.PlaybackState
	last     *events.PlaybackControlPayload
	deleted  bool
}

func NewState(userID string) *State {
	return &State{userID: userID}
}

// Resync replaces everything with a full room read. Songs carrying raw vote
// rows get their aggregates recomputed for the local user.
func (s *State) Resync(room *models.Room) {
	s.mu.Lock()
	defer s.mu.Unlock()

	songs := make([]models.Song, len(room.Songs))
	copy(songs, room.Songs)
	for i := range songs {
		if len(songs[i].Votes) > 0 {
			res := models.Tally(songs[i].Votes, s.userID)
			songs[i].VoteCount, songs[i].UserVote = res.VoteCount, res.UserVote
		}
	}
	s.replaceRoom(room, songs)
}

// ResyncJSON is Resync for a raw room document, e.g. the body of GET /room/{id}.
func (s *State) ResyncJSON(data []byte) error {
	var wr wireRoom
	if err := json.Unmarshal(data, &wr); err != nil {
		return errors.Wrap(err, "failed to decode room")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyRoom(&wr)
	return nil
}

func (s *State) replaceRoom(room *models.Room, songs []models.Song) {
	s.roomID = room.ID
	s.room = *room
	s.room.Songs = nil
	s.room.Queue = nil
	s.deleted = false

	models.SortSongs(songs)
	s.songs = songs

	s.queue = append([]models.QueueEntry(nil), room.Queue...)
	sortQueue(s.queue)
}

func (s *State) applyRoom(wr *wireRoom) {
	songs := make([]models.Song, 0, len(wr.Songs))
	for _, ws := range wr.Songs {
		songs = append(songs, s.normalize(ws))
	}
	s.replaceRoom(&wr.Room, songs)
}

// normalize derives the local user's vote from embedded rows whenever they
// are present, since broadcast snapshots are not built for any one viewer.
// The server's count wins over the rows' sum.
func (s *State) normalize(ws wireSong) models.Song {
	song := ws.Song
	if len(song.Votes) > 0 || ws.VoteCount == nil {
		res := models.Tally(song.Votes, s.userID)
		song.VoteCount, song.UserVote = res.VoteCount, res.UserVote
		if ws.VoteCount != nil {
			song.VoteCount = *ws.VoteCount
		}
		return song
	}

	song.VoteCount = *ws.VoteCount
	song.UserVote = nil
	if len(ws.UserVote) > 0 && string(ws.UserVote) != "null" {
		var v int
		if err := json.Unmarshal(ws.UserVote, &v); err == nil {
			song.UserVote = &v
		}
	}
	return song
}

// Apply folds one wire frame into the state. Frames for another room are
// ignored. Error frames come back as *ServerError.
func (s *State) Apply(data []byte) error {
	frame, err := events.ParseFrame(data)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.roomID != "" && frame.RoomID != "" && frame.RoomID != s.roomID {
		return nil
	}

	switch frame.Type {
	case events.TypeVoteUpdated:
		var p events.VoteUpdatedPayload
		if err := frame.Decode(&p); err != nil {
			return errors.Wrap(err, "failed to decode voteUpdated")
		}
		s.applyVote(p)

	case events.TypeSongAdded:
		var p struct {
			Room      *wireRoom          `json:"room"`
			QueueItem *models.QueueEntry `json:"queueItem"`
		}
		if err := frame.Decode(&p); err != nil {
			return errors.Wrap(err, "failed to decode songAdded")
		}
		if p.Room != nil {
			s.applyRoom(p.Room)
		}
		if p.QueueItem != nil {
			s.queue = append(removeEntry(s.queue, p.QueueItem.ID), *p.QueueItem)
			sortQueue(s.queue)
		}

	case events.TypeSongRemoved:
		var p struct {
			SongID  string    `json:"songId"`
			QueueID string    `json:"queueId"`
			Room    *wireRoom `json:"room"`
		}
		if err := frame.Decode(&p); err != nil {
			return errors.Wrap(err, "failed to decode songRemoved")
		}
		switch {
		case p.Room != nil:
			s.applyRoom(p.Room)
		case p.SongID != "":
			s.songs = removeSong(s.songs, p.SongID)
		}
		if p.QueueID != "" {
			s.queue = removeEntry(s.queue, p.QueueID)
			for i := range s.queue {
				s.queue[i].Position = i + 1
			}
		}

	case events.TypeUserJoined, events.TypeUserLeft, events.TypeRoomUpdated:
		var p struct {
			Room *wireRoom `json:"room"`
		}
		if err := frame.Decode(&p); err != nil {
			return errors.Wrapf(err, "failed to decode %s", frame.Type)
		}
		if p.Room != nil {
			s.applyRoom(p.Room)
		}

	case events.TypeRoomDeleted:
		s.deleted = true

	case events.TypeQueueReordered:
		var p events.QueueReorderedPayload
		if err := frame.Decode(&p); err != nil {
			return errors.Wrap(err, "failed to decode queueReordered")
		}
		s.queue = p.Queue
		sortQueue(s.queue)

	case events.TypeQueueCleared:
		s.queue = nil

	case events.TypePlaybackControl:
		var p events.PlaybackControlPayload
		if err := frame.Decode(&p); err != nil {
			return errors.Wrap(err, "failed to decode playbackControl")
		}
		s.last = &p

	case events.TypePlaybackStateUpdate:
		var p events.PlaybackStatePayload
		if err := frame.Decode(&p); err != nil {
			return errors.Wrap(err, "failed to decode playbackStateUpdate")
		}
		state := p.State
		s.playback = &state

	case events.TypeJoinedRoom:
		if s.roomID == "" {
			s.roomID = frame.RoomID
		}

	case events.TypeError:
		var p events.ErrorPayload
		if err := frame.Decode(&p); err != nil {
			return errors.Wrap(err, "failed to decode error")
		}
		return &ServerError{Message: p.Message, Command: p.Command}
	}
	return nil
}

// applyVote takes the server's count. userVote in the payload belongs to
// the caster, so it only replaces ours when we cast it.
func (s *State) applyVote(p events.VoteUpdatedPayload) {
	for i := range s.songs {
		if s.songs[i].ID != p.SongID {
			continue
		}
		s.songs[i].VoteCount = p.VoteResult.VoteCount
		if p.UserID == s.userID {
			s.songs[i].UserVote = p.VoteResult.UserVote
		}
		break
	}
	models.SortSongs(s.songs)
}

// ToggleVote applies a vote locally before the server confirms it, using the
// same toggle rule as the server. The matching voteUpdated event settles it.
func (s *State) ToggleVote(songID string, value int) (models.VoteResult, error) {
	if value != 1 && value != -1 {
		return models.VoteResult{}, errors.Newf("vote value must be 1 or -1, got %d", value)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.songs {
		song := &s.songs[i]
		if song.ID != songID {
			continue
		}

		switch {
		case song.UserVote == nil:
			song.VoteCount += value
			v := value
			song.UserVote = &v
		case *song.UserVote == value:
			song.VoteCount -= value
			song.UserVote = nil
		default:
			song.VoteCount += value - *song.UserVote
			v := value
			song.UserVote = &v
		}

		res := models.VoteResult{VoteCount: song.VoteCount, UserVote: song.UserVote}
		models.SortSongs(s.songs)
		return res, nil
	}
	return models.VoteResult{}, ErrSongNotFound
}

func (s *State) RoomID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roomID
}

// Room returns the room metadata without songs or queue.
func (s *State) Room() models.Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.room
}

// Songs returns the songs in display order.
func (s *State) Songs() []models.Song {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Song(nil), s.songs...)
}

// Queue returns the queue in position order.
func (s *State) Queue() []models.QueueEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.QueueEntry(nil), s.queue...)
}

func (s *State) Playback() *models.PlaybackState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.playback
}

func (s *State) LastCommand() *events.PlaybackControlPayload {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

func (s *State) Deleted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deleted
}

func sortQueue(q []models.QueueEntry) {
	sort.SliceStable(q, func(i, j int) bool { return q[i].Position < q[j].Position })
}

func removeEntry(q []models.QueueEntry, id string) []models.QueueEntry {
	out := q[:0]
	for _, e := range q {
		if e.ID != id {
			out = append(out, e)
		}
	}
	return out
}

func removeSong(songs []models.Song, id string) []models.Song {
	out := songs[:0]
	for _, s := range songs {
		if s.ID != id {
			out = append(out, s)
		}
	}
	return out
}
