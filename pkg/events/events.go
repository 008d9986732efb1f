package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/collab-room-system/pkg/models"
)

type Type string

const (
	TypeUserJoined          Type = "userJoined"
	TypeUserLeft            Type = "userLeft"
	TypeSongAdded           Type = "songAdded"
	TypeSongRemoved         Type = "songRemoved"
	TypeVoteUpdated         Type = "voteUpdated"
	TypePlaybackControl     Type = "playbackControl"
	TypePlaybackStateUpdate Type = "playbackStateUpdate"
	TypeRoomUpdated         Type = "roomUpdated"
	TypeRoomDeleted         Type = "roomDeleted"
	TypeQueueReordered      Type = "queueReordered"
	TypeQueueCleared        Type = "queueCleared"

	// Sent only to the originating connection.
	TypeJoinedRoom Type = "joinedRoom"
	TypeLeftRoom   Type = "leftRoom"
	TypeError      Type = "error"
)

// Payload is implemented only by the payload types in this package.
type Payload interface {
	EventType() Type
	payload()
}

type UserJoinedPayload struct {
	UserID string       `json:"userId"`
	Room   *models.Room `json:"room,omitempty"`
}

type UserLeftPayload struct {
	UserID string       `json:"userId"`
	Room   *models.Room `json:"room,omitempty"`
}

// SongAddedPayload carries the refreshed room when a song is attached to the
// room, or the new entry when it is appended to the ordered queue.
type SongAddedPayload struct {
	Room      *models.Room       `json:"room,omitempty"`
	QueueItem *models.QueueEntry `json:"queueItem,omitempty"`
}

type SongRemovedPayload struct {
	SongID  string       `json:"songId,omitempty"`
	QueueID string       `json:"queueId,omitempty"`
	Room    *models.Room `json:"room,omitempty"`
}

// VoteUpdatedPayload.VoteResult.UserVote belongs to UserID, the caster.
type VoteUpdatedPayload struct {
	SongID     string            `json:"songId"`
	UserID     string            `json:"userId"`
	VoteResult models.VoteResult `json:"voteResult"`
}

type PlaybackControlPayload struct {
	UserID     string `json:"userId"`
	Action     string `json:"action"`
	PositionMs *int   `json:"positionMs,omitempty"`
	DeviceID   string `json:"deviceId,omitempty"`
	TrackID    string `json:"trackId,omitempty"`
}

type PlaybackStatePayload struct {
	UserID string               `json:"userId"`
	State  models.PlaybackState `json:"state"`
}

type RoomUpdatedPayload struct {
	Room *models.Room `json:"room"`
}

type RoomDeletedPayload struct {
	ID string `json:"id"`
}

type QueueReorderedPayload struct {
	Queue []models.QueueEntry `json:"queue"`
}

type QueueClearedPayload struct{}

type JoinedRoomPayload struct {
	RoomID string `json:"roomId"`
}

type LeftRoomPayload struct {
	RoomID string `json:"roomId"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Command string `json:"command,omitempty"`
}

func (UserJoinedPayload) EventType() Type      { return TypeUserJoined }
func (UserLeftPayload) EventType() Type        { return TypeUserLeft }
func (SongAddedPayload) EventType() Type       { return TypeSongAdded }
func (SongRemovedPayload) EventType() Type     { return TypeSongRemoved }
func (VoteUpdatedPayload) EventType() Type     { return TypeVoteUpdated }
func (PlaybackControlPayload) EventType() Type { return TypePlaybackControl }
func (PlaybackStatePayload) EventType() Type   { return TypePlaybackStateUpdate }
func (RoomUpdatedPayload) EventType() Type     { return TypeRoomUpdated }
func (RoomDeletedPayload) EventType() Type     { return TypeRoomDeleted }
func (QueueReorderedPayload) EventType() Type  { return TypeQueueReordered }
func (QueueClearedPayload) EventType() Type    { return TypeQueueCleared }
func (JoinedRoomPayload) EventType() Type      { return TypeJoinedRoom }
func (LeftRoomPayload) EventType() Type        { return TypeLeftRoom }
func (ErrorPayload) EventType() Type           { return TypeError }

func (UserJoinedPayload) payload()      {}
func (UserLeftPayload) payload()        {}
func (SongAddedPayload) payload()       {}
func (SongRemovedPayload) payload()     {}
func (VoteUpdatedPayload) payload()     {}
func (PlaybackControlPayload) payload() {}
func (PlaybackStatePayload) payload()   {}
func (RoomUpdatedPayload) payload()     {}
func (RoomDeletedPayload) payload()     {}
func (QueueReorderedPayload) payload()  {}
func (QueueClearedPayload) payload()    {}
func (JoinedRoomPayload) payload()      {}
func (LeftRoomPayload) payload()        {}
func (ErrorPayload) payload()           {}

// Event is the envelope used on the relay and inside the hub.
type Event struct {
	Type      Type            `json:"type"`
	RoomID    string          `json:"roomId"`
	Origin    string          `json:"origin,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// New builds an event for roomID from a typed payload.
func New(roomID string, p Payload) (Event, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal %s payload: %w", p.EventType(), err)
	}
	return Event{
		Type:      p.EventType(),
		RoomID:    roomID,
		Timestamp: time.Now().UTC(),
		Payload:   raw,
	}, nil
}

// Frame renders the client wire format: the payload fields flattened next to
// "type", "roomId" and "timestamp".
func (e Event) Frame() ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if len(e.Payload) > 0 {
		if err := json.Unmarshal(e.Payload, &fields); err != nil {
			return nil, fmt.Errorf("failed to flatten %s payload: %w", e.Type, err)
		}
	}

	var err error
	if fields["type"], err = json.Marshal(e.Type); err != nil {
		return nil, err
	}
	if e.RoomID != "" {
		if fields["roomId"], err = json.Marshal(e.RoomID); err != nil {
			return nil, err
		}
	}
	if fields["timestamp"], err = json.Marshal(e.Timestamp); err != nil {
		return nil, err
	}
	return json.Marshal(fields)
}

// Frame is a decoded client wire frame.
type Frame struct {
	Type   Type
	RoomID string
	raw    []byte
}

// ParseFrame reads the envelope fields of a client wire frame.
func ParseFrame(data []byte) (Frame, error) {
	var head struct {
		Type   Type   `json:"type"`
		RoomID string `json:"roomId"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return Frame{}, fmt.Errorf("failed to parse frame: %w", err)
	}
	if head.Type == "" {
		return Frame{}, fmt.Errorf("failed to parse frame: missing type")
	}
	return Frame{Type: head.Type, RoomID: head.RoomID, raw: data}, nil
}

// Decode unmarshals the frame body into a payload struct.
func (f Frame) Decode(dst any) error {
	return json.Unmarshal(f.raw, dst)
}
