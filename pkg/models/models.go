package models

import (
	"time"
)

type User struct {
	ID          string    `json:"id" gorm:"type:char(36);primaryKey"`
	SpotifyID   *string   `json:"spotifyId,omitempty" gorm:"size:64;uniqueIndex"`
	DisplayName string    `json:"name" gorm:"size:255"`
	Email       string    `json:"email,omitempty" gorm:"size:255"`
	AvatarURL   string    `json:"avatarUrl,omitempty" gorm:"size:512"`
	IsGuest     bool      `json:"isGuest"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Room is a shared session identified by a short join code.
// Members, Songs and Queue are only populated on snapshot reads.
type Room struct {
	ID       string `json:"id" gorm:"type:char(36);primaryKey"`
	Code     string `json:"code" gorm:"size:16;index"`
	Name     string `json:"name" gorm:"size:255"`
	HostID   string `json:"hostId" gorm:"type:char(36);index"`
	IsActive bool   `json:"isActive"`
	// ActiveCode mirrors Code while the room is active and is NULL otherwise,
	// so the unique index only binds active rooms.
	ActiveCode *string      `json:"-" gorm:"size:16;uniqueIndex"`
	Host       *User        `json:"host,omitempty" gorm:"foreignKey:HostID"`
	Members    []Member     `json:"members,omitempty" gorm:"foreignKey:RoomID;constraint:OnDelete:CASCADE"`
	Songs      []Song       `json:"songs,omitempty" gorm:"foreignKey:RoomID;constraint:OnDelete:CASCADE"`
	Queue      []QueueEntry `json:"queue,omitempty" gorm:"foreignKey:RoomID;constraint:OnDelete:CASCADE"`
	CreatedAt  time.Time    `json:"createdAt"`
	UpdatedAt  time.Time    `json:"updatedAt"`
}

// ActiveCodeFor returns the value the active_code column must hold for a room
// with this code and activity.
func ActiveCodeFor(code string, active bool) *string {
	if !active {
		return nil
	}
	return &code
}

// HasMember reports whether userID appears in the loaded member list.
func (r *Room) HasMember(userID string) bool {
	for _, m := range r.Members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

type Member struct {
	RoomID   string    `json:"roomId" gorm:"type:char(36);primaryKey"`
	UserID   string    `json:"userId" gorm:"type:char(36);primaryKey"`
	IsGuest  bool      `json:"isGuest"`
	JoinedAt time.Time `json:"joinedAt"`
	User     *User     `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

func (Member) TableName() string { return "room_members" }

// Song is a catalog track attached to a room. (RoomID, ExternalID) is its
// natural key.
type Song struct {
	ID            string    `json:"id" gorm:"type:char(36);primaryKey"`
	RoomID        string    `json:"roomId" gorm:"type:char(36);not null;uniqueIndex:idx_song_room_track,priority:1"`
	ExternalID    string    `json:"externalId" gorm:"size:64;not null;uniqueIndex:idx_song_room_track,priority:2"`
	Title         string    `json:"title" gorm:"size:255"`
	Artist        string    `json:"artist" gorm:"size:255"`
	DurationMs    int       `json:"durationMs"`
	ArtworkURL    string    `json:"artworkUrl,omitempty" gorm:"size:512"`
	AddedByUserID string    `json:"addedByUserId" gorm:"type:char(36)"`
	AddedAt       time.Time `json:"addedAt"`
	AddedBy       *User     `json:"addedBy,omitempty" gorm:"foreignKey:AddedByUserID"`
	Votes         []Vote    `json:"votes,omitempty" gorm:"foreignKey:SongID;constraint:OnDelete:CASCADE"`

	// Derived per viewer; never stored.
	VoteCount int  `json:"voteCount" gorm:"-"`
	UserVote  *int `json:"userVote" gorm:"-"`
}

type Vote struct {
	ID     string    `json:"id" gorm:"type:char(36);primaryKey"`
	SongID string    `json:"songId" gorm:"type:char(36);not null;uniqueIndex:idx_vote_song_user,priority:1"`
	UserID string    `json:"userId" gorm:"type:char(36);not null;uniqueIndex:idx_vote_song_user,priority:2"`
	Value  int       `json:"voteValue"` // 1 for upvote, -1 for downvote
	CastAt time.Time `json:"votedAt"`
}

type QueueStatus string

const (
	QueueStatusQueued  QueueStatus = "queued"
	QueueStatusPlaying QueueStatus = "playing"
	QueueStatusPlayed  QueueStatus = "played"
)

// QueueEntry is a positioned reference to a song. Positions within a room
// are 1-based and dense.
type QueueEntry struct {
	ID       string      `json:"id" gorm:"type:char(36);primaryKey"`
	RoomID   string      `json:"roomId" gorm:"type:char(36);not null;index:idx_queue_room_position,priority:1"`
	SongID   string      `json:"songId" gorm:"type:char(36);not null;index"`
	UserID   string      `json:"userId" gorm:"type:char(36);not null"`
	Position int         `json:"position" gorm:"not null;index:idx_queue_room_position,priority:2"`
	Status   QueueStatus `json:"status" gorm:"size:16;default:queued"`
	AddedAt  time.Time   `json:"addedAt"`
	Song     *Song       `json:"song,omitempty" gorm:"foreignKey:SongID"`
	User     *User       `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

func (QueueEntry) TableName() string { return "queues" }

// PlaybackState is relayed between room members and never persisted.
type PlaybackState struct {
	IsPlaying    bool   `json:"isPlaying" mapstructure:"isPlaying"`
	ProgressMs   int    `json:"progressMs" mapstructure:"progressMs"`
	TrackID      string `json:"trackId,omitempty" mapstructure:"trackId"`
	DeviceID     string `json:"deviceId,omitempty" mapstructure:"deviceId"`
	ControlledBy string `json:"controlledBy,omitempty" mapstructure:"controlledBy"`
}

type Message struct {
	ID      string    `json:"id" gorm:"type:char(36);primaryKey"`
	RoomID  string    `json:"roomId" gorm:"type:char(36);not null;index"`
	UserID  string    `json:"userId" gorm:"type:char(36);not null"`
	Content string    `json:"content" gorm:"type:text;not null"`
	SentAt  time.Time `json:"sentAt"`
}

// VoteResult is the aggregate a caller sees for one song.
type VoteResult struct {
	VoteCount int  `json:"voteCount"`
	UserVote  *int `json:"userVote"`
}

// Track is catalog metadata as returned by the music provider.
type Track struct {
	ExternalID string `json:"externalId" mapstructure:"externalId"`
	Title      string `json:"title" mapstructure:"title"`
	Artist     string `json:"artist" mapstructure:"artist"`
	DurationMs int    `json:"durationMs" mapstructure:"durationMs"`
	ArtworkURL string `json:"artworkUrl,omitempty" mapstructure:"artworkUrl"`
}

// Complete reports whether the track carries display metadata beyond its id.
func (t Track) Complete() bool {
	return t.Title != "" && t.Artist != ""
}

type PlaybackAction string

const (
	PlaybackPlay     PlaybackAction = "play"
	PlaybackPause    PlaybackAction = "pause"
	PlaybackSeek     PlaybackAction = "seek"
	PlaybackNext     PlaybackAction = "next"
	PlaybackPrevious PlaybackAction = "previous"
)

// PlaybackCommand is a request to drive the controller's player.
type PlaybackCommand struct {
	Action     PlaybackAction `json:"action" mapstructure:"action" validate:"required,oneof=play pause seek next previous"`
	PositionMs *int           `json:"positionMs,omitempty" mapstructure:"positionMs" validate:"omitempty,gte=0"`
	DeviceID   string         `json:"deviceId,omitempty" mapstructure:"deviceId"`
	TrackID    string         `json:"trackId,omitempty" mapstructure:"trackId"`
}
