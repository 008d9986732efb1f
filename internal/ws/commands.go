package ws

import (
	"context"

	"github.com/mitchellh/mapstructure"

	"github.com/collab-room-system/internal/apperr"
	"github.com/collab-room-system/pkg/events"
	"github.com/collab-room-system/pkg/models"
)

type joinRoomCommand struct {
	RoomID string `mapstructure:"roomId" validate:"required"`
	UserID string `mapstructure:"userId"`
}

type leaveRoomCommand struct {
	RoomID string `mapstructure:"roomId"`
	UserID string `mapstructure:"userId"`
}

type addToQueueCommand struct {
	RoomID string `mapstructure:"roomId"`
	SongID string `mapstructure:"songId" validate:"required"`
	UserID string `mapstructure:"userId"`
}

type removeFromQueueCommand struct {
	RoomID  string `mapstructure:"roomId"`
	QueueID string `mapstructure:"queueId" validate:"required"`
	UserID  string `mapstructure:"userId"`
}

type moveInQueueCommand struct {
	RoomID       string `mapstructure:"roomId"`
	QueueID      string `mapstructure:"queueId" validate:"required_without=FromPosition"`
	FromPosition int    `mapstructure:"fromPosition"`
	ToPosition   int    `mapstructure:"toPosition"`
	NewPosition  int    `mapstructure:"newPosition"`
	UserID       string `mapstructure:"userId"`
}

func (c moveInQueueCommand) target() int {
	if c.ToPosition != 0 {
		return c.ToPosition
	}
	return c.NewPosition
}

type clearQueueCommand struct {
	RoomID string `mapstructure:"roomId"`
	UserID string `mapstructure:"userId"`
}

type voteCommand struct {
	RoomID string `mapstructure:"roomId"`
	SongID string `mapstructure:"songId" validate:"required"`
	Value  int    `mapstructure:"value" validate:"oneof=1 -1"`
	UserID string `mapstructure:"userId"`
}

type removeVoteCommand struct {
	RoomID string `mapstructure:"roomId"`
	SongID string `mapstructure:"songId" validate:"required"`
	UserID string `mapstructure:"userId"`
}

type playbackControlCommand struct {
	RoomID                 string `mapstructure:"roomId"`
	UserID                 string `mapstructure:"userId"`
	models.PlaybackCommand `mapstructure:",squash"`
}

type playbackStateCommand struct {
	RoomID string               `mapstructure:"roomId"`
	UserID string               `mapstructure:"userId"`
	State  models.PlaybackState `mapstructure:"state"`
}

type commandFunc func(ctx context.Context, h *Handler, c *Conn, raw map[string]any) error

// commands maps inbound frame types to their handlers.
var commands = map[string]commandFunc{
	"joinRoom":            handleJoinRoom,
	"leaveRoom":           handleLeaveRoom,
	"addToQueue":          handleAddToQueue,
	"removeFromQueue":     handleRemoveFromQueue,
	"moveInQueue":         handleMoveInQueue,
	"clearQueue":          handleClearQueue,
	"vote":                handleVote,
	"removeVote":          handleRemoveVote,
	"playbackControl":     handlePlaybackControl,
	"playbackStateUpdate": handlePlaybackState,
}

func (h *Handler) decode(raw map[string]any, dst any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           dst,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(raw); err != nil {
		return apperr.InvalidArgument("malformed command: %v", err)
	}
	if err := h.validate.Struct(dst); err != nil {
		return apperr.InvalidArgument("invalid command: %v", err)
	}
	return nil
}

// targetRoom falls back to the connection's subscription when the command
// names no room.
func (h *Handler) targetRoom(c *Conn, roomID string) (string, error) {
	if roomID != "" {
		return roomID, nil
	}
	if subscribed := h.hub.RoomOf(c); subscribed != "" {
		return subscribed, nil
	}
	return "", apperr.InvalidArgument("roomId is required, join a room first")
}

func actingUser(c *Conn, claimed string) (string, error) {
	userID := c.resolveUser(claimed)
	if userID == "" {
		return "", apperr.InvalidArgument("userId is required")
	}
	return userID, nil
}

func handleJoinRoom(ctx context.Context, h *Handler, c *Conn, raw map[string]any) error {
	var cmd joinRoomCommand
	if err := h.decode(raw, &cmd); err != nil {
		return err
	}
	userID := c.resolveUser(cmd.UserID)
	if _, err := h.engine.GetRoom(ctx, cmd.RoomID, userID); err != nil {
		return err
	}

	h.hub.Subscribe(c, cmd.RoomID)
	h.hub.send(c, cmd.RoomID, events.JoinedRoomPayload{RoomID: cmd.RoomID})
	return nil
}

func handleLeaveRoom(ctx context.Context, h *Handler, c *Conn, raw map[string]any) error {
	var cmd leaveRoomCommand
	if err := h.decode(raw, &cmd); err != nil {
		return err
	}
	roomID, err := h.targetRoom(c, cmd.RoomID)
	if err != nil {
		return err
	}

	h.hub.Unsubscribe(c, roomID)
	h.hub.send(c, roomID, events.LeftRoomPayload{RoomID: roomID})
	return nil
}

func handleAddToQueue(ctx context.Context, h *Handler, c *Conn, raw map[string]any) error {
	var cmd addToQueueCommand
	if err := h.decode(raw, &cmd); err != nil {
		return err
	}
	roomID, err := h.targetRoom(c, cmd.RoomID)
	if err != nil {
		return err
	}
	userID, err := actingUser(c, cmd.UserID)
	if err != nil {
		return err
	}

	_, err = h.engine.Enqueue(ctx, roomID, cmd.SongID, userID)
	return err
}

func handleRemoveFromQueue(ctx context.Context, h *Handler, c *Conn, raw map[string]any) error {
	var cmd removeFromQueueCommand
	if err := h.decode(raw, &cmd); err != nil {
		return err
	}
	roomID, err := h.targetRoom(c, cmd.RoomID)
	if err != nil {
		return err
	}
	userID, err := actingUser(c, cmd.UserID)
	if err != nil {
		return err
	}

	return h.engine.Dequeue(ctx, roomID, cmd.QueueID, userID)
}

func handleMoveInQueue(ctx context.Context, h *Handler, c *Conn, raw map[string]any) error {
	var cmd moveInQueueCommand
	if err := h.decode(raw, &cmd); err != nil {
		return err
	}
	roomID, err := h.targetRoom(c, cmd.RoomID)
	if err != nil {
		return err
	}
	userID, err := actingUser(c, cmd.UserID)
	if err != nil {
		return err
	}

	return h.engine.Move(ctx, roomID, cmd.QueueID, cmd.FromPosition, cmd.target(), userID)
}

func handleClearQueue(ctx context.Context, h *Handler, c *Conn, raw map[string]any) error {
	var cmd clearQueueCommand
	if err := h.decode(raw, &cmd); err != nil {
		return err
	}
	roomID, err := h.targetRoom(c, cmd.RoomID)
	if err != nil {
		return err
	}
	userID, err := actingUser(c, cmd.UserID)
	if err != nil {
		return err
	}

	return h.engine.ClearQueue(ctx, roomID, userID)
}

func handleVote(ctx context.Context, h *Handler, c *Conn, raw map[string]any) error {
	var cmd voteCommand
	if err := h.decode(raw, &cmd); err != nil {
		return err
	}
	userID, err := actingUser(c, cmd.UserID)
	if err != nil {
		return err
	}

	_, err = h.engine.CastVote(ctx, cmd.SongID, userID, cmd.Value)
	return err
}

func handleRemoveVote(ctx context.Context, h *Handler, c *Conn, raw map[string]any) error {
	var cmd removeVoteCommand
	if err := h.decode(raw, &cmd); err != nil {
		return err
	}
	userID, err := actingUser(c, cmd.UserID)
	if err != nil {
		return err
	}

	_, err = h.engine.RemoveVote(ctx, cmd.SongID, userID)
	return err
}

func handlePlaybackControl(ctx context.Context, h *Handler, c *Conn, raw map[string]any) error {
	var cmd playbackControlCommand
	if err := h.decode(raw, &cmd); err != nil {
		return err
	}
	roomID, err := h.targetRoom(c, cmd.RoomID)
	if err != nil {
		return err
	}
	userID, err := actingUser(c, cmd.UserID)
	if err != nil {
		return err
	}

	return h.engine.Playback(ctx, roomID, userID, cmd.PlaybackCommand)
}

func handlePlaybackState(ctx context.Context, h *Handler, c *Conn, raw map[string]any) error {
	var cmd playbackStateCommand
	if err := h.decode(raw, &cmd); err != nil {
		return err
	}
	roomID, err := h.targetRoom(c, cmd.RoomID)
	if err != nil {
		return err
	}
	userID, err := actingUser(c, cmd.UserID)
	if err != nil {
		return err
	}

	return h.engine.PlaybackState(ctx, roomID, userID, cmd.State)
}

// dispatch runs one inbound frame and reports failures to the sender only.
func (h *Handler) dispatch(ctx context.Context, c *Conn, raw map[string]any) {
	kind, _ := raw["type"].(string)
	handler, ok := commands[kind]
	if !ok {
		h.reply(c, kind, apperr.InvalidArgument("unknown command %q", kind))
		return
	}
	if err := handler(ctx, h, c, raw); err != nil {
		h.reply(c, kind, err)
	}
}

func (h *Handler) reply(c *Conn, command string, err error) {
	event := h.logger(c).Debug()
	if apperr.HTTPStatus(err) >= 500 {
		event = h.logger(c).Error()
	}
	event.Err(err).Str("command", command).Msg("command failed")

	h.hub.send(c, h.hub.RoomOf(c), events.ErrorPayload{
		Message: apperr.Message(err),
		Command: command,
	})
}
