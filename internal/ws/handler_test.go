package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collab-room-system/internal/apperr"
	"github.com/collab-room-system/pkg/events"
	"github.com/collab-room-system/pkg/models"
)

type call struct {
	name   string
	roomID string
	userID string
	args   []any
}

type fakeEngine struct {
	calls chan call
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{calls: make(chan call, 16)}
}

func (e *fakeEngine) record(c call) {
	e.calls <- c
}

func (e *fakeEngine) GetRoom(ctx context.Context, roomID, viewerID string) (*models.Room, error) {
	if roomID == "missing" {
		return nil, apperr.NotFound("room")
	}
	return &models.Room{ID: roomID}, nil
}

func (e *fakeEngine) Enqueue(ctx context.Context, roomID, songID, userID string) (*models.QueueEntry, error) {
	e.record(call{name: "enqueue", roomID: roomID, userID: userID, args: []any{songID}})
	return &models.QueueEntry{ID: "q1"}, nil
}

func (e *fakeEngine) Dequeue(ctx context.Context, roomID, entryID, requesterID string) error {
	e.record(call{name: "dequeue", roomID: roomID, userID: requesterID, args: []any{entryID}})
	return apperr.Forbidden("only the user who added the song can remove it")
}

func (e *fakeEngine) Move(ctx context.Context, roomID, entryID string, from, to int, requesterID string) error {
	e.record(call{name: "move", roomID: roomID, userID: requesterID, args: []any{entryID, from, to}})
	return nil
}

func (e *fakeEngine) ClearQueue(ctx context.Context, roomID, requesterID string) error {
	e.record(call{name: "clear", roomID: roomID, userID: requesterID})
	return nil
}

func (e *fakeEngine) CastVote(ctx context.Context, songID, userID string, value int) (models.VoteResult, error) {
	e.record(call{name: "vote", userID: userID, args: []any{songID, value}})
	return models.VoteResult{VoteCount: value}, nil
}

func (e *fakeEngine) RemoveVote(ctx context.Context, songID, userID string) (models.VoteResult, error) {
	e.record(call{name: "removeVote", userID: userID, args: []any{songID}})
	return models.VoteResult{}, nil
}

func (e *fakeEngine) Playback(ctx context.Context, roomID, userID string, cmd models.PlaybackCommand) error {
	e.record(call{name: "playback", roomID: roomID, userID: userID, args: []any{cmd}})
	return nil
}

func (e *fakeEngine) PlaybackState(ctx context.Context, roomID, userID string, state models.PlaybackState) error {
	e.record(call{name: "state", roomID: roomID, userID: userID, args: []any{state}})
	return nil
}

func (e *fakeEngine) next(t *testing.T) call {
	t.Helper()
	select {
	case c := <-e.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("engine was not called")
		return call{}
	}
}

func newTestServer(t *testing.T) (*httptest.Server, *Hub, *fakeEngine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := NewHub(nil)
	engine := newFakeEngine()
	h := NewHandler(hub, engine, nil)

	router := gin.New()
	router.GET("/ws", h.HandleWebSocket)
	router.GET("/ws/:roomId", h.HandleWebSocket)
	router.GET("/auth/ws", func(c *gin.Context) {
		c.Set("user_id", "auth-user")
		c.Next()
	}, h.HandleWebSocket)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, hub, engine
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame map[string]any
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestHandler_JoinRoomAndReceiveBroadcasts(t *testing.T) {
	srv, hub, _ := newTestServer(t)
	conn := dial(t, srv, "/ws")

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "joinRoom", "roomId": "r1", "userId": "u1"}))
	ack := readFrame(t, conn)
	assert.Equal(t, "joinedRoom", ack["type"])
	assert.Equal(t, "r1", ack["roomId"])
	assert.Equal(t, 1, hub.Subscribers("r1"))

	require.NoError(t, hub.Publish(context.Background(), "r1", events.RoomDeletedPayload{ID: "r1"}))
	frame := readFrame(t, conn)
	assert.Equal(t, "roomDeleted", frame["type"])
	assert.Equal(t, "r1", frame["id"])

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "leaveRoom"}))
	ack = readFrame(t, conn)
	assert.Equal(t, "leftRoom", ack["type"])
	assert.Equal(t, 0, hub.Subscribers("r1"))
}

func TestHandler_PathParameterSubscribes(t *testing.T) {
	srv, hub, _ := newTestServer(t)
	conn := dial(t, srv, "/ws/r9")

	ack := readFrame(t, conn)
	assert.Equal(t, "joinedRoom", ack["type"])
	assert.Equal(t, 1, hub.Subscribers("r9"))
}

func TestHandler_CommandsReachEngine(t *testing.T) {
	srv, _, engine := newTestServer(t)
	conn := dial(t, srv, "/ws")

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "joinRoom", "roomId": "r1", "userId": "u1"}))
	readFrame(t, conn)

	// room and user fall back to the subscription and the remembered id
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "addToQueue", "songId": "s1"}))
	c := engine.next(t)
	assert.Equal(t, call{name: "enqueue", roomID: "r1", userID: "u1", args: []any{"s1"}}, c)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "vote", "songId": "s1", "value": -1}))
	c = engine.next(t)
	assert.Equal(t, "vote", c.name)
	assert.Equal(t, "u1", c.userID)
	assert.Equal(t, []any{"s1", -1}, c.args)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "moveInQueue", "queueId": "q1", "newPosition": 3}))
	c = engine.next(t)
	assert.Equal(t, []any{"q1", 0, 3}, c.args)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "playbackControl", "action": "seek", "positionMs": 1500}))
	c = engine.next(t)
	cmd := c.args[0].(models.PlaybackCommand)
	assert.Equal(t, models.PlaybackSeek, cmd.Action)
	require.NotNil(t, cmd.PositionMs)
	assert.Equal(t, 1500, *cmd.PositionMs)
}

func TestHandler_AuthenticatedUserWins(t *testing.T) {
	srv, _, engine := newTestServer(t)
	conn := dial(t, srv, "/auth/ws")

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "clearQueue", "roomId": "r1", "userId": "someone-else"}))
	c := engine.next(t)
	assert.Equal(t, "auth-user", c.userID)
}

func TestHandler_ErrorsGoToSenderOnly(t *testing.T) {
	srv, _, engine := newTestServer(t)
	conn := dial(t, srv, "/ws")

	tests := []struct {
		name    string
		frame   map[string]any
		command string
		message string
	}{
		{"unknown command", map[string]any{"type": "dance"}, "dance", `unknown command "dance"`},
		{"missing room", map[string]any{"type": "joinRoom", "roomId": "missing"}, "joinRoom", "room not found"},
		{"no room to act on", map[string]any{"type": "addToQueue", "songId": "s1", "userId": "u1"}, "addToQueue", "roomId is required, join a room first"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, conn.WriteJSON(tt.frame))
			frame := readFrame(t, conn)
			assert.Equal(t, "error", frame["type"])
			assert.Equal(t, tt.command, frame["command"])
			assert.Equal(t, tt.message, frame["message"])
		})
	}

	t.Run("invalid vote value", func(t *testing.T) {
		require.NoError(t, conn.WriteJSON(map[string]any{"type": "vote", "songId": "s1", "value": 2, "userId": "u1"}))
		frame := readFrame(t, conn)
		assert.Equal(t, "error", frame["type"])
		assert.Equal(t, "vote", frame["command"])
	})

	t.Run("engine rejection", func(t *testing.T) {
		require.NoError(t, conn.WriteJSON(map[string]any{"type": "removeFromQueue", "roomId": "r1", "queueId": "q1", "userId": "u2"}))
		engine.next(t)
		frame := readFrame(t, conn)
		assert.Equal(t, "error", frame["type"])
		assert.Equal(t, "only the user who added the song can remove it", frame["message"])
	})
}

func TestHandler_DisconnectCleansUp(t *testing.T) {
	srv, hub, _ := newTestServer(t)
	conn := dial(t, srv, "/ws/r1")
	readFrame(t, conn)
	require.Equal(t, 1, hub.Subscribers("r1"))

	conn.Close()
	assert.Eventually(t, func() bool {
		return hub.Subscribers("r1") == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"http://app.example.com/"})

	req := httptest.NewRequest(http.MethodGet, "http://api.example.com/ws", nil)
	assert.True(t, check(req), "no origin header")

	req.Header.Set("Origin", "http://app.example.com")
	assert.True(t, check(req))

	req.Header.Set("Origin", "http://evil.example.com")
	assert.False(t, check(req))

	req.Header.Set("Origin", "http://api.example.com")
	assert.True(t, check(req), "same host")

	assert.True(t, originChecker([]string{"*"})(req))
}
