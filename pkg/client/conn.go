package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	zlog "github.com/rs/zerolog/log"
)

const writeWait = 10 * time.Second

// Conn is a realtime connection to the server.
type Conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

// Dial opens the realtime channel. token, if set, is sent as the session
// token query parameter.
func Dial(ctx context.Context, wsURL, token string) (*Conn, error) {
	if token != "" {
		u, err := url.Parse(wsURL)
		if err != nil {
			return nil, errors.Wrap(err, "invalid websocket url")
		}
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
		wsURL = u.String()
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to dial %s", wsURL)
	}
	return &Conn{ws: ws}, nil
}

// Send writes one command frame.
func (c *Conn) Send(kind string, fields map[string]any) error {
	frame := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		frame[k] = v
	}
	frame["type"] = kind

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteJSON(frame)
}

func (c *Conn) Join(roomID, userID string) error {
	return c.Send("joinRoom", map[string]any{"roomId": roomID, "userId": userID})
}

func (c *Conn) Leave(roomID, userID string) error {
	return c.Send("leaveRoom", map[string]any{"roomId": roomID, "userId": userID})
}

func (c *Conn) Vote(songID string, value int) error {
	return c.Send("vote", map[string]any{"songId": songID, "value": value})
}

// Run reads frames into state until ctx is done or the connection drops.
// onFrame, if set, sees every frame after it was applied.
func (c *Conn) Run(ctx context.Context, state *State, onFrame func(data []byte, err error)) error {
	go func() {
		<-ctx.Done()
		c.ws.Close()
	}()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return errors.Wrap(err, "websocket read failed")
		}

		applyErr := state.Apply(data)
		var serverErr *ServerError
		if applyErr != nil && !errors.As(applyErr, &serverErr) {
			zlog.Warn().Err(applyErr).Msg("failed to apply frame")
		}
		if onFrame != nil {
			onFrame(data, applyErr)
		}
	}
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	return c.ws.Close()
}

// FetchRoom reads the full room for a resync, e.g. after reconnecting.
func FetchRoom(ctx context.Context, httpClient *http.Client, apiURL, roomID, userID string) ([]byte, error) {
	endpoint := strings.TrimRight(apiURL, "/") + "/room/" + url.PathEscape(roomID)
	if userID != "" {
		endpoint += "?userId=" + url.QueryEscape(userID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch room")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read room")
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(body, &apiErr)
		return nil, errors.Newf("fetch room: status %d: %s", resp.StatusCode, apiErr.Error)
	}
	return body, nil
}
