// Package main provides a terminal client that follows one room live.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"

	"github.com/collab-room-system/internal/logger"
	"github.com/collab-room-system/pkg/client"
	"github.com/collab-room-system/pkg/events"
)

var (
	app     = kingpin.New("roomctl", "Collaborative music room client")
	apiURL  = app.Flag("api", "REST base URL").Default("http://localhost:8080/api/v1").Envar("ROOMCTL_API").String()
	wsURL   = app.Flag("ws", "Realtime endpoint").Default("ws://localhost:8080/ws").Envar("ROOMCTL_WS").String()
	userID  = app.Flag("user", "User id to act as").Envar("ROOMCTL_USER").String()
	token   = app.Flag("token", "Session token").Envar("ROOMCTL_TOKEN").String()
	verbose = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()

	watchCmd  = app.Command("watch", "Follow a room and print its ranked songs and queue")
	watchRoom = watchCmd.Arg("room-id", "Room id").Required().String()

	voteCmd   = app.Command("vote", "Vote on a song and print the settled count")
	voteRoom  = voteCmd.Arg("room-id", "Room id").Required().String()
	voteSong  = voteCmd.Arg("song-id", "Song id").Required().String()
	voteValue = voteCmd.Flag("down", "Downvote instead of upvote").Bool()
)

func main() {
	_ = godotenv.Load()
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	level := "warn"
	if *verbose {
		level = "debug"
	}
	if err := logger.Init(logger.Config{Output: "stderr", Level: level}); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch command {
	case watchCmd.FullCommand():
		err = watch(ctx, *watchRoom)
	case voteCmd.FullCommand():
		value := 1
		if *voteValue {
			value = -1
		}
		err = castVote(ctx, *voteRoom, *voteSong, value)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// connect loads the room over REST, then subscribes to it.
func connect(ctx context.Context, roomID string) (*client.State, *client.Conn, error) {
	httpClient := &http.Client{Timeout: 10 * time.Second}
	data, err := client.FetchRoom(ctx, httpClient, *apiURL, roomID, *userID)
	if err != nil {
		return nil, nil, err
	}

	state := client.NewState(*userID)
	if err := state.ResyncJSON(data); err != nil {
		return nil, nil, err
	}

	conn, err := client.Dial(ctx, *wsURL, *token)
	if err != nil {
		return nil, nil, err
	}
	if err := conn.Join(roomID, *userID); err != nil {
		conn.Close()
		return nil, nil, errors.Wrap(err, "failed to join room")
	}
	return state, conn, nil
}

func watch(ctx context.Context, roomID string) error {
	state, conn, err := connect(ctx, roomID)
	if err != nil {
		return err
	}
	defer conn.Close()

	render(state)
	return conn.Run(ctx, state, func(data []byte, applyErr error) {
		var serverErr *client.ServerError
		if errors.As(applyErr, &serverErr) {
			fmt.Printf("! %s\n", serverErr.Error())
			return
		}
		frame, err := events.ParseFrame(data)
		if err != nil {
			return
		}
		switch frame.Type {
		case events.TypeJoinedRoom, events.TypeLeftRoom:
			return
		case events.TypeRoomDeleted:
			fmt.Println("room was deleted")
			conn.Close()
			return
		}
		render(state)
	})
}

// castVote sends one vote and waits for the server's answer for that song.
func castVote(ctx context.Context, roomID, songID string, value int) error {
	state, conn, err := connect(ctx, roomID)
	if err != nil {
		return err
	}
	defer conn.Close()

	guess, err := state.ToggleVote(songID, value)
	if err != nil {
		return err
	}
	fmt.Printf("sent %+d, expecting %d\n", value, guess.VoteCount)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	settled := make(chan error, 1)
	settle := func(err error) {
		select {
		case settled <- err:
		default:
		}
	}
	go func() {
		_ = conn.Run(ctx, state, func(data []byte, applyErr error) {
			var serverErr *client.ServerError
			if errors.As(applyErr, &serverErr) {
				settle(serverErr)
				return
			}
			frame, err := events.ParseFrame(data)
			if err == nil && frame.Type == events.TypeVoteUpdated {
				var p events.VoteUpdatedPayload
				if frame.Decode(&p) == nil && p.SongID == songID {
					settle(nil)
				}
			}
		})
	}()

	if err := conn.Vote(songID, value); err != nil {
		return errors.Wrap(err, "failed to send vote")
	}

	select {
	case err := <-settled:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		return errors.New("timed out waiting for the vote to settle")
	}

	for _, s := range state.Songs() {
		if s.ID == songID {
			fmt.Printf("%s now has %d\n", songID, s.VoteCount)
		}
	}
	return nil
}

func render(state *client.State) {
	room := state.Room()
	var b strings.Builder
	fmt.Fprintf(&b, "\n== %s (%s)\n", room.Name, room.Code)

	b.WriteString("Songs\n")
	for i, s := range state.Songs() {
		mark := " "
		if s.UserVote != nil {
			if *s.UserVote > 0 {
				mark = "+"
			} else {
				mark = "-"
			}
		}
		fmt.Fprintf(&b, "%3d. [%4d]%s %s - %s (%s)\n", i+1, s.VoteCount, mark, s.Title, s.Artist, s.ID)
	}

	b.WriteString("Queue\n")
	for _, e := range state.Queue() {
		title := e.SongID
		if e.Song != nil {
			title = e.Song.Title
		}
		fmt.Fprintf(&b, "%3d. %s\n", e.Position, title)
	}

	if pb := state.Playback(); pb != nil {
		status := "paused"
		if pb.IsPlaying {
			status = "playing"
		}
		fmt.Fprintf(&b, "Playback: %s at %dms", status, pb.ProgressMs)
		if pb.ControlledBy != "" {
			fmt.Fprintf(&b, " by %s", pb.ControlledBy)
		}
		b.WriteString("\n")
	}
	fmt.Print(b.String())
}
