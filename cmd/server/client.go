package main

import (
	"context"
	"encoding/json"
	"errors"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/amanhasank/together-stream/internal/client"
	"github.com/amanhasank/together-stream/internal/protocol"
	"github.com/amanhasank/together-stream/internal/reconcile"
)

var clientOpts struct {
	url         string
	origin      string
	room        string
	user        string
	name        string
	takeControl bool
	play        bool
	verbose     bool
}

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Join a room with a simulated player and keep it in sync",
	Long: `Headless sync client. Joins a room over WebSocket, drives a simulated player
and logs every correction applied to it. With --take-control it becomes the
controller and emits periodic sync-update events instead.`,
	RunE: runClient,
}

func init() {
	f := clientCmd.Flags()
	f.StringVar(&clientOpts.url, "url", "ws://localhost:5000/ws", "server WebSocket endpoint")
	f.StringVar(&clientOpts.origin, "origin", "", "Origin header sent on upgrade")
	f.StringVar(&clientOpts.room, "room", "", "room code to join (required)")
	f.StringVar(&clientOpts.user, "user", "", "stable user id (defaults to the connection id)")
	f.StringVar(&clientOpts.name, "name", "", "display name")
	f.BoolVar(&clientOpts.takeControl, "take-control", false, "take control after joining")
	f.BoolVar(&clientOpts.play, "play", false, "with --take-control, start playback from 0")
	f.BoolVar(&clientOpts.verbose, "verbose", false, "log every received event")
	_ = clientCmd.MarkFlagRequired("room")
}

func runClient(cmd *cobra.Command, args []string) error {
	if clientOpts.play && (!clientOpts.takeControl || clientOpts.user == "") {
		return errors.New("--play requires --take-control and --user")
	}
	if clientOpts.verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	player := reconcile.NewSimPlayer(nil)
	var sess *client.Session
	started := false
	startPlayback := func(env protocol.Envelope) {
		if controllerOf(env) != clientOpts.user {
			return
		}
		started = true
		player.Play()
		if err := sess.Conn().Emit(protocol.EventPlay, protocol.PlaybackRequest{Position: player.Position()}); err != nil {
			logrus.WithError(err).Warn("Failed to emit play")
		}
	}
	cfg := client.SessionConfig{
		URL:         clientOpts.url,
		Origin:      clientOpts.origin,
		RoomID:      clientOpts.room,
		UserID:      clientOpts.user,
		DisplayName: clientOpts.name,
		TakeControl: clientOpts.takeControl,
		Player:      player,
		OnEvent: func(env protocol.Envelope) {
			logrus.WithField("event", env.Type).Debug(string(env.Data))
			if clientOpts.play && !started {
				startPlayback(env)
			}
		},
	}
	sess, err := client.NewSession(ctx, cfg)
	if err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{"room_id": clientOpts.room, "url": clientOpts.url}).Info("Client connected")
	err = sess.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// controllerOf 从 room-state 或 control-changed 中取出当前控制者
func controllerOf(env protocol.Envelope) string {
	switch env.Type {
	case protocol.EventRoomState:
		var msg protocol.SessionMessage
		if err := json.Unmarshal(env.Data, &msg); err == nil && msg.Session != nil && msg.Session.Controller != nil {
			return msg.Session.Controller.UserID
		}
	case protocol.EventControlChanged:
		var msg protocol.ControlChangedMessage
		if err := json.Unmarshal(env.Data, &msg); err == nil {
			return msg.Controller.UserID
		}
	}
	return ""
}
