package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/carpool/internal/channel"
	"github.com/zulandar/carpool/internal/chat"
	"github.com/zulandar/carpool/internal/gateway"
	"github.com/zulandar/carpool/internal/models"
	"golang.org/x/term"
)

func newChatCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open the chat of your current trip",
		Long:  "Shows the chat history of the current trip and lets you send messages line by line. Messages appear immediately and are confirmed once the server echoes them.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, configPath)
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func runChat(cmd *cobra.Command, configPath string) error {
	a, err := loadApp(configPath)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.ErrOrStderr())
	defer cancel()

	trip, err := chatTrip(ctx, a)
	if err != nil {
		return err
	}

	ch, err := channel.NewStomp(channel.StompOpts{
		URL:            a.cfg.Channel.URL,
		TripID:         trip.ID,
		ReconnectDelay: a.cfg.ReconnectDelay(),
		Heartbeat:      a.cfg.Heartbeat(),
	})
	if err != nil {
		return err
	}

	out := &lockedWriter{w: cmd.OutOrStdout()}
	rec, err := chat.NewReconciler(chat.ReconcilerOpts{
		Channel:  ch,
		Store:    a.store,
		TripID:   trip.ID,
		ChatID:   *trip.ChatID,
		OnChange: func(c chat.Change) { printChange(out, c) },
	})
	if err != nil {
		return err
	}

	in := cmd.InOrStdin()
	interactive := in == os.Stdin && term.IsTerminal(int(os.Stdin.Fd()))
	author := chat.Author{ID: a.cfg.User.ID, Name: a.cfg.User.Name}
	return chatSession(ctx, rec, trip, author, in, out, interactive)
}

// chatTrip finds the trip whose chat to open, preferring a fresh backend
// copy so its message snapshot is current.
func chatTrip(ctx context.Context, a *app) (*models.Trip, error) {
	trip, err := gateway.CurrentTrip(ctx, a.gw, a.cfg.User.Role, a.cfg.User.ID)
	switch {
	case err == nil:
		if !trip.State.Terminal() {
			if err := a.store.SaveCurrentTrip(trip); err != nil {
				return nil, fmt.Errorf("write cache: %w", err)
			}
		}
	case errors.Is(err, gateway.ErrNotFound):
		return nil, fmt.Errorf("chat: no current trip")
	default:
		cached, ok, cerr := a.store.CurrentTrip()
		if cerr != nil || !ok {
			return nil, fmt.Errorf("chat: load trip: %w", err)
		}
		trip = cached
	}
	if trip.State.Terminal() {
		return nil, fmt.Errorf("chat: trip %d is %s", trip.ID, trip.State)
	}
	if !trip.HasChat() {
		return nil, fmt.Errorf("chat: trip %d has no chat yet", trip.ID)
	}
	return trip, nil
}

// chatSession loads history, runs the reconciler and sends one message per
// input line until input ends or ctx is cancelled.
func chatSession(ctx context.Context, rec *chat.Reconciler, trip *models.Trip, author chat.Author, in io.Reader, out io.Writer, prompt bool) error {
	if err := rec.Activate(ctx, trip.ChatMessages); err != nil {
		return err
	}
	fmt.Fprintf(out, "Chat for trip %d (%s -> %s). Empty lines are ignored; Ctrl+D to leave.\n", trip.ID, trip.Origin, trip.Destination)
	for _, m := range rec.Messages() {
		printMessage(out, m)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- rec.Run(ctx) }()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		if prompt {
			fmt.Fprint(out, "> ")
		}
		select {
		case <-ctx.Done():
			return <-runErr
		case err := <-runErr:
			return err
		case line, ok := <-lines:
			if !ok {
				cancel()
				return <-runErr
			}
			if _, err := rec.SendLocal(ctx, line, author); err != nil {
				var sendErr *chat.SendError
				switch {
				case errors.Is(err, chat.ErrEmptyMessage):
				case errors.As(err, &sendErr):
					fmt.Fprintf(out, "! not sent (%v), your message was: %s\n", sendErr.Err, sendErr.Input)
				default:
					fmt.Fprintf(out, "! %v\n", err)
				}
			}
		}
	}
}

func printMessage(out io.Writer, m chat.Message) {
	suffix := ""
	if m.Pending() {
		suffix = " (sending)"
	}
	fmt.Fprintf(out, "[%s] %s: %s%s\n", m.SentAt.Local().Format(time.TimeOnly), m.AuthorName, m.Content, suffix)
}

func printChange(out io.Writer, c chat.Change) {
	switch c.Kind {
	case chat.Appended:
		printMessage(out, c.Message)
	case chat.Collapsed:
		fmt.Fprintf(out, "  delivered: %s\n", c.Message.Content)
	}
}

// lockedWriter serializes writes from the input loop and channel callbacks.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
