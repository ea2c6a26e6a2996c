package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/zulandar/carpool/internal/channel"
	"github.com/zulandar/carpool/internal/chat"
	"github.com/zulandar/carpool/internal/models"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func chatFixture(t *testing.T) (*chat.Reconciler, *channel.MockChannel, *models.Trip, *lockedWriter, *strings.Builder) {
	t.Helper()
	_, srv := newBackend(t)
	store := storeFor(t, writeConfig(t, srv.URL, models.RolePassenger))
	trip := cachedTrip(31, models.TripInProgress)
	trip.ChatMessages = []models.ServerMessage{
		{ID: "1", Content: "hola a todos", AuthorID: 7, AuthorName: "Ana", SentAt: time.Now()},
	}

	ch := channel.NewMockChannel(trip.ID)
	sb := new(strings.Builder)
	out := &lockedWriter{w: sb}
	rec, err := chat.NewReconciler(chat.ReconcilerOpts{
		Channel:  ch,
		Store:    store,
		TripID:   trip.ID,
		ChatID:   *trip.ChatID,
		OnChange: func(c chat.Change) { printChange(out, c) },
		NewID:    func() string { return "local-1" },
	})
	if err != nil {
		t.Fatal(err)
	}
	return rec, ch, trip, out, sb
}

func (l *lockedWriter) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.(*strings.Builder).String()
}

func TestChatSession_SendAndConfirm(t *testing.T) {
	rec, ch, trip, out, _ := chatFixture(t)
	author := chat.Author{ID: 3, Name: "Luis"}

	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() { done <- chatSession(context.Background(), rec, trip, author, pr, out, false) }()

	waitFor(t, "channel connect", func() bool {
		_, err := ch.Listen(context.Background())
		return err == nil
	})
	if !strings.Contains(out.String(), "Ana: hola a todos") {
		t.Errorf("history not printed: %q", out.String())
	}

	fmt.Fprintln(pw, "  ya voy  ")
	waitFor(t, "send", func() bool { return ch.SentCount() == 1 })
	if sent := ch.AllSent()[0]; sent.Content != "ya voy" || sent.AuthorID != 3 || sent.ChatID != 55 {
		t.Errorf("sent = %+v", sent)
	}

	ch.SimulateInbound([]byte(`{"id": 9, "contenido": "ya voy", "fechaEnvio": "2026-03-01T07:40:00", "autor": {"id": 3, "nombre": "Luis"}}`))
	waitFor(t, "confirmation", func() bool {
		msgs := rec.Messages()
		return len(msgs) == 2 && !msgs[1].Pending()
	})

	pw.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("chatSession: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("chatSession did not return after input closed")
	}

	text := out.String()
	if !strings.Contains(text, "Luis: ya voy (sending)") {
		t.Errorf("pending line missing: %q", text)
	}
	if !strings.Contains(text, "delivered: ya voy") {
		t.Errorf("delivery line missing: %q", text)
	}
}

func TestChatSession_SendFailureEchoesInput(t *testing.T) {
	rec, ch, trip, out, _ := chatFixture(t)
	ch.SetSendErr(errors.New("socket closed"))

	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() { done <- chatSession(context.Background(), rec, trip, chat.Author{ID: 3, Name: "Luis"}, pr, out, false) }()

	waitFor(t, "channel connect", func() bool {
		_, err := ch.Listen(context.Background())
		return err == nil
	})
	fmt.Fprintln(pw, "hola")
	waitFor(t, "failure notice", func() bool {
		return strings.Contains(out.String(), "your message was: hola")
	})
	pw.Close()
	<-done

	if got := rec.Messages(); len(got) != 1 {
		t.Errorf("Messages() = %+v, want only the history entry", got)
	}
}

func TestChatSession_CancelledContext(t *testing.T) {
	rec, _, trip, out, _ := chatFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	pr, _ := io.Pipe()

	done := make(chan error, 1)
	go func() { done <- chatSession(ctx, rec, trip, chat.Author{ID: 3}, pr, out, false) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("chatSession: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("chatSession did not return after cancel")
	}
}
