package workers

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"lobby-lab/domain/event"
)

type recordingHandler struct {
	mu     sync.Mutex
	err    error
	events []event.LobbyEvent
}

func (h *recordingHandler) HandleMatchEvent(_ context.Context, e event.LobbyEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, e)
	return h.err
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

func TestMatchEventsWorker_ForwardsEvents(t *testing.T) {
	req := require.New(t)

	// Given a running pump
	events := make(chan event.LobbyEvent, 4)
	handler := &recordingHandler{}
	worker := NewMatchEventsWorker(slog.New(slog.DiscardHandler), events, handler)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = worker.Run(ctx) }()

	// When events arrive on the channel
	events <- event.MatchStarted{RoomID: "room-1", MatchID: "m1", Port: 10100, At: time.Now().UTC()}
	events <- event.MatchFinished{RoomID: "room-1", MatchID: "m1", At: time.Now().UTC()}

	// Then both reach the handler in order
	req.Eventually(func() bool { return handler.count() == 2 }, time.Second, 5*time.Millisecond)
	req.Equal("match_started", handler.events[0].Name())
	req.Equal("match_finished", handler.events[1].Name())
}

func TestMatchEventsWorker_HandlerErrorKeepsPumping(t *testing.T) {
	req := require.New(t)

	// Given a handler that always fails
	events := make(chan event.LobbyEvent, 4)
	handler := &recordingHandler{err: fmt.Errorf("transient")}
	worker := NewMatchEventsWorker(slog.New(slog.DiscardHandler), events, handler)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = worker.Run(ctx) }()

	// When two events arrive
	events <- event.MatchFinished{RoomID: "room-1", MatchID: "m1", At: time.Now().UTC()}
	events <- event.MatchFinished{RoomID: "room-2", MatchID: "m2", At: time.Now().UTC()}

	// Then the second event is still processed after the first failure
	req.Eventually(func() bool { return handler.count() == 2 }, time.Second, 5*time.Millisecond)
}

func TestMatchEventsWorker_StopsOnContextCancel(t *testing.T) {
	req := require.New(t)

	// Given a running pump
	events := make(chan event.LobbyEvent)
	worker := NewMatchEventsWorker(slog.New(slog.DiscardHandler), events, &recordingHandler{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	// When the context is canceled
	cancel()

	// Then Run returns cleanly
	select {
	case err := <-done:
		req.NoError(err)
	case <-time.After(time.Second):
		req.Fail("worker should have stopped on cancel")
	}
}
