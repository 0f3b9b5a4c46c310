package workers

import (
	"context"
	"log/slog"

	"lobby-lab/domain/event"
)

// MatchEventHandler applies an orchestrator event to matchmaking state.
// The room manager implements it.
type MatchEventHandler interface {
	HandleMatchEvent(ctx context.Context, e event.LobbyEvent) error
}

// MatchEventsWorker pumps orchestrator events into the room manager.
// Running it under the supervisor keeps the pump alive across handler
// panics, so a bad event never silently stops match completion.
type MatchEventsWorker struct {
	log     *slog.Logger
	events  <-chan event.LobbyEvent
	handler MatchEventHandler
}

func NewMatchEventsWorker(log *slog.Logger, events <-chan event.LobbyEvent, handler MatchEventHandler) *MatchEventsWorker {
	return &MatchEventsWorker{log: log, events: events, handler: handler}
}

func (w *MatchEventsWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping match event pump")
			return nil
		case e := <-w.events:
			if err := w.handler.HandleMatchEvent(ctx, e); err != nil {
				// Handler errors are per-event, the pump keeps going.
				w.log.Error("Match event handling failed", "event", e.Name(), "error", err)
			}
		}
	}
}
