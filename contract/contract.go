package contract

import (
	"context"
	"reflect"

	"lobby-lab/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself. It can be silly and focused; the
// supervisor handles panics and restarts.
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes, avoiding the need
// for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink receives asynchronous lobby notifications for one session.
// The lobby connection implements it; writes interleave safely with
// command responses.
type EventSink interface {
	Notify(ctx context.Context, e event.LobbyEvent) error
}

// LaunchSpec is the opaque launch recipe resolved from a catalog entry:
// executable, arguments, working directory and extra environment. The
// orchestrator fills in the assigned port and room id.
type LaunchSpec struct {
	Command string
	Args    []string
	Dir     string
	Env     []string
}

// ProcessHandle is the capability the orchestrator holds over a spawned
// game server. It is exclusively owned by that instance's monitor for the
// whole process lifetime.
type ProcessHandle interface {
	PID() int
	// Wait blocks until the process exits and returns the exit error, if
	// any. It must be called exactly once.
	Wait() error
	Kill() error
}

// ProcessLauncher starts external game-server processes. Modeled as a
// capability so the orchestrator stays decoupled from any specific game's
// implementation, and so tests can substitute in-memory processes.
type ProcessLauncher interface {
	Launch(ctx context.Context, spec LaunchSpec) (ProcessHandle, error)
}
