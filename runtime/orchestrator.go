package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"lobby-lab/contract"
	"lobby-lab/domain"
	"lobby-lab/domain/event"
	"lobby-lab/errors"
)

// GameLogWriter persists match records at match end. Writes are best
// effort: an outage is recorded for reconciliation, never surfaced to
// players as a failed match.
type GameLogWriter interface {
	CreateGameLog(ctx context.Context, entry domain.GameLogEntry) error
}

// MatchTokenIssuer signs the token a game server must present when
// reporting its result.
type MatchTokenIssuer interface {
	Issue(roomID domain.RoomID, matchID string) (string, error)
}

// Orchestrator launches one ephemeral game server per starting match,
// monitors its lifetime in a dedicated goroutine, and releases every
// resource exactly once. The dispatcher handling start_game returns as
// soon as the process is up; match completion flows back to the room
// manager through the event channel, never by blocking a connection
// worker.
type Orchestrator struct {
	mu             sync.Mutex
	log            *slog.Logger
	ports          *PortAllocator
	launcher       contract.ProcessLauncher
	logs           GameLogWriter
	tokens         MatchTokenIssuer
	events         chan event.LobbyEvent
	processes      chan domain.Process
	instances      map[domain.RoomID]*Instance
	gamesDir       string
	acquireTimeout time.Duration
	logTimeout     time.Duration
}

func NewOrchestrator(log *slog.Logger, ports *PortAllocator, launcher contract.ProcessLauncher,
	logs GameLogWriter, tokens MatchTokenIssuer, gamesDir string,
	bufferSize int, acquireTimeout time.Duration) *Orchestrator {
	return &Orchestrator{
		log:            log,
		ports:          ports,
		launcher:       launcher,
		logs:           logs,
		tokens:         tokens,
		events:         make(chan event.LobbyEvent, bufferSize),
		processes:      make(chan domain.Process, bufferSize),
		instances:      make(map[domain.RoomID]*Instance),
		gamesDir:       gamesDir,
		acquireTimeout: acquireTimeout,
		logTimeout:     10 * time.Second,
	}
}

// Instance is one running game server. The process handle is owned
// exclusively by the monitor goroutine; everyone else sees snapshots.
type Instance struct {
	mu sync.Mutex

	RoomID      domain.RoomID
	MatchID     string
	GameID      domain.GameID
	GameName    string
	GameVersion string
	Port        int
	Players     []string
	StartedAt   time.Time

	status domain.InstanceStatus
	result *domain.MatchResult
	handle contract.ProcessHandle
}

func (i *Instance) Status() domain.InstanceStatus {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.status
}

func (i *Instance) setStatus(s domain.InstanceStatus) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.status = s
}

func (i *Instance) storeResult(res domain.MatchResult) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.result = &res
}

func (i *Instance) takeResult() *domain.MatchResult {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.result
}

// Events is consumed by the match event worker feeding the room manager.
func (o *Orchestrator) Events() <-chan event.LobbyEvent {
	return o.events
}

// Processes feeds the health monitoring worker with spawned PIDs.
func (o *Orchestrator) Processes() <-chan domain.Process {
	return o.processes
}

// Launch acquires a port, spawns the game server resolved from the
// catalog entry and registers its monitor. On spawn failure the port is
// released immediately and the caller reverts the room, so players can
// retry without re-forming it.
func (o *Orchestrator) Launch(ctx context.Context, roomID domain.RoomID, game domain.Game, players []string) (*Instance, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, o.acquireTimeout)
	defer cancel()

	port, err := o.ports.Acquire(acquireCtx)
	if err != nil {
		return nil, err
	}

	matchID := uuid.NewString()
	token, err := o.tokens.Issue(roomID, matchID)
	if err != nil {
		o.releasePort(port)
		return nil, fmt.Errorf("%w: minting match token: %v", errors.ErrSpawnFailed, err)
	}

	spec := o.launchSpec(game, roomID, matchID, port, token, players)
	handle, err := o.launcher.Launch(ctx, spec)
	if err != nil {
		o.releasePort(port)
		if errors.Is(err, errors.ErrSpawnFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", errors.ErrSpawnFailed, err)
	}

	inst := &Instance{
		RoomID:      roomID,
		MatchID:     matchID,
		GameID:      game.ID,
		GameName:    game.Name,
		GameVersion: game.CurrentVersion,
		Port:        port,
		Players:     players,
		StartedAt:   time.Now().UTC(),
		status:      domain.InstanceStarting,
		handle:      handle,
	}

	o.mu.Lock()
	o.instances[roomID] = inst
	o.mu.Unlock()

	select {
	case o.processes <- domain.Process{PID: handle.PID(), RoomID: roomID}:
	default:
		o.log.Debug("Process tracker channel full, skipping health tracking", "roomId", roomID)
	}

	inst.setStatus(domain.InstanceRunning)
	o.emit(event.MatchStarted{
		RoomID:      roomID,
		MatchID:     matchID,
		Port:        port,
		GameName:    game.Name,
		GameVersion: game.CurrentVersion,
		At:          time.Now().UTC(),
	})

	go o.monitor(inst)

	o.log.Info("Match launched", "roomId", roomID, "matchId", matchID,
		"game", game.Name, "port", port, "pid", handle.PID())
	return inst, nil
}

// Complete records the structured result reported by the game server
// through its game_ended callback. The monitor picks it up once the
// process exits.
func (o *Orchestrator) Complete(roomID domain.RoomID, res domain.MatchResult) error {
	o.mu.Lock()
	inst, ok := o.instances[roomID]
	o.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", errors.ErrMatchNotFound, roomID)
	}
	inst.storeResult(res)
	o.log.Info("Match result reported", "roomId", roomID, "matchId", inst.MatchID)
	return nil
}

// Abort kills the game server of a room whose match must not continue,
// typically because the host left mid-game. Cleanup still flows through
// the monitor.
func (o *Orchestrator) Abort(roomID domain.RoomID) error {
	o.mu.Lock()
	inst, ok := o.instances[roomID]
	o.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", errors.ErrMatchNotFound, roomID)
	}
	o.log.Info("Aborting match", "roomId", roomID, "matchId", inst.MatchID)
	return inst.handle.Kill()
}

// InstanceView returns a snapshot of the running instance for a room.
func (o *Orchestrator) InstanceView(roomID domain.RoomID) (domain.RoomID, int, domain.InstanceStatus, bool) {
	o.mu.Lock()
	inst, ok := o.instances[roomID]
	o.mu.Unlock()
	if !ok {
		return "", 0, "", false
	}
	return inst.RoomID, inst.Port, inst.Status(), true
}

// monitor owns the process handle for the instance's whole lifetime. It
// is the single place where the port is released and the game log entry
// is written, which makes exactly-once trivial.
func (o *Orchestrator) monitor(inst *Instance) {
	waitErr := inst.handle.Wait()

	result := inst.takeResult()
	endedAt := time.Now().UTC()

	status := domain.InstanceExited
	failure := ""
	switch {
	case result != nil && waitErr == nil:
	case waitErr != nil:
		status = domain.InstanceFailed
		failure = waitErr.Error()
	default:
		// Clean exit without reporting a result still counts as failed:
		// the match produced no outcome.
		status = domain.InstanceFailed
		failure = "game server exited without reporting a result"
	}
	inst.setStatus(status)

	if err := o.ports.Release(inst.Port); err != nil {
		o.log.Error("Port release invariant violated", "port", inst.Port, "error", err)
	}

	o.mu.Lock()
	delete(o.instances, inst.RoomID)
	o.mu.Unlock()

	entry := o.buildLogEntry(inst, result, endedAt, failure)
	ctx, cancel := context.WithTimeout(context.Background(), o.logTimeout)
	defer cancel()
	if err := o.logs.CreateGameLog(ctx, entry); err != nil {
		o.log.Error("Game log write failed, keeping for reconciliation",
			"roomId", inst.RoomID, "matchId", inst.MatchID, "error", err)
	}

	finished := event.MatchFinished{
		RoomID:  inst.RoomID,
		MatchID: inst.MatchID,
		Failure: failure,
		At:      endedAt,
	}
	if result != nil {
		finished.Outcome = result.Results
	}
	o.emit(finished)

	o.log.Info("Match finished", "roomId", inst.RoomID, "matchId", inst.MatchID,
		"status", status, "port", inst.Port)
}

func (o *Orchestrator) buildLogEntry(inst *Instance, result *domain.MatchResult,
	endedAt time.Time, failure string) domain.GameLogEntry {
	entry := domain.GameLogEntry{
		MatchID:     inst.MatchID,
		RoomID:      inst.RoomID,
		GameID:      inst.GameID,
		GameName:    inst.GameName,
		GameVersion: inst.GameVersion,
		Users:       inst.Players,
		StartAt:     inst.StartedAt,
		EndAt:       endedAt,
	}
	if result != nil {
		entry.Results = result.Results
		entry.StartAt = result.StartAt
		entry.EndAt = result.EndAt
		return entry
	}
	// The log stays append-only and complete even for aborted matches.
	entry.Aborted = true
	entry.Reason = failure
	return entry
}

func (o *Orchestrator) releasePort(port int) {
	if err := o.ports.Release(port); err != nil {
		o.log.Error("Port release invariant violated", "port", port, "error", err)
	}
}

func (o *Orchestrator) emit(e event.LobbyEvent) {
	select {
	case o.events <- e:
	default:
		o.log.Warn("Event channel full, dropping event", "event", e.Name())
	}
}

// launchSpec turns a catalog entry into the concrete process invocation.
// The argument convention follows the game package contract:
// <args...> <port> <roomId> <matchId> <players...>, with the same values
// duplicated in the environment for servers that prefer it.
func (o *Orchestrator) launchSpec(game domain.Game, roomID domain.RoomID, matchID string,
	port int, token string, players []string) contract.LaunchSpec {
	dir := game.WorkDir
	if dir == "" {
		dir = filepath.Join(o.gamesDir, string(game.ID), game.CurrentVersion)
	}

	args := append([]string{}, game.Args...)
	args = append(args, strconv.Itoa(port), string(roomID), matchID)
	args = append(args, players...)

	return contract.LaunchSpec{
		Command: game.Command,
		Args:    args,
		Dir:     dir,
		Env: []string{
			"GAME_PORT=" + strconv.Itoa(port),
			"GAME_ROOM=" + string(roomID),
			"MATCH_ID=" + matchID,
			"MATCH_TOKEN=" + token,
		},
	}
}
