package domain

import "time"

// Game is a catalog entry resolved through the database gateway. Command,
// Args and WorkDir come from the uploaded game package and are treated as
// opaque: the lobby appends the assigned port and room id but never
// interprets them.
type Game struct {
	ID             GameID   `json:"id"`
	Name           string   `json:"name"`
	MinPlayers     int      `json:"minPlayers"`
	MaxPlayers     int      `json:"maxPlayers"`
	CurrentVersion string   `json:"currentVersion"`
	Command        string   `json:"command"`
	Args           []string `json:"args"`
	WorkDir        string   `json:"workDir"`
	Status         string   `json:"status"`
}

// Active reports whether the game is still published by its developer.
func (g Game) Active() bool {
	return g.Status == "active"
}

type InstanceStatus string

const (
	InstanceStarting InstanceStatus = "STARTING"
	InstanceRunning  InstanceStatus = "RUNNING"
	InstanceExited   InstanceStatus = "EXITED"
	InstanceFailed   InstanceStatus = "FAILED"
)

// PlayerResult is one participant's outcome as reported by the game
// server.
type PlayerResult struct {
	Player  string `json:"player"`
	Outcome string `json:"outcome"`
}

// MatchResult is the structured payload a game server reports through its
// game_ended callback before exiting.
type MatchResult struct {
	MatchID string         `json:"matchId"`
	RoomID  RoomID         `json:"roomId"`
	Users   []string       `json:"users"`
	StartAt time.Time      `json:"startAt"`
	EndAt   time.Time      `json:"endAt"`
	Results []PlayerResult `json:"results"`
}

// GameLogEntry is the write-only record sent to the database collaborator
// at match end. It is not held in memory once the write succeeds; a
// failed write is logged for reconciliation, never re-presented to
// players as a failed match.
type GameLogEntry struct {
	MatchID     string         `json:"matchId"`
	RoomID      RoomID         `json:"roomId"`
	GameID      GameID         `json:"gameId"`
	GameName    string         `json:"gameName"`
	GameVersion string         `json:"gameVersion"`
	Users       []string       `json:"users"`
	StartAt     time.Time      `json:"startAt"`
	EndAt       time.Time      `json:"endAt"`
	Results     []PlayerResult `json:"results,omitempty"`
	Aborted     bool           `json:"aborted,omitempty"`
	Reason      string         `json:"reason,omitempty"`
}

// Process identifies a spawned game server for health tracking.
type Process struct {
	PID    int
	RoomID RoomID
}
