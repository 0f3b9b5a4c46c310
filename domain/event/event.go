// Package event defines the asynchronous notifications flowing from the
// orchestrator and room manager to connected sessions. Events cross
// goroutine boundaries on channels; none of them carry locks or handles.
package event

import (
	"time"

	"lobby-lab/domain"
)

type LobbyEvent interface {
	Name() string
	OccurredAt() time.Time
}

// HostLeft is delivered exactly once to each evicted member when the host
// leaves and the room closes.
type HostLeft struct {
	RoomID domain.RoomID `json:"roomId"`
	At     time.Time     `json:"at"`
}

func (e HostLeft) Name() string          { return "host_left" }
func (e HostLeft) OccurredAt() time.Time { return e.At }

// InvitationReceived notifies the invitee that a pending invitation
// exists (or was superseded by a fresh one).
type InvitationReceived struct {
	RoomID       domain.RoomID `json:"roomId"`
	InvitationID string        `json:"invitationId"`
	Inviter      string        `json:"inviter"`
	GameName     string        `json:"gameName"`
	At           time.Time     `json:"at"`
}

func (e InvitationReceived) Name() string          { return "invitation_received" }
func (e InvitationReceived) OccurredAt() time.Time { return e.At }

// MatchStarted reports that the game server process for a room is up and
// reachable on its assigned port.
type MatchStarted struct {
	RoomID      domain.RoomID `json:"roomId"`
	MatchID     string        `json:"matchId"`
	Port        int           `json:"gameServerPort"`
	GameName    string        `json:"gameName"`
	GameVersion string        `json:"gameVersion"`
	At          time.Time     `json:"at"`
}

func (e MatchStarted) Name() string          { return "match_started" }
func (e MatchStarted) OccurredAt() time.Time { return e.At }

// MatchFinished closes the loop on a match: either a structured outcome
// or a failure reason, never both.
type MatchFinished struct {
	RoomID  domain.RoomID         `json:"roomId"`
	MatchID string                `json:"matchId"`
	Outcome []domain.PlayerResult `json:"outcome,omitempty"`
	Failure string                `json:"failureReason,omitempty"`
	At      time.Time             `json:"at"`
}

func (e MatchFinished) Name() string          { return "match_finished" }
func (e MatchFinished) OccurredAt() time.Time { return e.At }
