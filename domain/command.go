package domain

import "time"

// Envelope selects the command variant on the wire. Unknown command
// values are protocol errors, never silent no-ops.
type Envelope struct {
	Command string `json:"command"`
}

type RegisterCommand struct {
	Username string `json:"username" validate:"required,min=1,max=64"`
	Password string `json:"password" validate:"required,min=1"`
}

type LoginCommand struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type CreateRoomCommand struct {
	UserID string `json:"userId" validate:"required"`
	GameID string `json:"gameId" validate:"required"`
}

type JoinRoomCommand struct {
	UserID string `json:"userId" validate:"required"`
	RoomID string `json:"roomId" validate:"required"`
}

type LeaveRoomCommand struct {
	UserID string `json:"userId" validate:"required"`
	RoomID string `json:"roomId" validate:"required"`
}

type InvitePlayerCommand struct {
	UserID    string `json:"userId" validate:"required"`
	RoomID    string `json:"roomId" validate:"required"`
	InviteeID string `json:"inviteeId" validate:"required"`
}

// AcceptInvitationCommand may carry the invitation id the client saw.
// When present it must match the current pending invitation; a stale id
// from a superseded invitation is rejected.
type AcceptInvitationCommand struct {
	UserID       string `json:"userId" validate:"required"`
	RoomID       string `json:"roomId" validate:"required"`
	InvitationID string `json:"invitationId"`
}

type StartGameCommand struct {
	UserID string `json:"userId" validate:"required"`
	RoomID string `json:"roomId" validate:"required"`
}

type CheckRoomStatusCommand struct {
	RoomID string `json:"roomId" validate:"required"`
}

// GameEndedCommand is sent by the spawned game server, not by players.
// The token is the signed match token minted at launch; it scopes the
// report to exactly one room and match.
type GameEndedCommand struct {
	Token   string         `json:"token" validate:"required"`
	RoomID  string         `json:"roomId" validate:"required"`
	MatchID string         `json:"matchId" validate:"required"`
	Users   []string       `json:"users"`
	StartAt time.Time      `json:"startAt"`
	EndAt   time.Time      `json:"endAt"`
	Results []PlayerResult `json:"results"`
}
