package errors

import (
	stderrors "errors"
	"fmt"
)

// Protocol errors. Once framing is desynchronized there is no recovery,
// the connection must be closed.
var (
	ErrFrameTooLarge    = fmt.Errorf("frame exceeds length limit")
	ErrMalformedPayload = fmt.Errorf("payload is not valid JSON")
	ErrUnknownCommand   = fmt.Errorf("unknown command")
	ErrBadRequest       = fmt.Errorf("invalid request payload")
)

// Authentication errors. Recoverable, the client may retry.
var (
	ErrNotLoggedIn        = fmt.Errorf("not logged in")
	ErrAlreadyLoggedIn    = fmt.Errorf("user already logged in")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrUserExists         = fmt.Errorf("username already exists")
	ErrUserNotFound       = fmt.Errorf("user not found")
	ErrPlayerNotOnline    = fmt.Errorf("player is not online")
)

// Room and matchmaking errors. Recoverable.
var (
	ErrGameNotFound        = fmt.Errorf("game not found in catalog")
	ErrRoomNotFound        = fmt.Errorf("room not found")
	ErrRoomFull            = fmt.Errorf("room is full")
	ErrRoomNotOpen         = fmt.Errorf("room is not open for joining")
	ErrAlreadyInRoom       = fmt.Errorf("player is already in a room")
	ErrNotInRoom           = fmt.Errorf("player is not a member of this room")
	ErrNotHost             = fmt.Errorf("only the host may perform this action")
	ErrInsufficientPlayers = fmt.Errorf("not enough players to start the game")
	ErrInvitationNotFound  = fmt.Errorf("no pending invitation for this room")
	ErrInvitationExpired   = fmt.Errorf("invitation has expired")
)

// Orchestration errors.
var (
	ErrPortPoolExhausted   = fmt.Errorf("no free port in the pool")
	ErrDoubleRelease       = fmt.Errorf("port released while already free")
	ErrSpawnFailed         = fmt.Errorf("game server failed to start")
	ErrMatchNotFound       = fmt.Errorf("no running match for this room")
	ErrInvalidMatchToken   = fmt.Errorf("invalid match token")
	ErrDatabaseUnavailable = fmt.Errorf("database unavailable")
)

var ErrWorkerPanic = fmt.Errorf("worker panic")

// codes maps sentinels to the stable codes carried inside error response
// envelopes. Clients switch on the code, never on the message text.
var codes = map[error]string{
	ErrFrameTooLarge:       "PROTOCOL_ERROR",
	ErrMalformedPayload:    "PROTOCOL_ERROR",
	ErrUnknownCommand:      "PROTOCOL_ERROR",
	ErrBadRequest:          "BAD_REQUEST",
	ErrNotLoggedIn:         "NOT_LOGGED_IN",
	ErrAlreadyLoggedIn:     "ALREADY_LOGGED_IN",
	ErrInvalidCredentials:  "INVALID_CREDENTIALS",
	ErrUserExists:          "USER_EXISTS",
	ErrUserNotFound:        "USER_NOT_FOUND",
	ErrPlayerNotOnline:     "PLAYER_NOT_ONLINE",
	ErrGameNotFound:        "GAME_NOT_FOUND",
	ErrRoomNotFound:        "ROOM_NOT_FOUND",
	ErrRoomFull:            "ROOM_FULL",
	ErrRoomNotOpen:         "ROOM_NOT_OPEN",
	ErrAlreadyInRoom:       "ALREADY_IN_ROOM",
	ErrNotInRoom:           "NOT_IN_ROOM",
	ErrNotHost:             "NOT_HOST",
	ErrInsufficientPlayers: "INSUFFICIENT_PLAYERS",
	ErrInvitationNotFound:  "INVITATION_NOT_FOUND",
	ErrInvitationExpired:   "INVITATION_EXPIRED",
	ErrPortPoolExhausted:   "PORT_POOL_EXHAUSTED",
	ErrDoubleRelease:       "DOUBLE_RELEASE",
	ErrSpawnFailed:         "SPAWN_FAILED",
	ErrMatchNotFound:       "MATCH_NOT_FOUND",
	ErrInvalidMatchToken:   "INVALID_MATCH_TOKEN",
	ErrDatabaseUnavailable: "DATABASE_UNAVAILABLE",
}

// Code resolves the stable wire code for err, or INTERNAL when the error
// does not map to any sentinel.
func Code(err error) string {
	for sentinel, code := range codes {
		if stderrors.Is(err, sentinel) {
			return code
		}
	}
	return "INTERNAL"
}

// Fatal reports whether err must tear down the connection. Protocol-level
// errors cannot be recovered once the stream is desynchronized.
func Fatal(err error) bool {
	return stderrors.Is(err, ErrFrameTooLarge) ||
		stderrors.Is(err, ErrMalformedPayload) ||
		stderrors.Is(err, ErrUnknownCommand)
}

// Is re-exports the standard errors.Is so call sites keep a single
// errors import.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}
