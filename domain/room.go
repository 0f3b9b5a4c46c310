// Package domain contains the core concepts of the lobby: rooms,
// invitations, catalog entries and game server instances. No network,
// storage, or process logic lives here.
package domain

import (
	"sync"
	"time"
)

type (
	RoomID   string
	PlayerID string
	GameID   string
)

// RoomState tracks the matchmaking lifecycle of a room.
type RoomState string

const (
	RoomOpen       RoomState = "OPEN"
	RoomFull       RoomState = "FULL"
	RoomStarting   RoomState = "STARTING"
	RoomInProgress RoomState = "IN_PROGRESS"
	RoomClosed     RoomState = "CLOSED"
)

// Room is a matchmaking session bound to one game and a bounded set of
// players. The room id is the unit of locking for the whole lobby: every
// mutation of a room serializes through its mutex, and the registry lock
// is only ever taken while a room lock is held, never the other way
// around.
type Room struct {
	mu sync.Mutex

	ID         RoomID
	GameID     GameID
	GameName   string
	HostID     PlayerID
	Members    []PlayerID // insertion order = join order, Members[0] is the host
	State      RoomState
	Port       int // non-zero only while STARTING or IN_PROGRESS
	MaxPlayers int
	MinPlayers int
	CreatedAt  time.Time
}

func NewRoom(id RoomID, game Game, host PlayerID) *Room {
	r := &Room{
		ID:         id,
		GameID:     game.ID,
		GameName:   game.Name,
		HostID:     host,
		Members:    []PlayerID{host},
		State:      RoomOpen,
		MaxPlayers: game.MaxPlayers,
		MinPlayers: game.MinPlayers,
		CreatedAt:  time.Now().UTC(),
	}
	if len(r.Members) >= r.MaxPlayers {
		r.State = RoomFull
	}
	return r
}

func (r *Room) Lock()   { r.mu.Lock() }
func (r *Room) Unlock() { r.mu.Unlock() }

// IsMember reports whether playerID currently belongs to the room.
// Callers must hold the room lock.
func (r *Room) IsMember(playerID PlayerID) bool {
	for _, id := range r.Members {
		if id == playerID {
			return true
		}
	}
	return false
}

// AddMember appends playerID preserving join order and flips the state to
// FULL when capacity is reached. Callers must hold the room lock.
func (r *Room) AddMember(playerID PlayerID) {
	r.Members = append(r.Members, playerID)
	if len(r.Members) >= r.MaxPlayers {
		r.State = RoomFull
	}
}

// RemoveMember drops playerID and reopens a FULL room. Callers must hold
// the room lock.
func (r *Room) RemoveMember(playerID PlayerID) {
	for i, id := range r.Members {
		if id == playerID {
			r.Members = append(r.Members[:i], r.Members[i+1:]...)
			break
		}
	}
	if r.State == RoomFull && len(r.Members) < r.MaxPlayers {
		r.State = RoomOpen
	}
}

// Waiting reports whether the room accepts membership changes, meaning no
// match is starting or running. Callers must hold the room lock.
func (r *Room) Waiting() bool {
	return r.State == RoomOpen || r.State == RoomFull
}

// RoomView is an immutable snapshot safe to hand out without the lock.
type RoomView struct {
	ID         RoomID    `json:"roomId"`
	GameID     GameID    `json:"gameId"`
	GameName   string    `json:"gameName"`
	HostID     PlayerID  `json:"hostId"`
	Members    []PlayerID `json:"members"`
	State      RoomState `json:"state"`
	Port       int       `json:"port,omitempty"`
	MaxPlayers int       `json:"maxPlayers"`
}

// View captures a snapshot of the room. Callers must hold the room lock.
func (r *Room) View() RoomView {
	members := make([]PlayerID, len(r.Members))
	copy(members, r.Members)
	return RoomView{
		ID:         r.ID,
		GameID:     r.GameID,
		GameName:   r.GameName,
		HostID:     r.HostID,
		Members:    members,
		State:      r.State,
		Port:       r.Port,
		MaxPlayers: r.MaxPlayers,
	}
}
