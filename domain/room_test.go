package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testGame() Game {
	return Game{ID: "g1", Name: "skirmish", MinPlayers: 2, MaxPlayers: 3, Status: "active"}
}

func TestRoom_FillsToCapacity(t *testing.T) {
	req := require.New(t)

	// Given a fresh room hosted by p1
	room := NewRoom("room-1", testGame(), "p1")
	req.Equal(RoomOpen, room.State)
	req.Equal([]PlayerID{"p1"}, room.Members)

	// When members join up to capacity
	room.Lock()
	room.AddMember("p2")
	req.Equal(RoomOpen, room.State)
	room.AddMember("p3")

	// Then the room flips to FULL at the last seat
	req.Equal(RoomFull, room.State)
	req.True(room.IsMember("p3"))
	room.Unlock()
}

func TestRoom_RemoveMemberReopens(t *testing.T) {
	req := require.New(t)

	// Given a full room
	room := NewRoom("room-1", testGame(), "p1")
	room.Lock()
	room.AddMember("p2")
	room.AddMember("p3")
	req.Equal(RoomFull, room.State)

	// When a member leaves
	room.RemoveMember("p2")

	// Then the room reopens preserving join order
	req.Equal(RoomOpen, room.State)
	req.Equal([]PlayerID{"p1", "p3"}, room.Members)
	room.Unlock()
}

func TestRoom_WaitingOnlyWhileForming(t *testing.T) {
	req := require.New(t)

	room := NewRoom("room-1", testGame(), "p1")
	room.Lock()
	defer room.Unlock()

	req.True(room.Waiting())
	room.State = RoomStarting
	req.False(room.Waiting())
	room.State = RoomInProgress
	req.False(room.Waiting())
	room.State = RoomClosed
	req.False(room.Waiting())
}

func TestRoom_SinglePlayerGameStartsFull(t *testing.T) {
	req := require.New(t)

	// Given a game with a single seat
	solo := Game{ID: "g2", Name: "solitaire", MinPlayers: 1, MaxPlayers: 1, Status: "active"}

	// When the host creates the room
	room := NewRoom("room-1", solo, "p1")

	// Then it is already at capacity
	req.Equal(RoomFull, room.State)
}

func TestRoom_ViewIsASnapshot(t *testing.T) {
	req := require.New(t)

	// Given a room with two members
	room := NewRoom("room-1", testGame(), "p1")
	room.Lock()
	room.AddMember("p2")
	view := room.View()
	room.Unlock()

	// When the room changes after the snapshot
	room.Lock()
	room.AddMember("p3")
	room.Unlock()

	// Then the view is unaffected
	req.Equal([]PlayerID{"p1", "p2"}, view.Members)
	req.Equal(RoomOpen, view.State)
}
