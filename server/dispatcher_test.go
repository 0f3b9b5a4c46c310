package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"lobby-lab/auth"
	"lobby-lab/domain"
	lobbyerrors "lobby-lab/errors"
	"lobby-lab/gateway"
	"lobby-lab/protocol"
	"lobby-lab/runtime"
	"lobby-lab/services"
)

type memoryAccounts struct {
	mu    sync.Mutex
	users map[string]*gateway.User
}

func (a *memoryAccounts) QueryUserByName(_ context.Context, name string) (*gateway.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if u, ok := a.users[name]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, nil
}

func (a *memoryAccounts) QueryOnlineUsers(_ context.Context) ([]gateway.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var online []gateway.User
	for _, u := range a.users {
		if u.Online {
			online = append(online, *u)
		}
	}
	return online, nil
}

func (a *memoryAccounts) CreateUser(_ context.Context, name, password string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.users[name]; ok {
		return "", lobbyerrors.ErrUserExists
	}
	id := uuid.NewString()
	a.users[name] = &gateway.User{ID: id, Name: name, PasswordHash: auth.HashPassword(password)}
	return id, nil
}

func (a *memoryAccounts) UpdateUser(_ context.Context, id string, fields map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, u := range a.users {
		if u.ID == id {
			if online, ok := fields["online"].(bool); ok {
				u.Online = online
			}
			return nil
		}
	}
	return lobbyerrors.ErrUserNotFound
}

type memoryCatalog struct{}

func (memoryCatalog) ReadGame(_ context.Context, id domain.GameID) (domain.Game, error) {
	if id != "g1" {
		return domain.Game{}, fmt.Errorf("%w: %s", lobbyerrors.ErrGameNotFound, id)
	}
	return domain.Game{
		ID: "g1", Name: "skirmish", MinPlayers: 2, MaxPlayers: 4,
		CurrentVersion: "1.0.0", Command: "python3", Status: "active",
	}, nil
}

func (memoryCatalog) QueryGames(_ context.Context) ([]domain.Game, error) {
	g, _ := memoryCatalog{}.ReadGame(context.Background(), "g1")
	return []domain.Game{g}, nil
}

type stubMatches struct {
	mu        sync.Mutex
	completed []domain.MatchResult
}

func (m *stubMatches) Launch(_ context.Context, roomID domain.RoomID, _ domain.Game, _ []string) (*runtime.Instance, error) {
	return &runtime.Instance{RoomID: roomID, MatchID: "match-1", Port: 10100}, nil
}

func (m *stubMatches) Complete(_ domain.RoomID, res domain.MatchResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed = append(m.completed, res)
	return nil
}

func (m *stubMatches) Abort(domain.RoomID) error { return nil }

type testHarness struct {
	addr    string
	tokens  *auth.TokenIssuer
	matches *stubMatches
	cancel  context.CancelFunc
}

func startTestServer(t *testing.T) *testHarness {
	t.Helper()
	log := slog.New(slog.DiscardHandler)

	registry := runtime.NewRegistry()
	matches := &stubMatches{}
	accounts := &memoryAccounts{users: make(map[string]*gateway.User)}
	tokens := auth.NewTokenIssuer("test-secret", time.Hour)

	authService := services.NewAuthService(log, accounts, registry)
	roomService := services.NewRoomService(log, memoryCatalog{}, registry, matches)
	dispatcher := NewDispatcher(log, authService, roomService, tokens, 5*time.Second)

	srv := New(log, "127.0.0.1:0", dispatcher)
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = srv.Serve(ctx) }()
	t.Cleanup(cancel)

	return &testHarness{addr: srv.Addr(), tokens: tokens, matches: matches, cancel: cancel}
}

// client is a minimal lobby client for tests. Event frames arriving
// between command responses are buffered.
type client struct {
	t      *testing.T
	conn   net.Conn
	events []map[string]any
}

func dialClient(t *testing.T, addr string) *client {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &client{t: t, conn: conn}
}

func (c *client) send(payload map[string]any) {
	c.t.Helper()
	require.NoError(c.t, protocol.Write(c.conn, payload))
}

func (c *client) readFrame() map[string]any {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	raw, err := protocol.Read(c.conn)
	require.NoError(c.t, err)
	var frame map[string]any
	require.NoError(c.t, json.Unmarshal(raw, &frame))
	return frame
}

// do sends a command and returns its response, buffering any event
// frames that arrive first.
func (c *client) do(payload map[string]any) map[string]any {
	c.t.Helper()
	c.send(payload)
	for {
		frame := c.readFrame()
		if frame["status"] == "event" {
			c.events = append(c.events, frame)
			continue
		}
		return frame
	}
}

// nextEvent returns the oldest buffered event, reading more frames if
// needed.
func (c *client) nextEvent() map[string]any {
	c.t.Helper()
	if len(c.events) > 0 {
		e := c.events[0]
		c.events = c.events[1:]
		return e
	}
	for {
		frame := c.readFrame()
		if frame["status"] == "event" {
			return frame
		}
	}
}

func (c *client) registerAndLogin(name string) string {
	c.t.Helper()
	resp := c.do(map[string]any{"command": "register", "username": name, "password": "pw"})
	require.Equal(c.t, "ok", resp["status"])
	resp = c.do(map[string]any{"command": "login", "username": name, "password": "pw"})
	require.Equal(c.t, "ok", resp["status"])
	return resp["data"].(map[string]any)["userId"].(string)
}

func TestDispatcher_RegisterLoginFlow(t *testing.T) {
	req := require.New(t)

	// Given a running server
	h := startTestServer(t)
	c := dialClient(t, h.addr)

	// When registering and logging in
	resp := c.do(map[string]any{"command": "register", "username": "alice", "password": "pw"})
	req.Equal("ok", resp["status"])

	resp = c.do(map[string]any{"command": "login", "username": "alice", "password": "pw"})

	// Then the session opens with the account id
	req.Equal("ok", resp["status"])
	data := resp["data"].(map[string]any)
	req.NotEmpty(data["userId"])
	req.Equal("alice", data["username"])

	// And the player lists as online
	resp = c.do(map[string]any{"command": "list_users"})
	req.Equal("ok", resp["status"])
	req.Contains(resp["data"], "alice")
}

func TestDispatcher_CommandsRequireLogin(t *testing.T) {
	req := require.New(t)

	// Given a connected but unauthenticated client
	h := startTestServer(t)
	c := dialClient(t, h.addr)

	// When issuing a room command
	resp := c.do(map[string]any{"command": "create_room", "userId": "u1", "gameId": "g1"})

	// Then the command is rejected without closing the connection
	req.Equal("error", resp["status"])
	req.Equal("NOT_LOGGED_IN", resp["code"])

	resp = c.do(map[string]any{"command": "list_rooms"})
	req.Equal("ok", resp["status"])
}

func TestDispatcher_WrongCredentials(t *testing.T) {
	req := require.New(t)

	// Given a registered user
	h := startTestServer(t)
	c := dialClient(t, h.addr)
	resp := c.do(map[string]any{"command": "register", "username": "alice", "password": "pw"})
	req.Equal("ok", resp["status"])

	// When logging in with a wrong password
	resp = c.do(map[string]any{"command": "login", "username": "alice", "password": "wrong"})

	// Then the stable code comes back
	req.Equal("error", resp["status"])
	req.Equal("INVALID_CREDENTIALS", resp["code"])
}

func TestDispatcher_UnknownCommandClosesConnection(t *testing.T) {
	req := require.New(t)

	// Given a connected client
	h := startTestServer(t)
	c := dialClient(t, h.addr)

	// When sending an unknown command
	resp := c.do(map[string]any{"command": "fly_to_the_moon"})

	// Then a protocol error is returned and the connection closes
	req.Equal("error", resp["status"])
	req.Equal("PROTOCOL_ERROR", resp["code"])

	req.NoError(c.conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
	_, err := protocol.Read(c.conn)
	req.Error(err)
}

func TestDispatcher_ValidationFailure(t *testing.T) {
	req := require.New(t)

	// Given a connected client
	h := startTestServer(t)
	c := dialClient(t, h.addr)

	// When registering without a password
	resp := c.do(map[string]any{"command": "register", "username": "alice"})

	// Then the payload is rejected as a bad request
	req.Equal("error", resp["status"])
	req.Equal("BAD_REQUEST", resp["code"])
}

func TestDispatcher_RoomLifecycleOverTheWire(t *testing.T) {
	req := require.New(t)

	// Given two logged-in clients
	h := startTestServer(t)
	host := dialClient(t, h.addr)
	guest := dialClient(t, h.addr)
	hostID := host.registerAndLogin("alice")
	guestID := guest.registerAndLogin("bob")

	// When the host creates a room and invites the guest
	resp := host.do(map[string]any{"command": "create_room", "userId": hostID, "gameId": "g1"})
	req.Equal("ok", resp["status"])
	roomID := resp["data"].(map[string]any)["roomId"].(string)

	resp = host.do(map[string]any{"command": "invite_player", "userId": hostID, "roomId": roomID, "inviteeId": guestID})
	req.Equal("ok", resp["status"])

	// Then the guest receives the invitation as an event frame
	invitation := guest.nextEvent()
	req.Equal("invitation_received", invitation["event"])
	payload := invitation["payload"].(map[string]any)
	req.Equal(roomID, payload["roomId"])
	req.Equal("alice", payload["inviter"])

	// When the guest accepts
	resp = guest.do(map[string]any{
		"command": "accept_invitation", "userId": guestID,
		"roomId": roomID, "invitationId": payload["invitationId"],
	})
	req.Equal("ok", resp["status"])
	req.Len(resp["data"].(map[string]any)["members"], 2)

	// And the host starts the game
	resp = host.do(map[string]any{"command": "start_game", "userId": hostID, "roomId": roomID})
	req.Equal("ok", resp["status"])
	data := resp["data"].(map[string]any)
	req.Equal("STARTING", data["state"])
	req.EqualValues(10100, data["port"])

	// Then anyone can check the room status
	resp = guest.do(map[string]any{"command": "check_room_status", "roomId": roomID})
	req.Equal("ok", resp["status"])
	req.Equal("STARTING", resp["data"].(map[string]any)["state"])
}

func TestDispatcher_HostDisconnectEvictsMembers(t *testing.T) {
	req := require.New(t)

	// Given a room with a host and one member
	h := startTestServer(t)
	host := dialClient(t, h.addr)
	guest := dialClient(t, h.addr)
	hostID := host.registerAndLogin("alice")
	guestID := guest.registerAndLogin("bob")

	resp := host.do(map[string]any{"command": "create_room", "userId": hostID, "gameId": "g1"})
	req.Equal("ok", resp["status"])
	roomID := resp["data"].(map[string]any)["roomId"].(string)
	resp = guest.do(map[string]any{"command": "join_room", "userId": guestID, "roomId": roomID})
	req.Equal("ok", resp["status"])

	// When the host's socket drops without a leave_room
	req.NoError(host.conn.Close())

	// Then the member is evicted with a HostLeft notice
	hostLeft := guest.nextEvent()
	req.Equal("host_left", hostLeft["event"])
	req.Equal(roomID, hostLeft["payload"].(map[string]any)["roomId"])

	// And the room no longer exists
	resp = guest.do(map[string]any{"command": "check_room_status", "roomId": roomID})
	req.Equal("error", resp["status"])
	req.Equal("ROOM_NOT_FOUND", resp["code"])
}

func TestDispatcher_GameEndedRequiresValidToken(t *testing.T) {
	req := require.New(t)

	// Given a running server
	h := startTestServer(t)
	c := dialClient(t, h.addr)

	// When a report carries a token for another room
	token, err := h.tokens.Issue("other-room", "match-1")
	req.NoError(err)
	resp := c.do(map[string]any{
		"command": "game_ended", "token": token,
		"roomId": "room-1", "matchId": "match-1",
	})

	// Then the report is rejected
	req.Equal("error", resp["status"])
	req.Equal("INVALID_MATCH_TOKEN", resp["code"])
}

func TestDispatcher_GameEndedReportsResult(t *testing.T) {
	req := require.New(t)

	// Given a match token minted for the reporting room
	h := startTestServer(t)
	c := dialClient(t, h.addr)
	token, err := h.tokens.Issue("room-1", "match-1")
	req.NoError(err)

	// When the game server reports its result
	resp := c.do(map[string]any{
		"command": "game_ended", "token": token,
		"roomId": "room-1", "matchId": "match-1",
		"users":   []string{"alice", "bob"},
		"results": []map[string]string{{"player": "alice", "outcome": "won"}},
	})

	// Then the result reaches the orchestrator
	req.Equal("ok", resp["status"])
	h.matches.mu.Lock()
	defer h.matches.mu.Unlock()
	req.Len(h.matches.completed, 1)
	req.Equal("match-1", h.matches.completed[0].MatchID)
}
