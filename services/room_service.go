// Package services contains the matchmaking and account use cases. They
// orchestrate domain state, the session registry, the database gateway
// and the match orchestrator without touching sockets or framing.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"lobby-lab/contract"
	"lobby-lab/domain"
	"lobby-lab/domain/event"
	"lobby-lab/errors"
	"lobby-lab/runtime"
)

// Catalog resolves game entries. The database gateway implements it.
type Catalog interface {
	ReadGame(ctx context.Context, id domain.GameID) (domain.Game, error)
	QueryGames(ctx context.Context) ([]domain.Game, error)
}

// Sessions is the slice of the registry the room service needs.
type Sessions interface {
	Online(playerID domain.PlayerID) bool
	Username(playerID domain.PlayerID) string
	Bind(playerID domain.PlayerID, roomID domain.RoomID)
	Unbind(playerID domain.PlayerID)
	RoomOf(playerID domain.PlayerID) (domain.RoomID, bool)
	Sink(playerID domain.PlayerID) (contract.EventSink, bool)
}

// Matches is the orchestrator surface the room service drives.
type Matches interface {
	Launch(ctx context.Context, roomID domain.RoomID, game domain.Game, players []string) (*runtime.Instance, error)
	Complete(roomID domain.RoomID, res domain.MatchResult) error
	Abort(roomID domain.RoomID) error
}

// RoomService owns every room and pending invitation in the lobby. The
// maps are guarded by the service mutex, each room by its own lock, and
// the two never nest in the other order: lookups release the service
// mutex before taking a room lock.
type RoomService struct {
	mu          sync.RWMutex
	log         *slog.Logger
	catalog     Catalog
	sessions    Sessions
	matches     Matches
	rooms       map[domain.RoomID]*domain.Room
	invitations map[domain.RoomID]map[domain.PlayerID]*domain.Invitation
}

func NewRoomService(log *slog.Logger, catalog Catalog, sessions Sessions, matches Matches) *RoomService {
	return &RoomService{
		log:         log,
		catalog:     catalog,
		sessions:    sessions,
		matches:     matches,
		rooms:       make(map[domain.RoomID]*domain.Room),
		invitations: make(map[domain.RoomID]map[domain.PlayerID]*domain.Invitation),
	}
}

// CreateRoom opens a fresh room for gameID with playerID as host. A
// player occupies at most one room, so hosting while already seated is
// rejected.
func (s *RoomService) CreateRoom(ctx context.Context, playerID domain.PlayerID, gameID domain.GameID) (domain.RoomView, error) {
	if _, seated := s.sessions.RoomOf(playerID); seated {
		return domain.RoomView{}, errors.ErrAlreadyInRoom
	}

	game, err := s.catalog.ReadGame(ctx, gameID)
	if err != nil {
		return domain.RoomView{}, err
	}
	if !game.Active() {
		return domain.RoomView{}, fmt.Errorf("%w: %s is unpublished", errors.ErrGameNotFound, gameID)
	}

	room := domain.NewRoom(domain.RoomID(uuid.NewString()), game, playerID)

	s.mu.Lock()
	s.rooms[room.ID] = room
	s.mu.Unlock()

	room.Lock()
	s.sessions.Bind(playerID, room.ID)
	view := room.View()
	room.Unlock()

	s.log.Info("Room created", "roomId", room.ID, "game", game.Name, "host", playerID)
	return view, nil
}

// JoinRoom seats playerID in roomID. A pending invitation for the pair
// is consumed as accepted; joining without one is equally valid while
// the room is OPEN.
func (s *RoomService) JoinRoom(_ context.Context, playerID domain.PlayerID, roomID domain.RoomID) (domain.RoomView, error) {
	if _, seated := s.sessions.RoomOf(playerID); seated {
		return domain.RoomView{}, errors.ErrAlreadyInRoom
	}

	room, err := s.room(roomID)
	if err != nil {
		return domain.RoomView{}, err
	}

	room.Lock()
	defer room.Unlock()

	if room.State == domain.RoomFull {
		return domain.RoomView{}, errors.ErrRoomFull
	}
	if !room.Waiting() {
		return domain.RoomView{}, errors.ErrRoomNotOpen
	}
	if room.IsMember(playerID) {
		return domain.RoomView{}, errors.ErrAlreadyInRoom
	}

	room.AddMember(playerID)
	s.sessions.Bind(playerID, roomID)
	s.consumeInvitation(roomID, playerID)

	s.log.Info("Player joined room", "roomId", roomID, "player", playerID, "members", len(room.Members))
	return room.View(), nil
}

// LeaveRoom removes playerID from their current room. A departing host
// closes the room: every remaining member is evicted with exactly one
// HostLeft notice, pending invitations expire, and a running match is
// aborted. It returns true when the room closed.
func (s *RoomService) LeaveRoom(ctx context.Context, playerID domain.PlayerID) (bool, error) {
	roomID, seated := s.sessions.RoomOf(playerID)
	if !seated {
		return false, errors.ErrNotInRoom
	}
	room, err := s.room(roomID)
	if err != nil {
		return false, err
	}

	room.Lock()
	if playerID != room.HostID {
		room.RemoveMember(playerID)
		s.sessions.Unbind(playerID)
		room.Unlock()
		s.log.Info("Player left room", "roomId", roomID, "player", playerID)
		return false, nil
	}

	members, active := s.closeLocked(room)
	room.Unlock()

	if active {
		if abortErr := s.matches.Abort(roomID); abortErr != nil {
			s.log.Error("Failed to abort match on host leave", "roomId", roomID, "error", abortErr)
		}
	}
	// The departing host triggered the closure; only the evicted members
	// get the notice.
	evicted := lo.Without(members, playerID)
	s.notify(ctx, evicted, event.HostLeft{RoomID: roomID, At: time.Now().UTC()})

	s.log.Info("Host left, room closed", "roomId", roomID, "host", playerID, "evicted", len(evicted))
	return true, nil
}

// Invite offers inviteeID a seat in roomID. A fresh invitation
// supersedes any pending one for the same pair; the old id becomes
// useless for acceptance.
func (s *RoomService) Invite(ctx context.Context, inviterID domain.PlayerID, roomID domain.RoomID, inviteeID domain.PlayerID) (domain.Invitation, error) {
	room, err := s.room(roomID)
	if err != nil {
		return domain.Invitation{}, err
	}

	room.Lock()
	defer room.Unlock()

	if !room.IsMember(inviterID) {
		return domain.Invitation{}, errors.ErrNotInRoom
	}
	if room.IsMember(inviteeID) {
		return domain.Invitation{}, errors.ErrAlreadyInRoom
	}
	if room.State == domain.RoomFull {
		return domain.Invitation{}, errors.ErrRoomFull
	}
	if !room.Waiting() {
		return domain.Invitation{}, errors.ErrRoomNotOpen
	}
	if !s.sessions.Online(inviteeID) {
		return domain.Invitation{}, errors.ErrPlayerNotOnline
	}

	invitation := &domain.Invitation{
		ID:        uuid.NewString(),
		RoomID:    roomID,
		InviterID: inviterID,
		InviteeID: inviteeID,
		GameName:  room.GameName,
		Status:    domain.InvitationPending,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	if previous, ok := s.invitations[roomID][inviteeID]; ok {
		previous.Status = domain.InvitationRevoked
	}
	if s.invitations[roomID] == nil {
		s.invitations[roomID] = make(map[domain.PlayerID]*domain.Invitation)
	}
	s.invitations[roomID][inviteeID] = invitation
	s.mu.Unlock()

	s.notify(ctx, []domain.PlayerID{inviteeID}, event.InvitationReceived{
		RoomID:       roomID,
		InvitationID: invitation.ID,
		Inviter:      s.sessions.Username(inviterID),
		GameName:     room.GameName,
		At:           invitation.CreatedAt,
	})

	s.log.Info("Invitation sent", "roomId", roomID, "inviter", inviterID, "invitee", inviteeID)
	return *invitation, nil
}

// AcceptInvitation validates the pending invitation and seats the
// invitee. A superseded or consumed invitation id no longer matches and
// is reported as not found, so clients act on the freshest offer only.
func (s *RoomService) AcceptInvitation(ctx context.Context, playerID domain.PlayerID, roomID domain.RoomID, invitationID string) (domain.RoomView, error) {
	s.mu.RLock()
	invitation, ok := s.invitations[roomID][playerID]
	s.mu.RUnlock()
	if !ok || invitation.Status != domain.InvitationPending {
		return domain.RoomView{}, errors.ErrInvitationNotFound
	}
	if invitationID != "" && invitationID != invitation.ID {
		return domain.RoomView{}, errors.ErrInvitationNotFound
	}

	return s.JoinRoom(ctx, playerID, roomID)
}

// StartGame launches the room's game server. Only the host may start,
// and only with enough players seated. The room sits in STARTING while
// the process spawns; failures revert it so the lobby can retry without
// re-forming the room.
func (s *RoomService) StartGame(ctx context.Context, playerID domain.PlayerID, roomID domain.RoomID) (domain.RoomView, error) {
	seatedIn, seated := s.sessions.RoomOf(playerID)
	if !seated || seatedIn != roomID {
		return domain.RoomView{}, errors.ErrNotInRoom
	}
	room, err := s.room(roomID)
	if err != nil {
		return domain.RoomView{}, err
	}

	room.Lock()
	if playerID != room.HostID {
		room.Unlock()
		return domain.RoomView{}, errors.ErrNotHost
	}
	if !room.Waiting() {
		room.Unlock()
		return domain.RoomView{}, errors.ErrRoomNotOpen
	}
	if len(room.Members) < room.MinPlayers {
		room.Unlock()
		return domain.RoomView{}, fmt.Errorf("%w: %d of %d", errors.ErrInsufficientPlayers, len(room.Members), room.MinPlayers)
	}

	room.State = domain.RoomStarting
	gameID := room.GameID
	players := lo.Map(room.Members, func(id domain.PlayerID, _ int) string {
		if name := s.sessions.Username(id); name != "" {
			return name
		}
		return string(id)
	})
	memberCount := len(room.Members)
	room.Unlock()

	game, err := s.catalog.ReadGame(ctx, gameID)
	if err != nil {
		s.revertStarting(room, memberCount)
		return domain.RoomView{}, err
	}

	inst, err := s.matches.Launch(ctx, roomID, game, players)
	if err != nil {
		s.revertStarting(room, memberCount)
		s.log.Warn("Game start failed, room reverted", "roomId", roomID, "error", err)
		return domain.RoomView{}, err
	}

	room.Lock()
	room.Port = inst.Port
	view := room.View()
	room.Unlock()

	s.log.Info("Game starting", "roomId", roomID, "matchId", inst.MatchID, "port", inst.Port)
	return view, nil
}

// ReportResult applies a game server's game_ended callback to its
// running match.
func (s *RoomService) ReportResult(_ context.Context, res domain.MatchResult) error {
	return s.matches.Complete(res.RoomID, res)
}

// HandleMatchEvent reacts to orchestrator events. MatchStarted flips the
// room to IN_PROGRESS; MatchFinished closes it and releases every seat.
func (s *RoomService) HandleMatchEvent(ctx context.Context, e event.LobbyEvent) error {
	switch ev := e.(type) {
	case event.MatchStarted:
		return s.onMatchStarted(ctx, ev)
	case event.MatchFinished:
		return s.onMatchFinished(ctx, ev)
	default:
		s.log.Debug("Ignoring unhandled match event", "event", e.Name())
		return nil
	}
}

// Rooms lists a snapshot of every room currently known to the lobby.
func (s *RoomService) Rooms() []domain.RoomView {
	s.mu.RLock()
	rooms := make([]*domain.Room, 0, len(s.rooms))
	for _, room := range s.rooms {
		rooms = append(rooms, room)
	}
	s.mu.RUnlock()

	views := make([]domain.RoomView, 0, len(rooms))
	for _, room := range rooms {
		room.Lock()
		views = append(views, room.View())
		room.Unlock()
	}
	return views
}

// Room returns a snapshot of one room.
func (s *RoomService) Room(roomID domain.RoomID) (domain.RoomView, error) {
	room, err := s.room(roomID)
	if err != nil {
		return domain.RoomView{}, err
	}
	room.Lock()
	defer room.Unlock()
	return room.View(), nil
}

// Games lists the catalog for room creation.
func (s *RoomService) Games(ctx context.Context) ([]domain.Game, error) {
	return s.catalog.QueryGames(ctx)
}

// InvitationsFor lists the player's pending invitations across rooms.
func (s *RoomService) InvitationsFor(playerID domain.PlayerID) []domain.Invitation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pending []domain.Invitation
	for _, byInvitee := range s.invitations {
		if inv, ok := byInvitee[playerID]; ok && inv.Status == domain.InvitationPending {
			pending = append(pending, *inv)
		}
	}
	return pending
}

func (s *RoomService) onMatchStarted(ctx context.Context, ev event.MatchStarted) error {
	room, err := s.room(ev.RoomID)
	if err != nil {
		return err
	}

	room.Lock()
	if room.State != domain.RoomStarting {
		room.Unlock()
		return fmt.Errorf("room %s received match start while %s", ev.RoomID, room.State)
	}
	room.State = domain.RoomInProgress
	room.Port = ev.Port
	members := append([]domain.PlayerID{}, room.Members...)
	room.Unlock()

	s.notify(ctx, members, ev)
	return nil
}

func (s *RoomService) onMatchFinished(ctx context.Context, ev event.MatchFinished) error {
	room, err := s.room(ev.RoomID)
	if err != nil {
		// Host leave already closed the room; the match event has nothing
		// left to do.
		s.log.Debug("Match finished for an already closed room", "roomId", ev.RoomID)
		return nil
	}

	room.Lock()
	members, _ := s.closeLocked(room)
	room.Unlock()

	s.notify(ctx, members, ev)
	s.log.Info("Room closed after match", "roomId", ev.RoomID, "matchId", ev.MatchID)
	return nil
}

// closeLocked transitions the room to CLOSED, releases every seat and
// expires pending invitations. Callers hold the room lock. It returns
// the members to notify and whether a match was starting or running.
func (s *RoomService) closeLocked(room *domain.Room) ([]domain.PlayerID, bool) {
	active := room.State == domain.RoomStarting || room.State == domain.RoomInProgress
	room.State = domain.RoomClosed

	members := append([]domain.PlayerID{}, room.Members...)
	for _, member := range members {
		s.sessions.Unbind(member)
	}
	room.Members = nil

	s.mu.Lock()
	for _, inv := range s.invitations[room.ID] {
		inv.Status = domain.InvitationExpired
	}
	delete(s.invitations, room.ID)
	delete(s.rooms, room.ID)
	s.mu.Unlock()

	return members, active
}

func (s *RoomService) revertStarting(room *domain.Room, memberCount int) {
	room.Lock()
	defer room.Unlock()
	if room.State != domain.RoomStarting {
		return
	}
	if memberCount >= room.MaxPlayers {
		room.State = domain.RoomFull
	} else {
		room.State = domain.RoomOpen
	}
}

func (s *RoomService) consumeInvitation(roomID domain.RoomID, playerID domain.PlayerID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inv, ok := s.invitations[roomID][playerID]; ok {
		inv.Status = domain.InvitationAccepted
		delete(s.invitations[roomID], playerID)
	}
}

func (s *RoomService) room(roomID domain.RoomID) (*domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errors.ErrRoomNotFound, roomID)
	}
	return room, nil
}

// notify delivers an event to each listed player, best effort. Sinks of
// players that disconnected in the meantime are simply skipped.
func (s *RoomService) notify(ctx context.Context, players []domain.PlayerID, e event.LobbyEvent) {
	for _, playerID := range players {
		sink, ok := s.sessions.Sink(playerID)
		if !ok {
			continue
		}
		if err := sink.Notify(ctx, e); err != nil {
			s.log.Warn("Failed to deliver event", "player", playerID, "event", e.Name(), "error", err)
		}
	}
}
