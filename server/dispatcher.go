package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/go-playground/validator/v10"

	"lobby-lab/auth"
	"lobby-lab/domain"
	"lobby-lab/errors"
	"lobby-lab/protocol"
	"lobby-lab/services"
)

type okResponse struct {
	Status string `json:"status"`
	Data   any    `json:"data,omitempty"`
}

type errorResponse struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func ok(data any) okResponse {
	return okResponse{Status: "ok", Data: data}
}

func fail(err error) errorResponse {
	return errorResponse{Status: "error", Code: errors.Code(err), Message: err.Error()}
}

// Dispatcher reads frames off a connection, routes commands to the
// services and writes the response. It owns the per-connection session
// state: which player this socket authenticated as, and the implicit
// leave and logout when the socket dies.
type Dispatcher struct {
	log         *slog.Logger
	validate    *validator.Validate
	auth        *services.AuthService
	rooms       *services.RoomService
	tokens      *auth.TokenIssuer
	readTimeout time.Duration
}

func NewDispatcher(log *slog.Logger, authService *services.AuthService, rooms *services.RoomService,
	tokens *auth.TokenIssuer, readTimeout time.Duration) *Dispatcher {
	return &Dispatcher{
		log:         log,
		validate:    validator.New(),
		auth:        authService,
		rooms:       rooms,
		tokens:      tokens,
		readTimeout: readTimeout,
	}
}

// HandleConn drives one client connection until it closes. A dropped or
// misbehaving socket releases everything the session held: the player
// leaves their room, with host-leave semantics if they hosted, and the
// session is logged out.
func (d *Dispatcher) HandleConn(ctx context.Context, sock net.Conn) {
	conn := NewConn(d.log, sock)
	defer func() { _ = conn.Close() }()

	var playerID domain.PlayerID
	defer func() {
		if playerID == "" {
			return
		}
		if _, err := d.rooms.LeaveRoom(ctx, playerID); err != nil && !errors.Is(err, errors.ErrNotInRoom) {
			d.log.Warn("Implicit leave failed", "player", playerID, "error", err)
		}
		d.auth.Logout(ctx, playerID)
	}()

	d.log.Info("Client connected", "remote", conn.RemoteAddr())

	for {
		if err := sock.SetReadDeadline(time.Now().Add(d.readTimeout)); err != nil {
			return
		}
		raw, err := protocol.Read(sock)
		if err != nil {
			if errors.Fatal(err) {
				_ = conn.WriteResponse(fail(err))
			}
			d.log.Info("Client disconnected", "remote", conn.RemoteAddr(), "reason", err)
			return
		}

		var envelope domain.Envelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			_ = conn.WriteResponse(fail(errors.ErrMalformedPayload))
			return
		}

		response, err := d.dispatch(ctx, conn, &playerID, envelope.Command, raw)
		if err != nil {
			_ = conn.WriteResponse(fail(err))
			if errors.Fatal(err) {
				d.log.Warn("Closing connection on protocol error", "remote", conn.RemoteAddr(), "error", err)
				return
			}
			continue
		}
		if writeErr := conn.WriteResponse(response); writeErr != nil {
			d.log.Warn("Response write failed", "remote", conn.RemoteAddr(), "error", writeErr)
			return
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, conn *Conn, playerID *domain.PlayerID,
	command string, raw json.RawMessage) (any, error) {
	switch command {
	case "register":
		return d.register(ctx, raw)
	case "login":
		return d.login(ctx, conn, playerID, raw)
	case "logout":
		return d.logout(ctx, playerID)
	case "create_room":
		return d.createRoom(ctx, *playerID, raw)
	case "join_room":
		return d.joinRoom(ctx, *playerID, raw)
	case "leave_room":
		return d.leaveRoom(ctx, *playerID, raw)
	case "invite_player":
		return d.invitePlayer(ctx, *playerID, raw)
	case "accept_invitation":
		return d.acceptInvitation(ctx, *playerID, raw)
	case "start_game":
		return d.startGame(ctx, *playerID, raw)
	case "check_room_status":
		return d.checkRoomStatus(raw)
	case "list_rooms":
		return ok(d.rooms.Rooms()), nil
	case "list_games":
		games, err := d.rooms.Games(ctx)
		if err != nil {
			return nil, err
		}
		return ok(games), nil
	case "list_users":
		names, err := d.auth.OnlineUsers(ctx)
		if err != nil {
			return nil, err
		}
		return ok(names), nil
	case "list_invitations":
		if *playerID == "" {
			return nil, errors.ErrNotLoggedIn
		}
		return ok(d.rooms.InvitationsFor(*playerID)), nil
	case "game_ended":
		return d.gameEnded(ctx, raw)
	default:
		return nil, fmt.Errorf("%w: %q", errors.ErrUnknownCommand, command)
	}
}

func (d *Dispatcher) register(ctx context.Context, raw json.RawMessage) (any, error) {
	cmd, err := decodeCommand[domain.RegisterCommand](d.validate, raw)
	if err != nil {
		return nil, err
	}
	id, err := d.auth.Register(ctx, cmd.Username, cmd.Password)
	if err != nil {
		return nil, err
	}
	return ok(map[string]string{"userId": id}), nil
}

func (d *Dispatcher) login(ctx context.Context, conn *Conn, playerID *domain.PlayerID, raw json.RawMessage) (any, error) {
	cmd, err := decodeCommand[domain.LoginCommand](d.validate, raw)
	if err != nil {
		return nil, err
	}
	if *playerID != "" {
		return nil, errors.ErrAlreadyLoggedIn
	}
	id, err := d.auth.Login(ctx, cmd.Username, cmd.Password, conn)
	if err != nil {
		return nil, err
	}
	*playerID = id
	return ok(map[string]string{"userId": string(id), "username": cmd.Username}), nil
}

func (d *Dispatcher) logout(ctx context.Context, playerID *domain.PlayerID) (any, error) {
	if *playerID == "" {
		return nil, errors.ErrNotLoggedIn
	}
	if _, err := d.rooms.LeaveRoom(ctx, *playerID); err != nil && !errors.Is(err, errors.ErrNotInRoom) {
		return nil, err
	}
	d.auth.Logout(ctx, *playerID)
	*playerID = ""
	return ok(nil), nil
}

func (d *Dispatcher) createRoom(ctx context.Context, playerID domain.PlayerID, raw json.RawMessage) (any, error) {
	cmd, err := decodeCommand[domain.CreateRoomCommand](d.validate, raw)
	if err != nil {
		return nil, err
	}
	if err := requireSelf(playerID, cmd.UserID); err != nil {
		return nil, err
	}
	view, err := d.rooms.CreateRoom(ctx, playerID, domain.GameID(cmd.GameID))
	if err != nil {
		return nil, err
	}
	return ok(view), nil
}

func (d *Dispatcher) joinRoom(ctx context.Context, playerID domain.PlayerID, raw json.RawMessage) (any, error) {
	cmd, err := decodeCommand[domain.JoinRoomCommand](d.validate, raw)
	if err != nil {
		return nil, err
	}
	if err := requireSelf(playerID, cmd.UserID); err != nil {
		return nil, err
	}
	view, err := d.rooms.JoinRoom(ctx, playerID, domain.RoomID(cmd.RoomID))
	if err != nil {
		return nil, err
	}
	return ok(view), nil
}

func (d *Dispatcher) leaveRoom(ctx context.Context, playerID domain.PlayerID, raw json.RawMessage) (any, error) {
	cmd, err := decodeCommand[domain.LeaveRoomCommand](d.validate, raw)
	if err != nil {
		return nil, err
	}
	if err := requireSelf(playerID, cmd.UserID); err != nil {
		return nil, err
	}
	closed, err := d.rooms.LeaveRoom(ctx, playerID)
	if err != nil {
		return nil, err
	}
	return ok(map[string]bool{"roomClosed": closed}), nil
}

func (d *Dispatcher) invitePlayer(ctx context.Context, playerID domain.PlayerID, raw json.RawMessage) (any, error) {
	cmd, err := decodeCommand[domain.InvitePlayerCommand](d.validate, raw)
	if err != nil {
		return nil, err
	}
	if err := requireSelf(playerID, cmd.UserID); err != nil {
		return nil, err
	}
	invitation, err := d.rooms.Invite(ctx, playerID, domain.RoomID(cmd.RoomID), domain.PlayerID(cmd.InviteeID))
	if err != nil {
		return nil, err
	}
	return ok(invitation), nil
}

func (d *Dispatcher) acceptInvitation(ctx context.Context, playerID domain.PlayerID, raw json.RawMessage) (any, error) {
	cmd, err := decodeCommand[domain.AcceptInvitationCommand](d.validate, raw)
	if err != nil {
		return nil, err
	}
	if err := requireSelf(playerID, cmd.UserID); err != nil {
		return nil, err
	}
	view, err := d.rooms.AcceptInvitation(ctx, playerID, domain.RoomID(cmd.RoomID), cmd.InvitationID)
	if err != nil {
		return nil, err
	}
	return ok(view), nil
}

func (d *Dispatcher) startGame(ctx context.Context, playerID domain.PlayerID, raw json.RawMessage) (any, error) {
	cmd, err := decodeCommand[domain.StartGameCommand](d.validate, raw)
	if err != nil {
		return nil, err
	}
	if err := requireSelf(playerID, cmd.UserID); err != nil {
		return nil, err
	}
	view, err := d.rooms.StartGame(ctx, playerID, domain.RoomID(cmd.RoomID))
	if err != nil {
		return nil, err
	}
	return ok(view), nil
}

func (d *Dispatcher) checkRoomStatus(raw json.RawMessage) (any, error) {
	cmd, err := decodeCommand[domain.CheckRoomStatusCommand](d.validate, raw)
	if err != nil {
		return nil, err
	}
	view, err := d.rooms.Room(domain.RoomID(cmd.RoomID))
	if err != nil {
		return nil, err
	}
	return ok(view), nil
}

// gameEnded is the callback of a spawned game server, authenticated by
// the match token minted at launch instead of a player session.
func (d *Dispatcher) gameEnded(ctx context.Context, raw json.RawMessage) (any, error) {
	cmd, err := decodeCommand[domain.GameEndedCommand](d.validate, raw)
	if err != nil {
		return nil, err
	}
	claims, err := d.tokens.Validate(cmd.Token, domain.RoomID(cmd.RoomID))
	if err != nil {
		return nil, err
	}
	if claims.MatchID != cmd.MatchID {
		return nil, fmt.Errorf("%w: token is for another match", errors.ErrInvalidMatchToken)
	}

	err = d.rooms.ReportResult(ctx, domain.MatchResult{
		MatchID: cmd.MatchID,
		RoomID:  domain.RoomID(cmd.RoomID),
		Users:   cmd.Users,
		StartAt: cmd.StartAt,
		EndAt:   cmd.EndAt,
		Results: cmd.Results,
	})
	if err != nil {
		return nil, err
	}
	return ok(nil), nil
}

// requireSelf rejects commands issued on behalf of another player. The
// socket's authenticated identity is the only one it may act as.
func requireSelf(playerID domain.PlayerID, claimed string) error {
	if playerID == "" {
		return errors.ErrNotLoggedIn
	}
	if string(playerID) != claimed {
		return fmt.Errorf("%w: userId does not match the session", errors.ErrBadRequest)
	}
	return nil
}

// decodeCommand unmarshals and validates one command payload. Validation
// failures are client errors, never fatal.
func decodeCommand[T any](validate *validator.Validate, raw json.RawMessage) (T, error) {
	var cmd T
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return cmd, fmt.Errorf("%w: %v", errors.ErrBadRequest, err)
	}
	if err := validate.Struct(&cmd); err != nil {
		return cmd, fmt.Errorf("%w: %v", errors.ErrBadRequest, err)
	}
	return cmd, nil
}
