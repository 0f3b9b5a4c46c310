package services

import (
	"context"
	"log/slog"
	"time"

	"lobby-lab/auth"
	"lobby-lab/contract"
	"lobby-lab/domain"
	"lobby-lab/errors"
	"lobby-lab/gateway"
)

// Accounts is the slice of the database gateway the auth service needs.
type Accounts interface {
	QueryUserByName(ctx context.Context, name string) (*gateway.User, error)
	QueryOnlineUsers(ctx context.Context) ([]gateway.User, error)
	CreateUser(ctx context.Context, name, password string) (string, error)
	UpdateUser(ctx context.Context, id string, fields map[string]any) error
}

// SessionStore is the registry surface for login bookkeeping.
type SessionStore interface {
	Login(playerID domain.PlayerID, username string, sink contract.EventSink) error
	Logout(playerID domain.PlayerID)
	Online(playerID domain.PlayerID) bool
}

// AuthService handles account registration and session lifecycle. The
// database collaborator owns the credential records; this service owns
// who is online right now.
type AuthService struct {
	log      *slog.Logger
	accounts Accounts
	sessions SessionStore
}

func NewAuthService(log *slog.Logger, accounts Accounts, sessions SessionStore) *AuthService {
	return &AuthService{log: log, accounts: accounts, sessions: sessions}
}

// Register creates a new account and returns its id. Usernames are
// unique across the lobby.
func (s *AuthService) Register(ctx context.Context, username, password string) (string, error) {
	id, err := s.accounts.CreateUser(ctx, username, password)
	if err != nil {
		return "", err
	}
	s.log.Info("User registered", "username", username, "id", id)
	return id, nil
}

// Login authenticates the credentials and opens a session bound to sink.
// A second concurrent session for the same account is rejected; the
// database record is only marked online once the session exists, and the
// session is rolled back if that write fails.
func (s *AuthService) Login(ctx context.Context, username, password string, sink contract.EventSink) (domain.PlayerID, error) {
	user, err := s.accounts.QueryUserByName(ctx, username)
	if err != nil {
		return "", err
	}
	if user == nil || !auth.ComparePassword(password, user.PasswordHash) {
		// One answer for both unknown user and wrong password, no
		// account probing.
		return "", errors.ErrInvalidCredentials
	}

	playerID := domain.PlayerID(user.ID)
	if err := s.sessions.Login(playerID, username, sink); err != nil {
		return "", err
	}

	fields := map[string]any{"online": true, "lastLoginAt": time.Now().UTC()}
	if err := s.accounts.UpdateUser(ctx, user.ID, fields); err != nil {
		s.sessions.Logout(playerID)
		return "", err
	}

	s.log.Info("User logged in", "username", username, "id", user.ID)
	return playerID, nil
}

// Logout closes the session. The online flag write is best effort: the
// session is gone either way, and a stale flag heals on next login.
func (s *AuthService) Logout(ctx context.Context, playerID domain.PlayerID) {
	if !s.sessions.Online(playerID) {
		return
	}
	s.sessions.Logout(playerID)

	if err := s.accounts.UpdateUser(ctx, string(playerID), map[string]any{"online": false}); err != nil {
		s.log.Warn("Failed to clear online flag", "player", playerID, "error", err)
	}
	s.log.Info("User logged out", "id", playerID)
}

// OnlineUsers lists the display names of every connected player.
func (s *AuthService) OnlineUsers(ctx context.Context) ([]string, error) {
	users, err := s.accounts.QueryOnlineUsers(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(users))
	for _, u := range users {
		names = append(names, u.Name)
	}
	return names, nil
}
