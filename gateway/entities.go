package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"lobby-lab/domain"
	"lobby-lab/errors"
)

// User mirrors the collaborator's user document. PasswordHash is the
// hex sha256 digest compared at login.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"passwordHash"`
	Online       bool      `json:"online"`
	LastLoginAt  time.Time `json:"lastLoginAt,omitempty"`
}

// QueryUserByName returns the user named name, or nil when no such user
// exists.
func (c *Client) QueryUserByName(ctx context.Context, name string) (*User, error) {
	resp, err := c.Execute(ctx, Request{
		Operation: OpQuery,
		Entity:    EntityUser,
		Payload:   map[string]any{"name": name},
	})
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, fmt.Errorf("%w: %s", errors.ErrDatabaseUnavailable, resp.Message)
	}

	var users []User
	if err := json.Unmarshal(resp.Data, &users); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrDatabaseUnavailable, err)
	}
	if len(users) == 0 {
		return nil, nil
	}
	return &users[0], nil
}

// QueryOnlineUsers lists every user currently flagged online.
func (c *Client) QueryOnlineUsers(ctx context.Context) ([]User, error) {
	resp, err := c.Execute(ctx, Request{
		Operation: OpQuery,
		Entity:    EntityUser,
		Payload:   map[string]any{"online": true},
	})
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, fmt.Errorf("%w: %s", errors.ErrDatabaseUnavailable, resp.Message)
	}

	var users []User
	if err := json.Unmarshal(resp.Data, &users); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrDatabaseUnavailable, err)
	}
	return users, nil
}

// CreateUser registers a new user and returns its id. The collaborator
// hashes the password before storing it.
func (c *Client) CreateUser(ctx context.Context, name, password string) (string, error) {
	resp, err := c.Execute(ctx, Request{
		Operation: OpCreate,
		Entity:    EntityUser,
		Payload:   map[string]any{"name": name, "password": password},
	})
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		if resp.Code == "EXISTS" {
			return "", errors.ErrUserExists
		}
		return "", fmt.Errorf("%w: %s", errors.ErrDatabaseUnavailable, resp.Message)
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(resp.Data, &created); err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrDatabaseUnavailable, err)
	}
	return created.ID, nil
}

// UpdateUser patches the given fields of a user record.
func (c *Client) UpdateUser(ctx context.Context, id string, fields map[string]any) error {
	resp, err := c.Execute(ctx, Request{
		Operation: OpUpdate,
		Entity:    EntityUser,
		Payload:   map[string]any{"id": id, "fields": fields},
	})
	if err != nil {
		return err
	}
	if !resp.OK() {
		if resp.Code == "NOT_FOUND" {
			return errors.ErrUserNotFound
		}
		return fmt.Errorf("%w: %s", errors.ErrDatabaseUnavailable, resp.Message)
	}
	return nil
}

// ReadGame resolves a catalog entry by id.
func (c *Client) ReadGame(ctx context.Context, id domain.GameID) (domain.Game, error) {
	resp, err := c.Execute(ctx, Request{
		Operation: OpRead,
		Entity:    EntityGame,
		Payload:   map[string]any{"id": string(id)},
	})
	if err != nil {
		return domain.Game{}, err
	}
	if !resp.OK() {
		if resp.Code == "NOT_FOUND" {
			return domain.Game{}, fmt.Errorf("%w: %s", errors.ErrGameNotFound, id)
		}
		return domain.Game{}, fmt.Errorf("%w: %s", errors.ErrDatabaseUnavailable, resp.Message)
	}

	var game domain.Game
	if err := json.Unmarshal(resp.Data, &game); err != nil {
		return domain.Game{}, fmt.Errorf("%w: %v", errors.ErrDatabaseUnavailable, err)
	}
	return game, nil
}

// QueryGames lists the catalog, optionally filtered by the collaborator.
func (c *Client) QueryGames(ctx context.Context) ([]domain.Game, error) {
	resp, err := c.Execute(ctx, Request{
		Operation: OpQuery,
		Entity:    EntityGame,
		Payload:   map[string]any{},
	})
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, fmt.Errorf("%w: %s", errors.ErrDatabaseUnavailable, resp.Message)
	}

	var games []domain.Game
	if err := json.Unmarshal(resp.Data, &games); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrDatabaseUnavailable, err)
	}
	return games, nil
}

// CreateGameLog appends a match record. The log is append-only; callers
// treat failures as best-effort and log them for reconciliation.
func (c *Client) CreateGameLog(ctx context.Context, entry domain.GameLogEntry) error {
	resp, err := c.Execute(ctx, Request{
		Operation: OpCreate,
		Entity:    EntityGameLog,
		Payload:   entry,
	})
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("%w: %s", errors.ErrDatabaseUnavailable, resp.Message)
	}
	return nil
}
