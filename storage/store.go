// Package storage implements the database collaborator's persistence on
// BadgerDB. Every entity lives under a key prefix; values are the JSON
// documents exchanged on the wire.
package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"lobby-lab/auth"
	"lobby-lab/domain"
	"lobby-lab/gateway"
)

const (
	userPrefix      = "user:"
	usernamePrefix  = "username:" // secondary index, name -> user id
	developerPrefix = "developer:"
	gamePrefix      = "game:"
	gameLogPrefix   = "gamelog:"
)

// Store handles the operation envelopes of the database protocol. Each
// request maps to one badger transaction.
type Store struct {
	db  *badger.DB
	log *slog.Logger
}

func NewStore(db *badger.DB, log *slog.Logger) *Store {
	return &Store{db: db, log: log}
}

// Handle executes one request and shapes the response envelope. Errors
// that belong to the caller (missing record, duplicate name) come back
// as coded envelopes, not transport failures.
func (s *Store) Handle(req gateway.Request) gateway.Response {
	resp, err := s.execute(req)
	if err != nil {
		s.log.Warn("Operation failed",
			"operation", req.Operation, "entity", req.Entity, "error", err)
		return gateway.Response{Status: "error", Code: "INTERNAL", Message: err.Error()}
	}
	return resp
}

func (s *Store) execute(req gateway.Request) (gateway.Response, error) {
	payload, err := json.Marshal(req.Payload)
	if err != nil {
		return badRequest("unreadable payload"), nil
	}

	switch {
	case req.Entity == gateway.EntityUser && req.Operation == gateway.OpCreate:
		return s.createUser(payload)
	case req.Entity == gateway.EntityUser && req.Operation == gateway.OpRead:
		return s.readByID(userPrefix, payload)
	case req.Entity == gateway.EntityUser && req.Operation == gateway.OpUpdate:
		return s.updateUser(payload)
	case req.Entity == gateway.EntityUser && req.Operation == gateway.OpQuery:
		return s.queryUsers(payload)
	case req.Entity == gateway.EntityGame && req.Operation == gateway.OpCreate:
		return s.createGame(payload)
	case req.Entity == gateway.EntityGame && req.Operation == gateway.OpRead:
		return s.readByID(gamePrefix, payload)
	case req.Entity == gateway.EntityGame && req.Operation == gateway.OpQuery:
		return s.queryGames()
	case req.Entity == gateway.EntityGameLog && req.Operation == gateway.OpCreate:
		return s.createGameLog(payload)
	case req.Entity == gateway.EntityGameLog && req.Operation == gateway.OpQuery:
		return s.queryGameLogs()
	case req.Entity == gateway.EntityDeveloper && req.Operation == gateway.OpCreate:
		return s.createDeveloper(payload)
	case req.Entity == gateway.EntityDeveloper && req.Operation == gateway.OpRead:
		return s.readByID(developerPrefix, payload)
	default:
		return badRequest(fmt.Sprintf("unsupported %s on %s", req.Operation, req.Entity)), nil
	}
}

func (s *Store) createUser(payload []byte) (gateway.Response, error) {
	var in struct {
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := json.Unmarshal(payload, &in); err != nil || in.Name == "" || in.Password == "" {
		return badRequest("name and password are required"), nil
	}

	user := gateway.User{
		ID:           uuid.NewString(),
		Name:         in.Name,
		PasswordHash: auth.HashPassword(in.Password),
	}
	value, err := json.Marshal(user)
	if err != nil {
		return gateway.Response{}, err
	}

	nameKey := []byte(usernamePrefix + in.Name)
	err = s.db.Update(func(txn *badger.Txn) error {
		if _, getErr := txn.Get(nameKey); getErr == nil {
			return badger.ErrConflict
		} else if getErr != badger.ErrKeyNotFound {
			return getErr
		}
		if setErr := txn.Set([]byte(userPrefix+user.ID), value); setErr != nil {
			return setErr
		}
		return txn.Set(nameKey, []byte(user.ID))
	})
	if err == badger.ErrConflict {
		return gateway.Response{Status: "error", Code: "EXISTS", Message: "username already exists"}, nil
	}
	if err != nil {
		return gateway.Response{}, err
	}

	return okData(map[string]string{"id": user.ID})
}

func (s *Store) updateUser(payload []byte) (gateway.Response, error) {
	var in struct {
		ID     string         `json:"id"`
		Fields map[string]any `json:"fields"`
	}
	if err := json.Unmarshal(payload, &in); err != nil || in.ID == "" {
		return badRequest("id is required"), nil
	}

	key := []byte(userPrefix + in.ID)
	err := s.db.Update(func(txn *badger.Txn) error {
		item, getErr := txn.Get(key)
		if getErr != nil {
			return getErr
		}
		var doc map[string]any
		if valErr := item.Value(func(v []byte) error {
			return json.Unmarshal(v, &doc)
		}); valErr != nil {
			return valErr
		}
		for field, value := range in.Fields {
			doc[field] = value
		}
		merged, marshalErr := json.Marshal(doc)
		if marshalErr != nil {
			return marshalErr
		}
		return txn.Set(key, merged)
	})
	if err == badger.ErrKeyNotFound {
		return notFound("user " + in.ID), nil
	}
	if err != nil {
		return gateway.Response{}, err
	}
	return okData(nil)
}

func (s *Store) queryUsers(payload []byte) (gateway.Response, error) {
	var filter struct {
		Name   *string `json:"name"`
		Online *bool   `json:"online"`
	}
	if err := json.Unmarshal(payload, &filter); err != nil {
		return badRequest("unreadable filter"), nil
	}

	// Name lookups go through the username index, one point read instead
	// of a scan.
	if filter.Name != nil {
		return s.userByName(*filter.Name)
	}

	var users []gateway.User
	err := s.scan(userPrefix, func(value []byte) error {
		var user gateway.User
		if err := json.Unmarshal(value, &user); err != nil {
			return err
		}
		if filter.Online == nil || user.Online == *filter.Online {
			users = append(users, user)
		}
		return nil
	})
	if err != nil {
		return gateway.Response{}, err
	}
	return okData(users)
}

func (s *Store) userByName(name string) (gateway.Response, error) {
	var users []gateway.User
	err := s.db.View(func(txn *badger.Txn) error {
		item, getErr := txn.Get([]byte(usernamePrefix + name))
		if getErr == badger.ErrKeyNotFound {
			return nil
		}
		if getErr != nil {
			return getErr
		}
		var id string
		if valErr := item.Value(func(v []byte) error {
			id = string(v)
			return nil
		}); valErr != nil {
			return valErr
		}
		userItem, getErr := txn.Get([]byte(userPrefix + id))
		if getErr != nil {
			return getErr
		}
		return userItem.Value(func(v []byte) error {
			var user gateway.User
			if err := json.Unmarshal(v, &user); err != nil {
				return err
			}
			users = append(users, user)
			return nil
		})
	})
	if err != nil {
		return gateway.Response{}, err
	}
	return okData(users)
}

func (s *Store) createGame(payload []byte) (gateway.Response, error) {
	var game domain.Game
	if err := json.Unmarshal(payload, &game); err != nil || game.Name == "" {
		return badRequest("game name is required"), nil
	}
	if game.ID == "" {
		game.ID = domain.GameID(uuid.NewString())
	}
	if game.Status == "" {
		game.Status = "active"
	}

	value, err := json.Marshal(game)
	if err != nil {
		return gateway.Response{}, err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(gamePrefix+string(game.ID)), value)
	})
	if err != nil {
		return gateway.Response{}, err
	}
	return okData(map[string]string{"id": string(game.ID)})
}

func (s *Store) queryGames() (gateway.Response, error) {
	var games []domain.Game
	err := s.scan(gamePrefix, func(value []byte) error {
		var game domain.Game
		if err := json.Unmarshal(value, &game); err != nil {
			return err
		}
		games = append(games, game)
		return nil
	})
	if err != nil {
		return gateway.Response{}, err
	}
	return okData(games)
}

func (s *Store) createGameLog(payload []byte) (gateway.Response, error) {
	var entry domain.GameLogEntry
	if err := json.Unmarshal(payload, &entry); err != nil || entry.MatchID == "" {
		return badRequest("matchId is required"), nil
	}

	// Key ordering by time makes chronological scans natural.
	key := fmt.Sprintf("%s%d:%s", gameLogPrefix, time.Now().UTC().UnixNano(), entry.MatchID)
	value, err := json.Marshal(entry)
	if err != nil {
		return gateway.Response{}, err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return gateway.Response{}, err
	}
	return okData(map[string]string{"matchId": entry.MatchID})
}

func (s *Store) queryGameLogs() (gateway.Response, error) {
	var entries []domain.GameLogEntry
	err := s.scan(gameLogPrefix, func(value []byte) error {
		var entry domain.GameLogEntry
		if err := json.Unmarshal(value, &entry); err != nil {
			return err
		}
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return gateway.Response{}, err
	}
	return okData(entries)
}

// Developer documents are opaque to the lobby; the store persists them
// for the game upload tooling.
func (s *Store) createDeveloper(payload []byte) (gateway.Response, error) {
	var doc map[string]any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return badRequest("unreadable developer document"), nil
	}
	id, _ := doc["id"].(string)
	if id == "" {
		id = uuid.NewString()
		doc["id"] = id
	}

	value, err := json.Marshal(doc)
	if err != nil {
		return gateway.Response{}, err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(developerPrefix+id), value)
	})
	if err != nil {
		return gateway.Response{}, err
	}
	return okData(map[string]string{"id": id})
}

func (s *Store) readByID(prefix string, payload []byte) (gateway.Response, error) {
	var in struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(payload, &in); err != nil || in.ID == "" {
		return badRequest("id is required"), nil
	}

	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, getErr := txn.Get([]byte(prefix + in.ID))
		if getErr != nil {
			return getErr
		}
		return item.Value(func(v []byte) error {
			value = append([]byte{}, v...)
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return notFound(strings.TrimSuffix(prefix, ":") + " " + in.ID), nil
	}
	if err != nil {
		return gateway.Response{}, err
	}
	return gateway.Response{Status: "ok", Data: value}, nil
}

func (s *Store) scan(prefix string, visit func(value []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := it.Item().Value(visit); err != nil {
				return err
			}
		}
		return nil
	})
}

func okData(data any) (gateway.Response, error) {
	if data == nil {
		return gateway.Response{Status: "ok"}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return gateway.Response{}, err
	}
	return gateway.Response{Status: "ok", Data: raw}, nil
}

func badRequest(message string) gateway.Response {
	return gateway.Response{Status: "error", Code: "BAD_REQUEST", Message: message}
}

func notFound(message string) gateway.Response {
	return gateway.Response{Status: "error", Code: "NOT_FOUND", Message: message}
}
