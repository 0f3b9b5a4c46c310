package runtime

import (
	"sync"
	"time"

	"lobby-lab/contract"
	"lobby-lab/domain"
	"lobby-lab/errors"
)

// PlayerSession ties an authenticated player to their live connection and
// current room. Sessions are owned exclusively by the Registry; callers
// only ever see copies.
type PlayerSession struct {
	PlayerID   domain.PlayerID
	Username   string
	Sink       contract.EventSink
	RoomID     domain.RoomID // empty while not in a room
	LoggedInAt time.Time
}

// Registry tracks who is online and which room each session occupies.
// The room manager remains the source of truth for membership: Bind and
// Unbind are called under the corresponding room lock, which makes the
// lock ordering uniformly room lock before registry lock and rules out
// lock-order deadlocks.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.PlayerID]*PlayerSession
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[domain.PlayerID]*PlayerSession),
	}
}

// Login records an authenticated session. A player id maps to at most
// one active session at a time.
func (r *Registry) Login(playerID domain.PlayerID, username string, sink contract.EventSink) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[playerID]; ok {
		return errors.ErrAlreadyLoggedIn
	}
	r.sessions[playerID] = &PlayerSession{
		PlayerID:   playerID,
		Username:   username,
		Sink:       sink,
		LoggedInAt: time.Now().UTC(),
	}
	return nil
}

// Logout destroys the session. Safe to call for players that are not
// logged in.
func (r *Registry) Logout(playerID domain.PlayerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, playerID)
}

// Online reports whether playerID has an active session.
func (r *Registry) Online(playerID domain.PlayerID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[playerID]
	return ok
}

// Session returns a copy of the player's session.
func (r *Registry) Session(playerID domain.PlayerID) (PlayerSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[playerID]
	if !ok {
		return PlayerSession{}, false
	}
	return *s, true
}

// Username resolves the display name of an online player, empty when
// offline.
func (r *Registry) Username(playerID domain.PlayerID) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.sessions[playerID]; ok {
		return s.Username
	}
	return ""
}

// Bind points the session at roomID. Called under the room lock whenever
// room membership changes.
func (r *Registry) Bind(playerID domain.PlayerID, roomID domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[playerID]; ok {
		s.RoomID = roomID
	}
}

// Unbind clears the session's room pointer. Called under the room lock.
func (r *Registry) Unbind(playerID domain.PlayerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[playerID]; ok {
		s.RoomID = ""
	}
}

// RoomOf returns the room the player currently occupies.
func (r *Registry) RoomOf(playerID domain.PlayerID) (domain.RoomID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[playerID]
	if !ok || s.RoomID == "" {
		return "", false
	}
	return s.RoomID, true
}

// Sink returns the notification channel of an online player.
func (r *Registry) Sink(playerID domain.PlayerID) (contract.EventSink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[playerID]
	if !ok {
		return nil, false
	}
	return s.Sink, true
}

// Count reports how many players are online.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
