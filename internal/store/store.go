// Package store holds the mutable local snapshot of the chat session:
// known users and groups, the active conversation, the loaded message
// window, unread counters, presence, and live typing state.
//
// The store performs no I/O. The sync engine is its only writer; the
// presentation collaborator reads it concurrently, so access is guarded
// by a single RWMutex.
package store

import (
	"sync"
	"time"

	"github.com/pedrogbi/palaver/internal/model"
)

// TypingTTL is how long a typing signal stays visible without a refresh.
// Absence of a refresh within the window is equivalent to an explicit stop.
const TypingTTL = 3 * time.Second

// TypingState records the last typing signal from a user.
type TypingState struct {
	UserID       string
	Name         string
	Conversation model.Key
	LastSignal   time.Time
}

// Store is the local session snapshot.
type Store struct {
	mu         sync.RWMutex
	localUser  *model.User
	users      map[string]model.User
	userOrder  []string
	groups     map[string]model.Group
	groupOrder []string
	active     *model.Conversation
	window     []model.Message
	windowIDs  map[string]bool
	unread     map[model.Key]int
	typing     map[string]TypingState
	online     map[string]bool
}

// New creates an empty store.
func New() *Store {
	s := &Store{}
	s.reset()
	return s
}

func (s *Store) reset() {
	s.localUser = nil
	s.users = make(map[string]model.User)
	s.userOrder = nil
	s.groups = make(map[string]model.Group)
	s.groupOrder = nil
	s.active = nil
	s.window = nil
	s.windowIDs = make(map[string]bool)
	s.unread = make(map[model.Key]int)
	s.typing = make(map[string]TypingState)
	s.online = make(map[string]bool)
}

// Clear wipes all session state. Used on logout.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

// SetLocalUser records the logged-in user.
func (s *Store) SetLocalUser(u model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.localUser = &u
}

// LocalUser returns the logged-in user, if any.
func (s *Store) LocalUser() (model.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.localUser == nil {
		return model.User{}, false
	}
	return *s.localUser, true
}

// UpsertUser merges a user by id. Scalar fields are last-writer-wins by
// server-confirmed UpdatedAt, so out-of-order responses cannot roll an
// entity back.
func (s *Store) UpsertUser(u model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.users[u.ID]
	if !ok {
		s.users[u.ID] = u
		s.userOrder = append(s.userOrder, u.ID)
		return
	}
	if !u.UpdatedAt.IsZero() && !existing.UpdatedAt.IsZero() && u.UpdatedAt.Before(existing.UpdatedAt) {
		return
	}
	s.users[u.ID] = u
}

// UpsertGroup merges a group by id: last-writer-wins on scalar fields,
// union on the member set.
func (s *Store) UpsertGroup(g model.Group) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.groups[g.ID]
	if !ok {
		s.groups[g.ID] = g
		s.groupOrder = append(s.groupOrder, g.ID)
		return
	}
	stale := !g.UpdatedAt.IsZero() && !existing.UpdatedAt.IsZero() && g.UpdatedAt.Before(existing.UpdatedAt)
	merged := g
	if stale {
		merged = existing
	}
	for _, m := range existing.Members {
		merged.AddMember(m)
	}
	for _, m := range g.Members {
		merged.AddMember(m)
	}
	s.groups[g.ID] = merged
}

// ReplaceGroup installs the server's authoritative copy of a group,
// overwriting the member set. Use it for responses to membership
// mutations, where a union merge would resurrect removed members.
func (s *Store) ReplaceGroup(g model.Group) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[g.ID]; !ok {
		s.groupOrder = append(s.groupOrder, g.ID)
	}
	s.groups[g.ID] = g
}

// UserByID looks up a known user.
func (s *Store) UserByID(id string) (model.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	return u, ok
}

// GroupByID looks up a known group.
func (s *Store) GroupByID(id string) (model.Group, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[id]
	return g, ok
}

// Users returns known users in arrival order, excluding the local user.
func (s *Store) Users() []model.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.User, 0, len(s.userOrder))
	for _, id := range s.userOrder {
		if s.localUser != nil && id == s.localUser.ID {
			continue
		}
		out = append(out, s.users[id])
	}
	return out
}

// Groups returns known groups in arrival order.
func (s *Store) Groups() []model.Group {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Group, 0, len(s.groupOrder))
	for _, id := range s.groupOrder {
		out = append(out, s.groups[id])
	}
	return out
}
