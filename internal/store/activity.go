package store

import (
	"time"

	"github.com/pedrogbi/palaver/internal/model"
)

// SetActiveConversation switches the active conversation and zeroes its
// unread counter in the same critical section, so no event can observe the
// new active conversation with a non-zero count.
func (s *Store) SetActiveConversation(c model.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active = &c
	s.unread[c.Key()] = 0
}

// ClearActiveConversation deselects the active conversation.
func (s *Store) ClearActiveConversation() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = nil
}

// ActiveConversation returns the active conversation, if one is selected.
func (s *Store) ActiveConversation() (model.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == nil {
		return model.Conversation{}, false
	}
	return *s.active, true
}

// IncrementUnread bumps a conversation's unread counter and returns the
// new count. The active conversation's counter is never incremented.
func (s *Store) IncrementUnread(key model.Key) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil && s.active.Key() == key {
		return 0
	}
	s.unread[key]++
	return s.unread[key]
}

// ResetUnread zeroes a conversation's unread counter.
func (s *Store) ResetUnread(key model.Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unread[key] = 0
}

// Unread returns a conversation's unread count.
func (s *Store) Unread(key model.Key) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unread[key]
}

// TouchTyping records a typing signal, resetting the expiry window for the
// (user, conversation) pair.
func (s *Store) TouchTyping(userID, name string, key model.Key, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.typing[userID] = TypingState{
		UserID:       userID,
		Name:         name,
		Conversation: key,
		LastSignal:   now,
	}
}

// RemoveTyping drops a user's typing entry. No-op if absent. An explicit
// stop signal is an optimization; expiry alone keeps the state correct.
func (s *Store) RemoveTyping(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.typing[userID]; !ok {
		return false
	}
	delete(s.typing, userID)
	return true
}

// PruneExpiredTyping removes entries whose last signal is older than
// TypingTTL relative to now, and returns the removed entries.
func (s *Store) PruneExpiredTyping(now time.Time) []TypingState {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []TypingState
	for id, ts := range s.typing {
		if now.Sub(ts.LastSignal) > TypingTTL {
			removed = append(removed, ts)
			delete(s.typing, id)
		}
	}
	return removed
}

// TypingIn returns the users currently typing in a conversation.
func (s *Store) TypingIn(key model.Key) []TypingState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []TypingState
	for _, ts := range s.typing {
		if ts.Conversation == key {
			out = append(out, ts)
		}
	}
	return out
}

// SetOnline records a single user's presence, last writer wins.
func (s *Store) SetOnline(userID string, online bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.online[userID] = online
}

// ReplaceOnline replaces the entire presence map with an authoritative
// snapshot. Users absent from the snapshot become offline.
func (s *Store) ReplaceOnline(userIDs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.online = make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		s.online[id] = true
	}
}

// IsOnline reports a user's known presence.
func (s *Store) IsOnline(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.online[userID]
}

// OnlineUsers returns the ids of all users currently known to be online.
func (s *Store) OnlineUsers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for id, on := range s.online {
		if on {
			out = append(out, id)
		}
	}
	return out
}
