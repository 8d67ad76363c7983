package store

import "github.com/pedrogbi/palaver/internal/model"

// AppendMessage inserts a message at the end of the window, preserving
// arrival order. Returns false without mutating if a message with the same
// id is already present, so redelivery after a reconnect is a no-op.
func (s *Store) AppendMessage(m model.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.ID != "" && s.windowIDs[m.ID] {
		return false
	}
	s.window = append(s.window, m)
	if m.ID != "" {
		s.windowIDs[m.ID] = true
	}
	return true
}

// ReplaceWindow swaps in a freshly fetched first page (skip == 0).
func (s *Store) ReplaceWindow(msgs []model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.window = make([]model.Message, len(msgs))
	copy(s.window, msgs)
	s.windowIDs = make(map[string]bool, len(msgs))
	for _, m := range msgs {
		if m.ID != "" {
			s.windowIDs[m.ID] = true
		}
	}
}

// PrependWindow inserts an older page before the loaded window (skip > 0),
// keeping chronological top-to-bottom order. Messages already present are
// skipped.
func (s *Store) PrependWindow(msgs []model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fresh := make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.ID != "" && s.windowIDs[m.ID] {
			continue
		}
		fresh = append(fresh, m)
		if m.ID != "" {
			s.windowIDs[m.ID] = true
		}
	}
	s.window = append(fresh, s.window...)
}

// MarkRead flags a message as read. No-op if the id is absent, to tolerate
// out-of-order or duplicate read receipts.
func (s *Store) MarkRead(messageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.window {
		if s.window[i].ID == messageID {
			s.window[i].Read = true
			return true
		}
	}
	return false
}

// MarkEdited replaces a message's content and flags it edited. No-op if
// the id is absent.
func (s *Store) MarkEdited(messageID, content string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.window {
		if s.window[i].ID == messageID {
			s.window[i].Content = content
			s.window[i].Edited = true
			return true
		}
	}
	return false
}

// ReplaceMessage swaps the stored copy for the server's representation,
// matched by id. No-op if absent.
func (s *Store) ReplaceMessage(m model.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.window {
		if s.window[i].ID == m.ID {
			s.window[i] = m
			return true
		}
	}
	return false
}

// RemoveMessage deletes a message from the window. No-op if absent.
func (s *Store) RemoveMessage(messageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.window {
		if s.window[i].ID == messageID {
			s.window = append(s.window[:i], s.window[i+1:]...)
			delete(s.windowIDs, messageID)
			return true
		}
	}
	return false
}

// MessageByID returns the loaded message with the given id.
func (s *Store) MessageByID(messageID string) (model.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.window {
		if s.window[i].ID == messageID {
			return s.window[i], true
		}
	}
	return model.Message{}, false
}

// Messages returns a copy of the loaded message window in render order.
func (s *Store) Messages() []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Message, len(s.window))
	copy(out, s.window)
	return out
}
