package model

import "time"

// User is a known chat participant. Users are never deleted locally, only
// marked offline by presence events.
type User struct {
	ID        string     `json:"_id"`
	Name      string     `json:"name"`
	Online    bool       `json:"isOnline,omitempty"`
	LastSeen  *time.Time `json:"lastSeen,omitempty"`
	CreatedAt time.Time  `json:"createdAt,omitempty"`
	UpdatedAt time.Time  `json:"updatedAt,omitempty"`
}

// UnknownUser is the placeholder for a message sender that cannot be
// resolved against the known user set. An unresolved sender never blocks
// delivery.
func UnknownUser(id string) User {
	return User{ID: id, Name: "Unknown"}
}

// Group is a named conversation with a member set. Membership is a set:
// adding an existing member is a no-op.
type Group struct {
	ID        string    `json:"_id"`
	Name      string    `json:"name"`
	Members   []User    `json:"members"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// HasMember reports whether the user id is in the member set.
func (g *Group) HasMember(userID string) bool {
	for _, m := range g.Members {
		if m.ID == userID {
			return true
		}
	}
	return false
}

// AddMember adds a user to the member set. Idempotent.
func (g *Group) AddMember(u User) {
	if g.HasMember(u.ID) {
		return
	}
	g.Members = append(g.Members, u)
}

// RemoveMember removes a user from the member set. No-op if absent.
func (g *Group) RemoveMember(userID string) {
	for i, m := range g.Members {
		if m.ID == userID {
			g.Members = append(g.Members[:i], g.Members[i+1:]...)
			return
		}
	}
}
