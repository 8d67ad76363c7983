package model

import "fmt"

// ConversationKind discriminates the two conversation variants.
type ConversationKind string

const (
	KindDirect ConversationKind = "user"
	KindGroup  ConversationKind = "group"
)

// Key identifies a conversation for unread counting and event routing.
// It is derived from kind + target id and is stable across restarts.
type Key string

// Conversation is the addressable unit the engine synchronizes against:
// either a direct chat with one other user or a group.
type Conversation struct {
	Kind ConversationKind `json:"kind"`
	ID   string           `json:"id"`
	Name string           `json:"name,omitempty"`
}

// DirectConversation addresses a direct chat with the given user.
func DirectConversation(u User) Conversation {
	return Conversation{Kind: KindDirect, ID: u.ID, Name: u.Name}
}

// GroupConversation addresses a group chat.
func GroupConversation(g Group) Conversation {
	return Conversation{Kind: KindGroup, ID: g.ID, Name: g.Name}
}

// Key returns the composite routing key, e.g. "user:abc" or "group:def".
func (c Conversation) Key() Key {
	return ConversationKey(c.Kind, c.ID)
}

// ConversationKey builds a routing key from a kind and a target id.
func ConversationKey(kind ConversationKind, id string) Key {
	return Key(string(kind) + ":" + id)
}

// Validate checks the conversation addresses a concrete target.
func (c Conversation) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: conversation has no target id", ErrInvalidArgument)
	}
	switch c.Kind {
	case KindDirect, KindGroup:
		return nil
	default:
		return fmt.Errorf("%w: unknown conversation kind %q", ErrInvalidArgument, c.Kind)
	}
}
