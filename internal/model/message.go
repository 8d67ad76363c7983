package model

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Attachment is the stored descriptor returned by the upload endpoint.
type Attachment struct {
	URL      string `json:"url"`
	Type     string `json:"type"`
	Filename string `json:"filename"`
}

// Message is a chat message. Exactly one of Receiver (direct) or Group is
// set. Content may be empty only when an attachment is present.
type Message struct {
	ID         string
	Content    string
	Sender     User
	Receiver   string
	Group      string
	Attachment *Attachment
	ReplyTo    string
	Forwarded  bool
	Tagged     []string
	Read       bool
	Edited     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// wireMessage mirrors the remote service's JSON document. The sender field
// is either a bare user id or an embedded user object depending on whether
// the service populated the reference.
type wireMessage struct {
	ID         string          `json:"_id"`
	Content    string          `json:"content"`
	Sender     json.RawMessage `json:"sender,omitempty"`
	Receiver   string          `json:"receiver,omitempty"`
	Group      string          `json:"group,omitempty"`
	Attachment *Attachment     `json:"attachment,omitempty"`
	ReplyTo    string          `json:"replyTo,omitempty"`
	Forwarded  bool            `json:"isForwarded,omitempty"`
	Tagged     []string        `json:"taggedUsers,omitempty"`
	Read       bool            `json:"read,omitempty"`
	Edited     bool            `json:"edited,omitempty"`
	CreatedAt  *time.Time      `json:"createdAt,omitempty"`
	UpdatedAt  *time.Time      `json:"updatedAt,omitempty"`
}

// UnmarshalJSON decodes the wire form, accepting the sender as either a
// user id string or a user object.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*m = Message{
		ID:         w.ID,
		Content:    w.Content,
		Receiver:   w.Receiver,
		Group:      w.Group,
		Attachment: w.Attachment,
		ReplyTo:    w.ReplyTo,
		Forwarded:  w.Forwarded,
		Tagged:     w.Tagged,
		Read:       w.Read,
		Edited:     w.Edited,
	}
	if w.CreatedAt != nil {
		m.CreatedAt = *w.CreatedAt
	}
	if w.UpdatedAt != nil {
		m.UpdatedAt = *w.UpdatedAt
	}

	if len(w.Sender) == 0 {
		return nil
	}
	var id string
	if err := json.Unmarshal(w.Sender, &id); err == nil {
		m.Sender = User{ID: id}
		return nil
	}
	var u User
	if err := json.Unmarshal(w.Sender, &u); err != nil {
		return fmt.Errorf("message sender: %w", err)
	}
	m.Sender = u
	return nil
}

// MarshalJSON encodes the wire form with the sender as an embedded object.
func (m Message) MarshalJSON() ([]byte, error) {
	w := wireMessage{
		ID:         m.ID,
		Content:    m.Content,
		Receiver:   m.Receiver,
		Group:      m.Group,
		Attachment: m.Attachment,
		ReplyTo:    m.ReplyTo,
		Forwarded:  m.Forwarded,
		Tagged:     m.Tagged,
		Read:       m.Read,
		Edited:     m.Edited,
	}
	if m.Sender != (User{}) {
		raw, err := json.Marshal(m.Sender)
		if err != nil {
			return nil, err
		}
		w.Sender = raw
	}
	if !m.CreatedAt.IsZero() {
		t := m.CreatedAt
		w.CreatedAt = &t
	}
	if !m.UpdatedAt.IsZero() {
		t := m.UpdatedAt
		w.UpdatedAt = &t
	}
	return json.Marshal(w)
}

// Validate checks the single-target and content invariants.
func (m *Message) Validate() error {
	if (m.Receiver == "") == (m.Group == "") {
		return fmt.Errorf("%w: message must target exactly one of receiver or group", ErrInvalidArgument)
	}
	if strings.TrimSpace(m.Content) == "" && m.Attachment == nil {
		return fmt.Errorf("%w: empty content without attachment", ErrInvalidArgument)
	}
	return nil
}

// ConversationKey derives the routing key for this message from the local
// user's perspective: group messages route to the group, direct messages
// route to the other participant.
func (m *Message) ConversationKey(localUserID string) Key {
	if m.Group != "" {
		return ConversationKey(KindGroup, m.Group)
	}
	if m.Sender.ID == localUserID {
		return ConversationKey(KindDirect, m.Receiver)
	}
	return ConversationKey(KindDirect, m.Sender.ID)
}

var messageIDRegexp = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)

// ValidateMessageID checks id against the server-assigned identifier format.
// Client-side placeholders (timestamps, blank ids) are rejected.
func ValidateMessageID(id string) error {
	if !messageIDRegexp.MatchString(id) {
		return fmt.Errorf("%w: malformed message id %q", ErrInvalidArgument, id)
	}
	return nil
}
