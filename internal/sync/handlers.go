package sync

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pedrogbi/palaver/internal/bus"
	"github.com/pedrogbi/palaver/internal/model"
	"github.com/pedrogbi/palaver/internal/transport"
	"go.uber.org/zap"
)

// CallOffer is the bus payload for an incoming call notification. The
// engine forwards it untouched; call media is not its concern.
type CallOffer struct {
	From     string          `json:"from"`
	CallType string          `json:"callType"`
	Offer    json.RawMessage `json:"offer"`
}

// handleNewMessage routes an authoritative message copy: into the window
// with a read receipt when it belongs to the active conversation,
// otherwise into the unread counter for its conversation. The local user's
// own echoes never count as unread.
func (e *Engine) handleNewMessage(data json.RawMessage) {
	var msg model.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		e.logger.Warn("malformed newMessage payload", zap.Error(err))
		return
	}
	local, ok := e.store.LocalUser()
	if !ok {
		e.logger.Warn("newMessage before login", zap.String("message_id", msg.ID))
		return
	}

	if msg.Sender.Name == "" && msg.Sender.ID != "" {
		if msg.Sender.ID == local.ID {
			msg.Sender = local
		} else if u, known := e.store.UserByID(msg.Sender.ID); known {
			msg.Sender = u
		} else {
			msg.Sender = model.UnknownUser(msg.Sender.ID)
		}
	}

	key := msg.ConversationKey(local.ID)
	active, hasActive := e.store.ActiveConversation()

	if hasActive && active.Key() == key {
		if !e.store.AppendMessage(msg) {
			// Redelivery of a message already in the window.
			return
		}
		e.bus.PublishKind(bus.KindMessageAppended, msg.ID)

		if msg.Sender.ID != local.ID && model.ValidateMessageID(msg.ID) == nil {
			e.sendReadReceipt(msg.ID)
		}
		return
	}

	if msg.Sender.ID != local.ID {
		e.store.IncrementUnread(key)
		e.bus.PublishKind(bus.KindUnreadChanged, key)
	}
}

// sendReadReceipt reports a displayed message as read. Runs on the
// timeline; it must not go through apply.
func (e *Engine) sendReadReceipt(messageID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.channel.Emit(ctx, transport.EventMarkAsRead, messageID); err != nil {
		e.logger.Warn("read receipt failed", zap.String("message_id", messageID), zap.Error(err))
		return
	}
	if e.store.MarkRead(messageID) {
		e.bus.PublishKind(bus.KindMessageRead, messageID)
	}
}

func (e *Engine) handleMessageRead(data json.RawMessage) {
	var messageID string
	if err := json.Unmarshal(data, &messageID); err != nil {
		e.logger.Warn("malformed messageRead payload", zap.Error(err))
		return
	}
	if e.store.MarkRead(messageID) {
		e.bus.PublishKind(bus.KindMessageRead, messageID)
	}
}

func (e *Engine) handleMessageEdited(data json.RawMessage) {
	var payload struct {
		MessageID string `json:"messageId"`
		Content   string `json:"content"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		e.logger.Warn("malformed messageEdited payload", zap.Error(err))
		return
	}
	if e.store.MarkEdited(payload.MessageID, payload.Content) {
		e.bus.PublishKind(bus.KindMessageEdited, payload.MessageID)
	}
}

// handleUserTyping refreshes the typist's soft-state entry. Expiry is
// time-based; each signal restarts the window.
func (e *Engine) handleUserTyping(data json.RawMessage) {
	var payload struct {
		UserID     string `json:"userId"`
		Name       string `json:"name"`
		GroupID    string `json:"groupId"`
		ReceiverID string `json:"receiverId"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		e.logger.Warn("malformed userTyping payload", zap.Error(err))
		return
	}
	if local, ok := e.store.LocalUser(); ok && payload.UserID == local.ID {
		return
	}

	key := model.ConversationKey(model.KindDirect, payload.UserID)
	if payload.GroupID != "" {
		key = model.ConversationKey(model.KindGroup, payload.GroupID)
	}
	e.store.TouchTyping(payload.UserID, payload.Name, key, time.Now())
	e.bus.PublishKind(bus.KindTypingChanged, key)
}

// handleUserStoppedTyping clears the entry early. The expiry sweep makes
// this purely an optimization; a lost stop signal costs at most the TTL.
func (e *Engine) handleUserStoppedTyping(data json.RawMessage) {
	var payload struct {
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		e.logger.Warn("malformed userStoppedTyping payload", zap.Error(err))
		return
	}
	if e.store.RemoveTyping(payload.UserID) {
		e.bus.PublishKind(bus.KindTypingChanged, payload.UserID)
	}
}

func (e *Engine) handleUserOnline(data json.RawMessage) {
	e.setPresence(data, true)
}

func (e *Engine) handleUserOffline(data json.RawMessage) {
	e.setPresence(data, false)
}

func (e *Engine) setPresence(data json.RawMessage, online bool) {
	var userID string
	if err := json.Unmarshal(data, &userID); err != nil {
		e.logger.Warn("malformed presence payload", zap.Error(err))
		return
	}
	e.store.SetOnline(userID, online)
	e.bus.PublishKind(bus.KindPresenceChanged, userID)
}

// handleOnlineUsers installs the authoritative presence snapshot,
// overwriting every per-user flag accumulated so far.
func (e *Engine) handleOnlineUsers(data json.RawMessage) {
	var userIDs []string
	if err := json.Unmarshal(data, &userIDs); err != nil {
		e.logger.Warn("malformed onlineUsers payload", zap.Error(err))
		return
	}
	e.store.ReplaceOnline(userIDs)
	e.bus.PublishKind(bus.KindPresenceChanged, nil)
}

func (e *Engine) handleCallOffer(data json.RawMessage) {
	var offer CallOffer
	if err := json.Unmarshal(data, &offer); err != nil {
		e.logger.Warn("malformed callOffer payload", zap.Error(err))
		return
	}
	e.bus.PublishKind(bus.KindCallOffer, offer)
}
