package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pedrogbi/palaver/internal/bus"
	"github.com/pedrogbi/palaver/internal/model"
	"github.com/pedrogbi/palaver/internal/remote"
	"github.com/pedrogbi/palaver/internal/transport"
	"go.uber.org/zap"
)

// Upload describes a file to attach to an outgoing message. The engine
// uploads it before emitting the message.
type Upload struct {
	Filename    string
	ContentType string
	File        io.Reader
}

// SendInput describes an outgoing message.
type SendInput struct {
	Conversation model.Conversation
	Content      string
	ReplyTo      string
	Forwarded    bool
	Tagged       []string
	// Attachment is an already-stored descriptor, used when forwarding a
	// message that carries one. Upload takes precedence for new files.
	Attachment *model.Attachment
	Upload     *Upload
}

// SendMessage validates and emits an outgoing message. The local window is
// not touched: the authoritative copy arrives back as a newMessage event,
// which keeps echo handling and multi-client consistency in one code path.
func (e *Engine) SendMessage(ctx context.Context, in SendInput) error {
	if err := in.Conversation.Validate(); err != nil {
		return err
	}
	content := strings.TrimSpace(in.Content)
	if content == "" && in.Attachment == nil && in.Upload == nil {
		return fmt.Errorf("%w: message needs content or an attachment", model.ErrInvalidArgument)
	}
	local, ok := e.store.LocalUser()
	if !ok {
		return fmt.Errorf("%w: not logged in", model.ErrInvalidArgument)
	}
	if err := e.ensureConnected(ctx); err != nil {
		return err
	}

	attachment := in.Attachment
	if in.Upload != nil && !in.Forwarded {
		up := remote.UploadInput{
			SenderID:    local.ID,
			Content:     content,
			Filename:    in.Upload.Filename,
			ContentType: in.Upload.ContentType,
			File:        in.Upload.File,
		}
		if in.Conversation.Kind == model.KindDirect {
			up.ReceiverID = in.Conversation.ID
		}
		desc, err := e.remote.UploadAttachment(ctx, up)
		if err != nil {
			return fmt.Errorf("upload attachment: %w", err)
		}
		attachment = desc
	}

	payload := map[string]any{
		"content": content,
		"sender":  local.ID,
	}
	switch in.Conversation.Kind {
	case model.KindDirect:
		payload["receiver"] = in.Conversation.ID
	case model.KindGroup:
		payload["group"] = in.Conversation.ID
	}
	if in.ReplyTo != "" {
		payload["replyTo"] = in.ReplyTo
	}
	if in.Forwarded {
		payload["isForwarded"] = true
	}
	if len(in.Tagged) > 0 {
		payload["taggedUsers"] = in.Tagged
	}
	if attachment != nil {
		payload["attachment"] = attachment
	}

	if err := e.channel.Emit(ctx, transport.EventSendMessage, payload); err != nil {
		e.bus.PublishKind(bus.KindSendFailed, in.Conversation.Key())
		return err
	}
	return nil
}

// EditMessage updates a message's content on the service, then in the
// local window, preferring the server's representation when it returns
// one. Peers are notified over the session channel.
func (e *Engine) EditMessage(ctx context.Context, messageID, content string) error {
	if err := model.ValidateMessageID(messageID); err != nil {
		return err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return fmt.Errorf("%w: empty edit content", model.ErrInvalidArgument)
	}
	if _, ok := e.store.MessageByID(messageID); !ok {
		return fmt.Errorf("%w: message %s not in window", model.ErrNotFound, messageID)
	}

	updated, err := e.remote.UpdateMessage(ctx, messageID, content)
	if err != nil {
		return fmt.Errorf("edit message: %w", err)
	}

	if err := e.apply(ctx, func() {
		if updated != nil {
			e.store.ReplaceMessage(*updated)
		} else {
			e.store.MarkEdited(messageID, content)
		}
		e.bus.PublishKind(bus.KindMessageEdited, messageID)
	}); err != nil {
		return err
	}

	local, _ := e.store.LocalUser()
	notice := map[string]string{
		"messageId": messageID,
		"content":   content,
		"userId":    local.ID,
	}
	if err := e.channel.Emit(ctx, transport.EventMessageEdited, notice); err != nil {
		// The edit is already committed remotely; peers converge on
		// their next fetch.
		e.logger.Warn("edit broadcast failed", zap.String("message_id", messageID), zap.Error(err))
	}
	return nil
}

// DeleteMessage removes a message on the service and locally, then
// notifies peers.
func (e *Engine) DeleteMessage(ctx context.Context, messageID string) error {
	if err := model.ValidateMessageID(messageID); err != nil {
		return err
	}
	if err := e.remote.DeleteMessage(ctx, messageID); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}

	if err := e.apply(ctx, func() {
		if e.store.RemoveMessage(messageID) {
			e.bus.PublishKind(bus.KindMessageRemoved, messageID)
		}
	}); err != nil {
		return err
	}

	local, _ := e.store.LocalUser()
	notice := map[string]string{
		"messageId": messageID,
		"userId":    local.ID,
	}
	if err := e.channel.Emit(ctx, transport.EventMessageDeleted, notice); err != nil {
		e.logger.Warn("delete broadcast failed", zap.String("message_id", messageID), zap.Error(err))
	}
	return nil
}

// MarkMessageAsRead reports a read receipt for the given message and marks
// the local copy.
func (e *Engine) MarkMessageAsRead(ctx context.Context, messageID string) error {
	if err := model.ValidateMessageID(messageID); err != nil {
		return err
	}
	if err := e.ensureConnected(ctx); err != nil {
		return err
	}
	if err := e.channel.Emit(ctx, transport.EventMarkAsRead, messageID); err != nil {
		return err
	}
	return e.apply(ctx, func() {
		if e.store.MarkRead(messageID) {
			e.bus.PublishKind(bus.KindMessageRead, messageID)
		}
	})
}

// SetCurrentChat switches the active conversation: fetches the first page,
// persists the conversation identity for the next session, and installs
// window plus zeroed unread counter in one serialized step. Switching to a
// group also joins its room.
func (e *Engine) SetCurrentChat(ctx context.Context, conv model.Conversation) error {
	if err := conv.Validate(); err != nil {
		return err
	}

	msgs, err := e.fetchPage(ctx, conv, 0, messagePageSize)
	if err != nil {
		return err
	}
	if err := e.durable.SaveActiveConversation(conv); err != nil {
		return fmt.Errorf("persist active conversation: %w", err)
	}

	if err := e.apply(ctx, func() {
		e.store.SetActiveConversation(conv)
		e.store.ReplaceWindow(msgs)
		e.bus.PublishKind(bus.KindActiveChanged, conv.Key())
		e.bus.PublishKind(bus.KindWindowReloaded, conv.Key())
	}); err != nil {
		return err
	}

	if conv.Kind == model.KindGroup {
		if err := e.ensureConnected(ctx); err == nil {
			if err := e.channel.Emit(ctx, transport.EventJoinGroup, conv.ID); err != nil {
				e.logger.Warn("join group room failed", zap.String("group_id", conv.ID), zap.Error(err))
			}
		}
	}
	return nil
}

// FetchMessages loads a history page for the conversation. skip 0 replaces
// the window; a positive skip prepends the older page in front of what is
// already loaded.
func (e *Engine) FetchMessages(ctx context.Context, conv model.Conversation, skip, limit int) ([]model.Message, error) {
	if err := conv.Validate(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = messagePageSize
	}
	msgs, err := e.fetchPage(ctx, conv, skip, limit)
	if err != nil {
		return nil, err
	}
	if err := e.apply(ctx, func() {
		if skip == 0 {
			e.store.ReplaceWindow(msgs)
		} else {
			e.store.PrependWindow(msgs)
		}
		e.bus.PublishKind(bus.KindWindowReloaded, conv.Key())
	}); err != nil {
		return nil, err
	}
	return msgs, nil
}

// SendTypingStatus signals that the local user is typing in the
// conversation. The server's delivery confirmation is best-effort: a
// missed ack is logged, never surfaced.
func (e *Engine) SendTypingStatus(ctx context.Context, conv model.Conversation) error {
	if err := conv.Validate(); err != nil {
		return err
	}
	local, ok := e.store.LocalUser()
	if !ok {
		return fmt.Errorf("%w: not logged in", model.ErrInvalidArgument)
	}
	if err := e.ensureConnected(ctx); err != nil {
		return err
	}

	payload := map[string]any{
		"userId":    local.ID,
		"name":      local.Name,
		"timestamp": time.Now().UnixMilli(),
	}
	switch conv.Kind {
	case model.KindDirect:
		payload["receiverId"] = conv.ID
	case model.KindGroup:
		payload["groupId"] = conv.ID
	}

	err := e.channel.EmitWithAck(ctx, transport.EventTyping, payload, typingAckTimeout)
	if errors.Is(err, transport.ErrAckTimeout) {
		e.logger.Debug("typing ack missed", zap.String("key", string(conv.Key())))
		return nil
	}
	return err
}

func (e *Engine) fetchPage(ctx context.Context, conv model.Conversation, skip, limit int) ([]model.Message, error) {
	local, ok := e.store.LocalUser()
	if !ok {
		return nil, fmt.Errorf("%w: not logged in", model.ErrInvalidArgument)
	}
	switch conv.Kind {
	case model.KindDirect:
		return e.remote.DirectMessages(ctx, local.ID, conv.ID, skip, limit)
	case model.KindGroup:
		return e.remote.GroupMessages(ctx, conv.ID, skip, limit)
	default:
		return nil, fmt.Errorf("%w: unknown conversation kind %q", model.ErrInvalidArgument, conv.Kind)
	}
}
