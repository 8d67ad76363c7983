package transport

import "encoding/json"

// Envelope is the wire format for every event on the session channel.
// AckID, when set on an outbound envelope, requests a delivery
// confirmation; the server answers with an "ack" envelope carrying the
// same id.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	AckID string          `json:"ackId,omitempty"`
}

// eventAck is the reserved confirmation event; it resolves a pending
// EmitWithAck and is never delivered to subscribers.
const eventAck = "ack"

// Outbound event names.
const (
	EventSendMessage    = "sendMessage"
	EventJoinGroup      = "joinGroup"
	EventLeaveGroup     = "leaveGroup"
	EventTyping         = "typing"
	EventMarkAsRead     = "markAsRead"
	EventMessageEdited  = "messageEdited"
	EventMessageDeleted = "messageDeleted"
)

// Inbound event names. Online/offline presence arrives under two aliases
// depending on the server revision.
const (
	EventNewMessage        = "newMessage"
	EventMessageRead       = "messageRead"
	EventUserTyping        = "userTyping"
	EventUserStoppedTyping = "userStoppedTyping"
	EventUserOnline        = "userOnline"
	EventUserConnected     = "userConnected"
	EventUserOffline       = "userOffline"
	EventUserDisconnected  = "userDisconnected"
	EventOnlineUsers       = "onlineUsers"
	EventCallOffer         = "callOffer"
)
