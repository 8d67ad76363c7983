package bus

import "time"

// Event is a notification about observable engine state. The presentation
// collaborator subscribes by namespace and re-reads the local store on
// receipt; payloads carry identifiers, not entity snapshots.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds published by the engine and the transport.
const (
	KindMessageAppended  = "chat.message_appended"
	KindMessageEdited    = "chat.message_edited"
	KindMessageRemoved   = "chat.message_removed"
	KindMessageRead      = "chat.message_read"
	KindWindowReloaded   = "chat.window_reloaded"
	KindUnreadChanged    = "chat.unread_changed"
	KindTypingChanged    = "chat.typing_changed"
	KindPresenceChanged  = "chat.presence_changed"
	KindActiveChanged    = "chat.active_changed"
	KindRosterChanged    = "chat.roster_changed"
	KindSendFailed       = "chat.send_failed"
	KindCallOffer        = "session.call_offer"
	KindSessionRestored  = "session.restored"
	KindSessionLoggedOut = "session.logged_out"
	KindStatusChanged    = "transport.status_changed"
)
