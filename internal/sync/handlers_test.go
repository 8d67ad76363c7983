package sync

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pedrogbi/palaver/internal/model"
	"github.com/pedrogbi/palaver/internal/store"
	"github.com/pedrogbi/palaver/internal/transport"
)

func TestNewMessageAppendsToActiveWindow(t *testing.T) {
	te := newTestEngine(t)
	te.loggedIn(model.User{ID: "u1", Name: "ana"})
	te.store.SetActiveConversation(model.Conversation{Kind: model.KindDirect, ID: "u2"})

	te.deliver(t, transport.EventNewMessage, directMessage(msgID1, "u2", "u1", "hi"))

	waitFor(t, "message in window", func() bool {
		_, ok := te.store.MessageByID(msgID1)
		return ok
	})

	// Displayed peer message triggers a read receipt.
	waitFor(t, "read receipt", func() bool {
		return len(te.channel.emittedEvents(transport.EventMarkAsRead)) == 1
	})
	if got := te.store.Unread(model.ConversationKey(model.KindDirect, "u2")); got != 0 {
		t.Errorf("unread = %d for active conversation, want 0", got)
	}
}

func TestNewMessageDuplicateRedeliveryIsNoOp(t *testing.T) {
	te := newTestEngine(t)
	te.loggedIn(model.User{ID: "u1", Name: "ana"})
	te.store.SetActiveConversation(model.Conversation{Kind: model.KindDirect, ID: "u2"})

	msg := directMessage(msgID1, "u2", "u1", "hi")
	te.deliver(t, transport.EventNewMessage, msg)
	te.deliver(t, transport.EventNewMessage, msg)
	te.deliver(t, transport.EventNewMessage, directMessage(msgID2, "u2", "u1", "again"))

	waitFor(t, "second message", func() bool {
		_, ok := te.store.MessageByID(msgID2)
		return ok
	})
	if got := len(te.store.Messages()); got != 2 {
		t.Errorf("window length = %d, want 2 (duplicate dropped)", got)
	}
}

func TestNewMessageForInactiveConversationCountsUnread(t *testing.T) {
	te := newTestEngine(t)
	te.loggedIn(model.User{ID: "u1", Name: "ana"})
	te.store.SetActiveConversation(model.Conversation{Kind: model.KindDirect, ID: "u2"})

	// Direct message from u3 while chatting with u2.
	te.deliver(t, transport.EventNewMessage, directMessage(msgID1, "u3", "u1", "psst"))

	key := model.ConversationKey(model.KindDirect, "u3")
	waitFor(t, "unread increment", func() bool {
		return te.store.Unread(key) == 1
	})
	if got := len(te.store.Messages()); got != 0 {
		t.Errorf("window length = %d, want 0 (message was not for the active chat)", got)
	}
}

func TestNewMessageOwnEchoNeverCountsUnread(t *testing.T) {
	te := newTestEngine(t)
	te.loggedIn(model.User{ID: "u1", Name: "ana"})
	te.store.SetActiveConversation(model.Conversation{Kind: model.KindDirect, ID: "u2"})

	// Echo of a message u1 sent to u3 from another surface.
	te.deliver(t, transport.EventNewMessage, directMessage(msgID1, "u1", "u3", "self"))
	// Follow with a marker so we know the first event was processed.
	te.deliver(t, transport.EventNewMessage, directMessage(msgID2, "u2", "u1", "marker"))

	waitFor(t, "marker message", func() bool {
		_, ok := te.store.MessageByID(msgID2)
		return ok
	})
	if got := te.store.Unread(model.ConversationKey(model.KindDirect, "u3")); got != 0 {
		t.Errorf("own echo counted as unread: %d", got)
	}
}

func TestNewMessageResolvesSenderFromDirectory(t *testing.T) {
	te := newTestEngine(t)
	te.loggedIn(model.User{ID: "u1", Name: "ana"})
	te.store.UpsertUser(model.User{ID: "u2", Name: "bo"})
	te.store.SetActiveConversation(model.Conversation{Kind: model.KindDirect, ID: "u2"})

	// Sender arrives as a bare id string.
	raw := []byte(`{"_id":"` + msgID1 + `","content":"hi","sender":"u2","receiver":"u1"}`)
	te.channel.inbound <- transport.Envelope{Event: transport.EventNewMessage, Data: raw}

	waitFor(t, "message in window", func() bool {
		_, ok := te.store.MessageByID(msgID1)
		return ok
	})
	msg, _ := te.store.MessageByID(msgID1)
	if msg.Sender.Name != "bo" {
		t.Errorf("sender name = %q, want resolved %q", msg.Sender.Name, "bo")
	}
}

func TestNewMessageUnknownSenderGetsPlaceholder(t *testing.T) {
	te := newTestEngine(t)
	te.loggedIn(model.User{ID: "u1", Name: "ana"})
	te.store.SetActiveConversation(model.Conversation{Kind: model.KindDirect, ID: "u9"})

	raw := []byte(`{"_id":"` + msgID1 + `","content":"hi","sender":"u9","receiver":"u1"}`)
	te.channel.inbound <- transport.Envelope{Event: transport.EventNewMessage, Data: raw}

	waitFor(t, "message in window", func() bool {
		_, ok := te.store.MessageByID(msgID1)
		return ok
	})
	msg, _ := te.store.MessageByID(msgID1)
	if msg.Sender.Name != "Unknown" {
		t.Errorf("sender name = %q, want %q placeholder", msg.Sender.Name, "Unknown")
	}
}

func TestMessageReadMarksWindowCopy(t *testing.T) {
	te := newTestEngine(t)
	te.loggedIn(model.User{ID: "u1", Name: "ana"})
	te.store.SetActiveConversation(model.Conversation{Kind: model.KindDirect, ID: "u2"})
	te.store.AppendMessage(directMessage(msgID1, "u1", "u2", "sent"))

	te.deliver(t, transport.EventMessageRead, msgID1)

	waitFor(t, "read flag", func() bool {
		msg, ok := te.store.MessageByID(msgID1)
		return ok && msg.Read
	})
}

func TestMessageEditedUpdatesWindowCopy(t *testing.T) {
	te := newTestEngine(t)
	te.loggedIn(model.User{ID: "u1", Name: "ana"})
	te.store.SetActiveConversation(model.Conversation{Kind: model.KindDirect, ID: "u2"})
	te.store.AppendMessage(directMessage(msgID1, "u2", "u1", "old"))

	te.deliver(t, transport.EventMessageEdited, map[string]string{
		"messageId": msgID1,
		"content":   "fixed",
		"userId":    "u2",
	})

	waitFor(t, "edited content", func() bool {
		msg, ok := te.store.MessageByID(msgID1)
		return ok && msg.Content == "fixed" && msg.Edited
	})
}

func TestUserTypingTracksAndExpires(t *testing.T) {
	te := newTestEngine(t)
	te.loggedIn(model.User{ID: "u1", Name: "ana"})

	te.deliver(t, transport.EventUserTyping, map[string]string{
		"userId":     "u2",
		"name":       "bo",
		"receiverId": "u1",
	})

	key := model.ConversationKey(model.KindDirect, "u2")
	waitFor(t, "typing state", func() bool {
		return len(te.store.TypingIn(key)) == 1
	})

	// The prune pass clears the entry after the expiry window even
	// without a stop signal.
	waitFor(t, "typing expiry", func() bool {
		return len(te.store.PruneExpiredTyping(time.Now().Add(store.TypingTTL+time.Second))) == 0 &&
			len(te.store.TypingIn(key)) == 0
	})
}

func TestUserTypingIgnoresLocalEcho(t *testing.T) {
	te := newTestEngine(t)
	te.loggedIn(model.User{ID: "u1", Name: "ana"})

	te.deliver(t, transport.EventUserTyping, map[string]string{
		"userId":     "u1",
		"name":       "ana",
		"receiverId": "u2",
	})
	te.deliver(t, transport.EventUserTyping, map[string]string{
		"userId":     "u2",
		"name":       "bo",
		"receiverId": "u1",
	})

	waitFor(t, "peer typing state", func() bool {
		return len(te.store.TypingIn(model.ConversationKey(model.KindDirect, "u2"))) == 1
	})
	if got := te.store.TypingIn(model.ConversationKey(model.KindDirect, "u1")); len(got) != 0 {
		t.Errorf("local echo tracked as typing: %+v", got)
	}
}

func TestUserStoppedTypingClearsEarly(t *testing.T) {
	te := newTestEngine(t)
	te.loggedIn(model.User{ID: "u1", Name: "ana"})

	te.deliver(t, transport.EventUserTyping, map[string]string{
		"userId":     "u2",
		"name":       "bo",
		"receiverId": "u1",
	})
	key := model.ConversationKey(model.KindDirect, "u2")
	waitFor(t, "typing state", func() bool {
		return len(te.store.TypingIn(key)) == 1
	})

	te.deliver(t, transport.EventUserStoppedTyping, map[string]string{"userId": "u2"})
	waitFor(t, "typing cleared", func() bool {
		return len(te.store.TypingIn(key)) == 0
	})
}

func TestPresenceAliasesAndSnapshot(t *testing.T) {
	te := newTestEngine(t)
	te.loggedIn(model.User{ID: "u1", Name: "ana"})

	te.deliver(t, transport.EventUserConnected, "u2")
	te.deliver(t, transport.EventUserOnline, "u3")
	waitFor(t, "per-user presence", func() bool {
		return te.store.IsOnline("u2") && te.store.IsOnline("u3")
	})

	te.deliver(t, transport.EventUserDisconnected, "u2")
	waitFor(t, "offline flag", func() bool {
		return !te.store.IsOnline("u2")
	})

	// Authoritative snapshot overwrites everything accumulated so far.
	te.deliver(t, transport.EventOnlineUsers, []string{"u4", "u5"})
	waitFor(t, "snapshot replace", func() bool {
		return te.store.IsOnline("u4") && te.store.IsOnline("u5") && !te.store.IsOnline("u3")
	})
}

func TestCallOfferForwardedOnBus(t *testing.T) {
	te := newTestEngine(t)
	te.loggedIn(model.User{ID: "u1", Name: "ana"})

	ch, unsub := te.bus.Subscribe("session.call_offer", 1)
	defer unsub()

	te.deliver(t, transport.EventCallOffer, map[string]any{
		"from":     "u2",
		"callType": "video",
		"offer":    map[string]string{"sdp": "v=0"},
	})

	select {
	case evt := <-ch:
		offer, ok := evt.Payload.(CallOffer)
		if !ok {
			t.Fatalf("payload type = %T", evt.Payload)
		}
		if offer.From != "u2" || offer.CallType != "video" {
			t.Errorf("offer = %+v", offer)
		}
		var sdp map[string]string
		if err := json.Unmarshal(offer.Offer, &sdp); err != nil || sdp["sdp"] != "v=0" {
			t.Errorf("offer body = %s", offer.Offer)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no call offer notification")
	}
}

func TestMalformedPayloadDoesNotStallStream(t *testing.T) {
	te := newTestEngine(t)
	te.loggedIn(model.User{ID: "u1", Name: "ana"})
	te.store.SetActiveConversation(model.Conversation{Kind: model.KindDirect, ID: "u2"})

	te.channel.inbound <- transport.Envelope{Event: transport.EventNewMessage, Data: []byte(`{broken`)}
	te.channel.inbound <- transport.Envelope{Event: "someFutureEvent", Data: []byte(`{}`)}
	te.deliver(t, transport.EventNewMessage, directMessage(msgID1, "u2", "u1", "still here"))

	waitFor(t, "valid message after garbage", func() bool {
		_, ok := te.store.MessageByID(msgID1)
		return ok
	})
}

// TestUnreadRoutingScenario walks the full unread flow: a message for a
// background conversation accumulates, and switching to it clears the
// counter and loads its history in one step.
func TestUnreadRoutingScenario(t *testing.T) {
	te := newTestEngine(t)
	te.loggedIn(model.User{ID: "u1", Name: "ana"})
	te.store.UpsertUser(model.User{ID: "u2", Name: "bo"})
	te.store.UpsertUser(model.User{ID: "u3", Name: "cy"})

	convA := model.Conversation{Kind: model.KindDirect, ID: "u2", Name: "bo"}
	convB := model.Conversation{Kind: model.KindDirect, ID: "u3", Name: "cy"}

	history := map[string][]model.Message{
		"u2": {directMessage(msgID1, "u2", "u1", "hello from bo")},
		"u3": {directMessage(msgID2, "u3", "u1", "hello from cy")},
	}
	te.remote.directMessages = func(localID, otherID string, skip, limit int) ([]model.Message, error) {
		return history[otherID], nil
	}

	if err := te.engine.SetCurrentChat(context.Background(), convA); err != nil {
		t.Fatalf("SetCurrentChat(A): %v", err)
	}

	// Message for B lands while A is active.
	te.deliver(t, transport.EventNewMessage, directMessage(msgID3, "u3", "u1", "psst"))
	waitFor(t, "unread for B", func() bool {
		return te.store.Unread(convB.Key()) == 1
	})
	if got := len(te.store.Messages()); got != 1 {
		t.Fatalf("window length = %d while A active, want 1", got)
	}

	if err := te.engine.SetCurrentChat(context.Background(), convB); err != nil {
		t.Fatalf("SetCurrentChat(B): %v", err)
	}
	if got := te.store.Unread(convB.Key()); got != 0 {
		t.Errorf("unread for B = %d after switch, want 0", got)
	}
	msgs := te.store.Messages()
	if len(msgs) != 1 || msgs[0].ID != msgID2 {
		t.Errorf("window = %+v, want B's history page", msgs)
	}
}
