// Package sync is the synchronization engine: the single logical writer
// that reconciles user-initiated operations and inbound server events into
// the local store. All store mutations happen on one goroutine, so
// observers never see a torn update.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/pedrogbi/palaver/internal/bus"
	"github.com/pedrogbi/palaver/internal/model"
	"github.com/pedrogbi/palaver/internal/remote"
	"github.com/pedrogbi/palaver/internal/store"
	"github.com/pedrogbi/palaver/internal/transport"
	"go.uber.org/zap"
)

const (
	messagePageSize   = 20
	directoryPageSize = 20
	typingAckTimeout  = 2 * time.Second
	pruneInterval     = time.Second
)

// ErrNotRunning is returned when an operation is submitted to a stopped
// engine.
var ErrNotRunning = errors.New("sync engine not running")

// Remote is the slice of the chat service HTTP API the engine depends on.
type Remote interface {
	FindUserByName(ctx context.Context, name string) (*model.User, error)
	CreateUser(ctx context.Context, name string) (*model.User, error)
	ListUsers(ctx context.Context, page, limit int) ([]model.User, error)
	ListGroups(ctx context.Context) ([]model.Group, error)
	CreateGroup(ctx context.Context, name string, memberIDs []string, createdBy string) (*model.Group, error)
	AddGroupMember(ctx context.Context, groupID, userID string) (*model.Group, error)
	RemoveGroupMember(ctx context.Context, groupID, userID string) (*model.Group, error)
	DirectMessages(ctx context.Context, localID, otherID string, skip, limit int) ([]model.Message, error)
	GroupMessages(ctx context.Context, groupID string, skip, limit int) ([]model.Message, error)
	UpdateMessage(ctx context.Context, messageID, content string) (*model.Message, error)
	DeleteMessage(ctx context.Context, messageID string) error
	UploadAttachment(ctx context.Context, in remote.UploadInput) (*model.Attachment, error)
}

// Channel is the session transport surface the engine depends on.
type Channel interface {
	Connect(ctx context.Context, userID string) error
	Disconnect() error
	Emit(ctx context.Context, event string, payload any) error
	EmitWithAck(ctx context.Context, event string, payload any, timeout time.Duration) error
	Inbound() <-chan transport.Envelope
	State() transport.State
}

// Durable is the persistent slice of session state that survives restarts.
type Durable interface {
	SaveLocalUser(u model.User) error
	LoadLocalUser() (*model.User, error)
	SaveActiveConversation(c model.Conversation) error
	LoadActiveConversation() (*model.Conversation, error)
	Clear() error
}

type handlerFunc func(data json.RawMessage)

// Engine drives session synchronization. Construct with New, then Start;
// user-initiated operations are safe to call from any goroutine.
type Engine struct {
	store    *store.Store
	durable  Durable
	remote   Remote
	channel  Channel
	bus      *bus.Bus
	logger   *zap.Logger
	handlers map[string]handlerFunc

	mu      sync.Mutex
	running bool
	applyCh chan func()
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates an engine over the given collaborators.
func New(s *store.Store, d Durable, r Remote, ch Channel, b *bus.Bus, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		store:   s,
		durable: d,
		remote:  r,
		channel: ch,
		bus:     b,
		logger:  logger,
		applyCh: make(chan func()),
	}
	e.handlers = map[string]handlerFunc{
		transport.EventNewMessage:        e.handleNewMessage,
		transport.EventMessageRead:       e.handleMessageRead,
		transport.EventMessageEdited:     e.handleMessageEdited,
		transport.EventUserTyping:        e.handleUserTyping,
		transport.EventUserStoppedTyping: e.handleUserStoppedTyping,
		transport.EventUserOnline:        e.handleUserOnline,
		transport.EventUserConnected:     e.handleUserOnline,
		transport.EventUserOffline:       e.handleUserOffline,
		transport.EventUserDisconnected:  e.handleUserOffline,
		transport.EventOnlineUsers:       e.handleOnlineUsers,
		transport.EventCallOffer:         e.handleCallOffer,
	}
	return e
}

// Start launches the engine timeline. Calling it on a running engine is a
// no-op.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return
	}
	e.running = true
	e.stopCh = make(chan struct{})
	e.doneCh = make(chan struct{})
	go e.run(e.stopCh, e.doneCh)
	e.logger.Info("sync engine started")
}

// Stop halts the timeline and waits for it to drain.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	close(e.stopCh)
	done := e.doneCh
	e.mu.Unlock()

	<-done
	e.logger.Info("sync engine stopped")
}

// run is the single writer timeline: inbound events, user operation
// closures and the typing prune tick all serialize here.
func (e *Engine) run(stopCh chan struct{}, doneCh chan struct{}) {
	defer close(doneCh)
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case env := <-e.channel.Inbound():
			e.dispatch(env)
		case fn := <-e.applyCh:
			fn()
		case now := <-ticker.C:
			e.pruneTyping(now)
		}
	}
}

// dispatch routes an inbound envelope through the handler table. Unknown
// events and malformed payloads are logged and dropped; they never stall
// the stream.
func (e *Engine) dispatch(env transport.Envelope) {
	h, ok := e.handlers[env.Event]
	if !ok {
		e.logger.Debug("unhandled inbound event", zap.String("event", env.Event))
		return
	}
	h(env.Data)
}

// apply submits a store mutation to the timeline and waits for it to run.
func (e *Engine) apply(ctx context.Context, fn func()) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return ErrNotRunning
	}
	stopCh := e.stopCh
	e.mu.Unlock()

	done := make(chan struct{})
	wrapped := func() {
		fn()
		close(done)
	}
	select {
	case e.applyCh <- wrapped:
	case <-stopCh:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-stopCh:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) pruneTyping(now time.Time) {
	for _, ts := range e.store.PruneExpiredTyping(now) {
		e.bus.PublishKind(bus.KindTypingChanged, ts.Conversation)
	}
}
