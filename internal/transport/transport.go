// Package transport owns the persistent bidirectional channel to the chat
// service. It maintains at most one logical connection per local user,
// reconnects with bounded exponential backoff, and delivers inbound events
// to the engine in wire order with nothing dropped.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pedrogbi/palaver/internal/bus"
	"github.com/pedrogbi/palaver/internal/model"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// ErrAckTimeout is returned by EmitWithAck when the server does not
// confirm delivery within the deadline.
var ErrAckTimeout = errors.New("ack timeout")

const inboundBuffer = 256

// Transport is the session channel. Construct one per logical user
// session and tear it down on logout.
type Transport struct {
	serverURL string
	opts      Options
	machine   *Machine
	logger    *zap.Logger

	mu          sync.Mutex
	conn        *websocket.Conn
	userID      string
	intentional bool
	cancel      context.CancelFunc

	inbound chan Envelope

	pendingMu sync.Mutex
	pending   map[string]chan json.RawMessage
}

// New creates a transport for the service at serverURL. Lifecycle changes
// are published on b under the transport namespace.
func New(serverURL string, b *bus.Bus, logger *zap.Logger, opts Options) *Transport {
	opts.defaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transport{
		serverURL: strings.TrimRight(serverURL, "/"),
		opts:      opts,
		machine:   NewMachine(b),
		logger:    logger,
		inbound:   make(chan Envelope, inboundBuffer),
		pending:   make(map[string]chan json.RawMessage),
	}
}

// State returns the current connection state.
func (t *Transport) State() State {
	return t.machine.Current()
}

// Machine exposes the state machine for observers.
func (t *Transport) Machine() *Machine {
	return t.machine
}

// Inbound returns the ordered inbound event stream. The transport blocks
// its read loop rather than dropping events when the consumer lags.
func (t *Transport) Inbound() <-chan Envelope {
	return t.inbound
}

// Connect establishes the session channel for the given user. Calling it
// while already connected or connecting is a no-op.
func (t *Transport) Connect(ctx context.Context, userID string) error {
	t.mu.Lock()
	switch t.machine.Current() {
	case Connected, Connecting, Reconnecting:
		t.mu.Unlock()
		return nil
	}
	t.userID = userID
	t.intentional = false
	t.mu.Unlock()

	if err := t.machine.Transition(Connecting); err != nil {
		return err
	}

	conn, err := t.dial(ctx)
	if err != nil {
		_ = t.machine.Transition(Disconnected)
		return fmt.Errorf("%w: connect: %v", model.ErrTransportUnavailable, err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	t.mu.Lock()
	t.conn = conn
	t.cancel = cancel
	t.mu.Unlock()

	_ = t.machine.Transition(Connected)
	t.logger.Info("session channel connected", zap.String("user_id", userID))

	go t.readLoop(loopCtx)
	return nil
}

// Disconnect tears the channel down. Valid from any state; cancels any
// in-flight reconnect timer. The transport stays Disconnected until an
// explicit Connect.
func (t *Transport) Disconnect() error {
	t.mu.Lock()
	t.intentional = true
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	t.failPending()
	_ = t.machine.Transition(Disconnected)
	t.logger.Info("session channel disconnected")

	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "client disconnect")
	}
	return nil
}

// Emit sends a named event without waiting for confirmation.
func (t *Transport) Emit(ctx context.Context, event string, payload any) error {
	return t.emit(ctx, event, payload, "")
}

// EmitWithAck sends a named event and waits up to timeout for the server's
// delivery confirmation. The confirmation is an optional assurance; a
// timeout does not mean the event was lost.
func (t *Transport) EmitWithAck(ctx context.Context, event string, payload any, timeout time.Duration) error {
	ackID := uuid.NewString()
	ch := make(chan json.RawMessage, 1)

	t.pendingMu.Lock()
	t.pending[ackID] = ch
	t.pendingMu.Unlock()

	if err := t.emit(ctx, event, payload, ackID); err != nil {
		t.dropPending(ackID)
		return err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case _, ok := <-ch:
		if !ok {
			return fmt.Errorf("%w: emit %s", model.ErrTransportUnavailable, event)
		}
		return nil
	case <-timer.C:
		t.dropPending(ackID)
		return fmt.Errorf("%w: %s", ErrAckTimeout, event)
	case <-ctx.Done():
		t.dropPending(ackID)
		return ctx.Err()
	}
}

func (t *Transport) emit(ctx context.Context, event string, payload any, ackID string) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	if conn == nil || t.machine.Current() != Connected {
		return fmt.Errorf("%w: emit %s", model.ErrTransportUnavailable, event)
	}

	env := Envelope{Event: event, AckID: ackID}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s payload: %w", event, err)
		}
		env.Data = data
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, raw); err != nil {
		return fmt.Errorf("%w: emit %s: %v", model.ErrTransportUnavailable, event, err)
	}
	return nil
}

func (t *Transport) dial(ctx context.Context) (*websocket.Conn, error) {
	t.mu.Lock()
	userID := t.userID
	t.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, t.opts.DialTimeout)
	defer cancel()

	wsURL := strings.Replace(t.serverURL, "https://", "wss://", 1)
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)
	wsURL += "/ws?userId=" + url.QueryEscape(userID)

	conn, _, err := websocket.Dial(dialCtx, wsURL, nil)
	return conn, err
}

// readLoop is the single reader: it preserves wire order and survives
// connection loss by running the bounded reconnect sequence inline, so no
// two retry timers can ever be active at once.
func (t *Transport) readLoop(ctx context.Context) {
	for {
		t.mu.Lock()
		conn := t.conn
		t.mu.Unlock()
		if conn == nil {
			return
		}

		_, data, err := conn.Read(ctx)
		if err != nil {
			t.mu.Lock()
			intentional := t.intentional
			t.conn = nil
			t.mu.Unlock()
			t.failPending()

			if intentional || ctx.Err() != nil {
				return
			}
			t.logger.Warn("session channel lost", zap.Error(err))
			if !t.reconnect(ctx) {
				return
			}
			continue
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.logger.Warn("malformed envelope dropped", zap.Error(err))
			continue
		}
		if env.Event == eventAck {
			t.resolveAck(env)
			continue
		}
		select {
		case t.inbound <- env:
		case <-ctx.Done():
			return
		}
	}
}

// reconnect runs the sequential backoff loop. Returns true when the
// channel is re-established, false when attempts are exhausted or the
// loop is cancelled by Disconnect.
func (t *Transport) reconnect(ctx context.Context) bool {
	for attempt := 1; attempt <= t.opts.MaxAttempts; attempt++ {
		if err := t.machine.TransitionReconnecting(attempt); err != nil {
			return false
		}

		timer := time.NewTimer(t.opts.backoffDelay(attempt))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return false
		}

		conn, err := t.dial(ctx)
		if err != nil {
			t.logger.Warn("reconnect attempt failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		t.mu.Lock()
		t.conn = conn
		t.mu.Unlock()
		_ = t.machine.Transition(Connected)
		t.logger.Info("session channel reconnected", zap.Int("attempt", attempt))
		return true
	}

	_ = t.machine.Transition(Disconnected)
	t.logger.Warn("reconnect attempts exhausted", zap.Int("attempts", t.opts.MaxAttempts))
	return false
}

func (t *Transport) resolveAck(env Envelope) {
	if env.AckID == "" {
		return
	}
	t.pendingMu.Lock()
	ch, ok := t.pending[env.AckID]
	if ok {
		delete(t.pending, env.AckID)
	}
	t.pendingMu.Unlock()
	if ok {
		ch <- env.Data
	}
}

func (t *Transport) dropPending(ackID string) {
	t.pendingMu.Lock()
	delete(t.pending, ackID)
	t.pendingMu.Unlock()
}

// failPending closes all waiters; the connection they were confirmed on
// is gone.
func (t *Transport) failPending() {
	t.pendingMu.Lock()
	for id, ch := range t.pending {
		close(ch)
		delete(t.pending, id)
	}
	t.pendingMu.Unlock()
}
