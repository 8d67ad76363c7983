package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	gosync "sync"

	"github.com/pedrogbi/palaver/internal/bus"
	"github.com/pedrogbi/palaver/internal/model"
	"github.com/pedrogbi/palaver/internal/transport"
	"go.uber.org/zap"
)

// Login resolves the named user against the service, creating the account
// on first use, persists it as the session user and opens the session
// channel. A create that loses the race to a concurrent first login falls
// back to fetching the existing account.
func (e *Engine) Login(ctx context.Context, name string) (model.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.User{}, fmt.Errorf("%w: empty user name", model.ErrInvalidArgument)
	}

	u, err := e.remote.FindUserByName(ctx, name)
	if errors.Is(err, model.ErrNotFound) {
		u, err = e.remote.CreateUser(ctx, name)
		if errors.Is(err, model.ErrConflict) {
			u, err = e.remote.FindUserByName(ctx, name)
		}
	}
	if err != nil {
		return model.User{}, fmt.Errorf("login %q: %w", name, err)
	}

	if err := e.durable.SaveLocalUser(*u); err != nil {
		return model.User{}, fmt.Errorf("persist session user: %w", err)
	}
	if err := e.apply(ctx, func() { e.store.SetLocalUser(*u) }); err != nil {
		return model.User{}, err
	}
	if err := e.channel.Connect(ctx, u.ID); err != nil {
		return model.User{}, err
	}
	return *u, nil
}

// Initialize restores a previously logged-in session: reconnects as the
// saved user, loads the directory, rejoins group rooms and reopens the
// last active conversation. Returns ErrNotFound when no session is saved.
func (e *Engine) Initialize(ctx context.Context) error {
	saved, err := e.durable.LoadLocalUser()
	if err != nil {
		return fmt.Errorf("load session user: %w", err)
	}
	if saved == nil {
		return fmt.Errorf("%w: no saved session", model.ErrNotFound)
	}
	if err := e.apply(ctx, func() { e.store.SetLocalUser(*saved) }); err != nil {
		return err
	}
	if err := e.channel.Connect(ctx, saved.ID); err != nil {
		return err
	}

	var (
		wg        gosync.WaitGroup
		users     []model.User
		groups    []model.Group
		usersErr  error
		groupsErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		users, usersErr = e.remote.ListUsers(ctx, 1, directoryPageSize)
	}()
	go func() {
		defer wg.Done()
		groups, groupsErr = e.remote.ListGroups(ctx)
	}()
	wg.Wait()
	if usersErr != nil {
		return fmt.Errorf("fetch users: %w", usersErr)
	}
	if groupsErr != nil {
		return fmt.Errorf("fetch groups: %w", groupsErr)
	}

	if err := e.apply(ctx, func() {
		for _, u := range users {
			e.store.UpsertUser(u)
		}
		for _, g := range groups {
			e.store.UpsertGroup(g)
		}
		e.bus.PublishKind(bus.KindRosterChanged, nil)
	}); err != nil {
		return err
	}

	for _, g := range groups {
		if !g.HasMember(saved.ID) {
			continue
		}
		if err := e.channel.Emit(ctx, transport.EventJoinGroup, g.ID); err != nil {
			e.logger.Warn("join group room failed",
				zap.String("group_id", g.ID), zap.Error(err))
		}
	}

	conv, err := e.durable.LoadActiveConversation()
	if err != nil {
		return fmt.Errorf("load active conversation: %w", err)
	}
	if conv != nil {
		if err := e.SetCurrentChat(ctx, *conv); err != nil {
			e.logger.Warn("restore conversation failed",
				zap.String("key", string(conv.Key())), zap.Error(err))
		}
	}

	e.bus.PublishKind(bus.KindSessionRestored, saved.ID)
	return nil
}

// Logout closes the session channel and discards all local session state,
// durable and in-memory.
func (e *Engine) Logout(ctx context.Context) error {
	if err := e.channel.Disconnect(); err != nil {
		e.logger.Warn("disconnect on logout", zap.Error(err))
	}
	if err := e.durable.Clear(); err != nil {
		return fmt.Errorf("clear durable state: %w", err)
	}
	if err := e.apply(ctx, func() { e.store.Clear() }); err != nil {
		return err
	}
	e.bus.PublishKind(bus.KindSessionLoggedOut, nil)
	return nil
}

// ensureConnected verifies the session channel is usable, making one
// connect attempt for the session user before giving up.
func (e *Engine) ensureConnected(ctx context.Context) error {
	if e.channel.State() == transport.Connected {
		return nil
	}
	local, ok := e.store.LocalUser()
	if !ok {
		return fmt.Errorf("%w: no session user", model.ErrTransportUnavailable)
	}
	if err := e.channel.Connect(ctx, local.ID); err != nil {
		return err
	}
	if e.channel.State() != transport.Connected {
		return fmt.Errorf("%w: session channel down", model.ErrTransportUnavailable)
	}
	return nil
}
