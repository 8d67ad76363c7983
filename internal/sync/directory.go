package sync

import (
	"context"
	"fmt"
	"strings"

	"github.com/pedrogbi/palaver/internal/bus"
	"github.com/pedrogbi/palaver/internal/model"
	"github.com/pedrogbi/palaver/internal/transport"
	"go.uber.org/zap"
)

// FetchUsers loads one page of the user directory into the store. Pages
// are 1-based; the local user never appears in store reads.
func (e *Engine) FetchUsers(ctx context.Context, page int) ([]model.User, error) {
	if page < 1 {
		page = 1
	}
	users, err := e.remote.ListUsers(ctx, page, directoryPageSize)
	if err != nil {
		return nil, fmt.Errorf("fetch users: %w", err)
	}
	if err := e.apply(ctx, func() {
		for _, u := range users {
			e.store.UpsertUser(u)
		}
		e.bus.PublishKind(bus.KindRosterChanged, nil)
	}); err != nil {
		return nil, err
	}
	return users, nil
}

// FetchGroups refreshes the group directory.
func (e *Engine) FetchGroups(ctx context.Context) ([]model.Group, error) {
	groups, err := e.remote.ListGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch groups: %w", err)
	}
	if err := e.apply(ctx, func() {
		for _, g := range groups {
			e.store.UpsertGroup(g)
		}
		e.bus.PublishKind(bus.KindRosterChanged, nil)
	}); err != nil {
		return nil, err
	}
	return groups, nil
}

// CreateGroup creates a group owned by the session user, records it
// locally and joins its room. The local user is always a member.
func (e *Engine) CreateGroup(ctx context.Context, name string, memberIDs []string) (*model.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: empty group name", model.ErrInvalidArgument)
	}
	local, ok := e.store.LocalUser()
	if !ok {
		return nil, fmt.Errorf("%w: not logged in", model.ErrInvalidArgument)
	}

	members := memberIDs
	found := false
	for _, id := range members {
		if id == local.ID {
			found = true
			break
		}
	}
	if !found {
		members = append(append([]string{}, memberIDs...), local.ID)
	}

	g, err := e.remote.CreateGroup(ctx, name, members, local.ID)
	if err != nil {
		return nil, fmt.Errorf("create group: %w", err)
	}
	if err := e.apply(ctx, func() {
		e.store.ReplaceGroup(*g)
		e.bus.PublishKind(bus.KindRosterChanged, nil)
	}); err != nil {
		return nil, err
	}
	if err := e.JoinGroup(ctx, g.ID); err != nil {
		e.logger.Warn("join created group failed", zap.String("group_id", g.ID), zap.Error(err))
	}
	return g, nil
}

// AddUserToGroup adds a member and installs the server's updated group.
func (e *Engine) AddUserToGroup(ctx context.Context, groupID, userID string) (*model.Group, error) {
	g, err := e.remote.AddGroupMember(ctx, groupID, userID)
	if err != nil {
		return nil, fmt.Errorf("add group member: %w", err)
	}
	if err := e.apply(ctx, func() {
		e.store.ReplaceGroup(*g)
		e.bus.PublishKind(bus.KindRosterChanged, nil)
	}); err != nil {
		return nil, err
	}
	return g, nil
}

// RemoveUserFromGroup removes a member and installs the server's updated
// group. The server copy replaces the local one outright so the removal
// cannot be undone by a stale merge.
func (e *Engine) RemoveUserFromGroup(ctx context.Context, groupID, userID string) (*model.Group, error) {
	g, err := e.remote.RemoveGroupMember(ctx, groupID, userID)
	if err != nil {
		return nil, fmt.Errorf("remove group member: %w", err)
	}
	if err := e.apply(ctx, func() {
		e.store.ReplaceGroup(*g)
		e.bus.PublishKind(bus.KindRosterChanged, nil)
	}); err != nil {
		return nil, err
	}
	return g, nil
}

// JoinGroup enters a group's event room on the session channel.
func (e *Engine) JoinGroup(ctx context.Context, groupID string) error {
	if groupID == "" {
		return fmt.Errorf("%w: empty group id", model.ErrInvalidArgument)
	}
	if err := e.ensureConnected(ctx); err != nil {
		return err
	}
	return e.channel.Emit(ctx, transport.EventJoinGroup, groupID)
}

// LeaveGroup exits a group's event room. Membership is unaffected; the
// client just stops receiving the room's events.
func (e *Engine) LeaveGroup(ctx context.Context, groupID string) error {
	if groupID == "" {
		return fmt.Errorf("%w: empty group id", model.ErrInvalidArgument)
	}
	if err := e.ensureConnected(ctx); err != nil {
		return err
	}
	return e.channel.Emit(ctx, transport.EventLeaveGroup, groupID)
}
