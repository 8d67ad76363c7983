package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/pedrogbi/palaver/internal/model"
)

// ListGroups returns all groups visible to the session.
func (c *Client) ListGroups(ctx context.Context) ([]model.Group, error) {
	data, err := c.doRequest(ctx, http.MethodGet, "/groups", nil, nil)
	if err != nil {
		return nil, err
	}
	var groups []model.Group
	if err := decodeList(data, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// CreateGroup creates a group with the given member ids. The creator is
// included server-side.
func (c *Client) CreateGroup(ctx context.Context, name string, memberIDs []string, createdBy string) (*model.Group, error) {
	body := map[string]any{
		"name":      name,
		"members":   memberIDs,
		"createdBy": createdBy,
	}
	data, err := c.doRequest(ctx, http.MethodPost, "/groups", body, nil)
	if err != nil {
		return nil, err
	}
	var g model.Group
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("decode group: %w", err)
	}
	return &g, nil
}

// AddGroupMember adds a user to a group and returns the updated group.
// The server treats re-adding an existing member as a no-op.
func (c *Client) AddGroupMember(ctx context.Context, groupID, userID string) (*model.Group, error) {
	path := "/groups/" + url.PathEscape(groupID) + "/members/" + url.PathEscape(userID)
	data, err := c.doRequest(ctx, http.MethodPost, path, nil, nil)
	if err != nil {
		return nil, err
	}
	var g model.Group
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("decode group: %w", err)
	}
	return &g, nil
}

// RemoveGroupMember removes a user from a group and returns the updated
// group.
func (c *Client) RemoveGroupMember(ctx context.Context, groupID, userID string) (*model.Group, error) {
	path := "/groups/" + url.PathEscape(groupID) + "/members/" + url.PathEscape(userID)
	data, err := c.doRequest(ctx, http.MethodDelete, path, nil, nil)
	if err != nil {
		return nil, err
	}
	var g model.Group
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("decode group: %w", err)
	}
	return &g, nil
}
