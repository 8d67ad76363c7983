package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/pedrogbi/palaver/internal/model"
)

// FindUserByName looks up a user by exact name. Returns ErrNotFound if no
// such user exists.
func (c *Client) FindUserByName(ctx context.Context, name string) (*model.User, error) {
	data, err := c.doRequest(ctx, http.MethodGet, "/users/name/"+url.PathEscape(name), nil, nil)
	if err != nil {
		return nil, err
	}
	var u model.User
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	return &u, nil
}

// CreateUser registers a new user. Returns ErrConflict if the name is
// already taken.
func (c *Client) CreateUser(ctx context.Context, name string) (*model.User, error) {
	data, err := c.doRequest(ctx, http.MethodPost, "/users", map[string]string{"name": name}, nil)
	if err != nil {
		return nil, err
	}
	var u model.User
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	return &u, nil
}

// ListUsers returns one page of the user directory.
func (c *Client) ListUsers(ctx context.Context, page, limit int) ([]model.User, error) {
	data, err := c.doRequest(ctx, http.MethodGet, "/users/v1", nil, map[string]string{
		"page":  strconv.Itoa(page),
		"limit": strconv.Itoa(limit),
	})
	if err != nil {
		return nil, err
	}
	var users []model.User
	if err := decodeList(data, &users); err != nil {
		return nil, err
	}
	return users, nil
}
