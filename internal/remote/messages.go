package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	"github.com/pedrogbi/palaver/internal/model"
)

func pageQuery(skip, limit int) map[string]string {
	return map[string]string{
		"skip":  strconv.Itoa(skip),
		"limit": strconv.Itoa(limit),
	}
}

// DirectMessages fetches one page of the direct history between two users,
// oldest first within the page.
func (c *Client) DirectMessages(ctx context.Context, localID, otherID string, skip, limit int) ([]model.Message, error) {
	path := "/messages/direct/" + url.PathEscape(localID) + "/" + url.PathEscape(otherID)
	data, err := c.doRequest(ctx, http.MethodGet, path, nil, pageQuery(skip, limit))
	if err != nil {
		return nil, err
	}
	var msgs []model.Message
	if err := decodeList(data, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// GroupMessages fetches one page of a group's history.
func (c *Client) GroupMessages(ctx context.Context, groupID string, skip, limit int) ([]model.Message, error) {
	path := "/messages/group/" + url.PathEscape(groupID)
	data, err := c.doRequest(ctx, http.MethodGet, path, nil, pageQuery(skip, limit))
	if err != nil {
		return nil, err
	}
	var msgs []model.Message
	if err := decodeList(data, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// UpdateMessage edits a message's content. Returns the server's updated
// representation when the service provides one, nil otherwise.
func (c *Client) UpdateMessage(ctx context.Context, messageID, content string) (*model.Message, error) {
	body := map[string]any{"content": content, "edited": true}
	data, err := c.doRequest(ctx, http.MethodPut, "/messages/"+url.PathEscape(messageID), body, nil)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	var m model.Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	if m.ID == "" {
		return nil, nil
	}
	return &m, nil
}

// DeleteMessage deletes a message by id.
func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	_, err := c.doRequest(ctx, http.MethodDelete, "/messages/"+url.PathEscape(messageID), nil, nil)
	return err
}

// UploadInput describes an attachment upload.
type UploadInput struct {
	SenderID    string
	ReceiverID  string
	Content     string
	Filename    string
	ContentType string
	File        io.Reader
}

// uploadResponse is the service's stored-file descriptor.
type uploadResponse struct {
	URL string `json:"url"`
}

// UploadAttachment stores a file and returns the attachment descriptor to
// embed in the outgoing message. The upload transport itself is opaque to
// the engine.
func (c *Client) UploadAttachment(ctx context.Context, in UploadInput) (*model.Attachment, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if in.ReceiverID != "" {
		if err := mw.WriteField("receiver", in.ReceiverID); err != nil {
			return nil, fmt.Errorf("write receiver field: %w", err)
		}
	}
	if err := mw.WriteField("sender", in.SenderID); err != nil {
		return nil, fmt.Errorf("write sender field: %w", err)
	}
	if in.Content != "" {
		if err := mw.WriteField("content", in.Content); err != nil {
			return nil, fmt.Errorf("write content field: %w", err)
		}
	}
	part, err := mw.CreateFormFile("file", in.Filename)
	if err != nil {
		return nil, fmt.Errorf("create file part: %w", err)
	}
	if _, err := io.Copy(part, in.File); err != nil {
		return nil, fmt.Errorf("copy file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("finish multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages/upload", &buf)
	if err != nil {
		return nil, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: upload: %v", model.ErrRemoteFailure, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read upload response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: upload: status %d", model.ErrRemoteFailure, resp.StatusCode)
	}

	var ur uploadResponse
	if err := json.Unmarshal(data, &ur); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	return &model.Attachment{
		URL:      ur.URL,
		Type:     in.ContentType,
		Filename: in.Filename,
	}, nil
}
