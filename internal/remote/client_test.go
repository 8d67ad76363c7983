package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pedrogbi/palaver/internal/model"
)

func TestFindUserByName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/name/alice" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"_id":"65a1b2c3d4e5f6a7b8c9d0e1","name":"alice"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	u, err := c.FindUserByName(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if u.ID != "65a1b2c3d4e5f6a7b8c9d0e1" || u.Name != "alice" {
		t.Errorf("user = %+v", u)
	}
}

func TestFindUserByNameNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.FindUserByName(context.Background(), "ghost")
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestCreateUserConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.CreateUser(context.Background(), "alice")
	if !errors.Is(err, model.ErrConflict) {
		t.Errorf("error = %v, want ErrConflict", err)
	}
}

func TestListUsersEnvelopeShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("page") != "1" || q.Get("limit") != "10" {
			t.Errorf("query = %v", q)
		}
		_, _ = w.Write([]byte(`{"data":[{"_id":"u1","name":"Alice"},{"_id":"u2","name":"Bob"}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	users, err := c.ListUsers(context.Background(), 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 2 || users[0].Name != "Alice" {
		t.Errorf("users = %v", users)
	}
}

func TestListGroupsBareArrayShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"_id":"g1","name":"Team","members":[{"_id":"u1","name":"Alice"}],"createdBy":"u1"}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	groups, err := c.ListGroups(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 1 || groups[0].Name != "Team" || len(groups[0].Members) != 1 {
		t.Errorf("groups = %v", groups)
	}
}

func TestDirectMessagesPagination(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages/direct/u1/u2" {
			t.Errorf("path = %q", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("skip") != "20" || q.Get("limit") != "20" {
			t.Errorf("query = %v", q)
		}
		_, _ = w.Write([]byte(`[{"_id":"65a1b2c3d4e5f6a7b8c9d0e1","content":"hi","sender":"u2","receiver":"u1"}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	msgs, err := c.DirectMessages(context.Background(), "u1", "u2", 20, 20)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Sender.ID != "u2" {
		t.Errorf("msgs = %v", msgs)
	}
}

func TestUpdateMessageReturnsServerCopy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", r.Method)
		}
		_, _ = w.Write([]byte(`{"_id":"65a1b2c3d4e5f6a7b8c9d0e1","content":"revised","sender":"u1","receiver":"u2","edited":true}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	m, err := c.UpdateMessage(context.Background(), "65a1b2c3d4e5f6a7b8c9d0e1", "revised")
	if err != nil {
		t.Fatal(err)
	}
	if m == nil || m.Content != "revised" || !m.Edited {
		t.Errorf("message = %+v", m)
	}
}

func TestUpdateMessageEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	m, err := c.UpdateMessage(context.Background(), "65a1b2c3d4e5f6a7b8c9d0e1", "revised")
	if err != nil {
		t.Fatal(err)
	}
	if m != nil {
		t.Errorf("expected nil for empty response, got %+v", m)
	}
}

func TestDeleteMessageRemoteFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	err := c.DeleteMessage(context.Background(), "65a1b2c3d4e5f6a7b8c9d0e1")
	if !errors.Is(err, model.ErrRemoteFailure) {
		t.Errorf("error = %v, want ErrRemoteFailure", err)
	}
}

func TestUploadAttachment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if got := r.FormValue("sender"); got != "u1" {
			t.Errorf("sender = %q", got)
		}
		if got := r.FormValue("receiver"); got != "u2" {
			t.Errorf("receiver = %q", got)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer func() { _ = file.Close() }()
		if header.Filename != "photo.png" {
			t.Errorf("filename = %q", header.Filename)
		}
		_, _ = w.Write([]byte(`{"url":"/uploads/photo.png"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	att, err := c.UploadAttachment(context.Background(), UploadInput{
		SenderID:    "u1",
		ReceiverID:  "u2",
		Filename:    "photo.png",
		ContentType: "image/png",
		File:        strings.NewReader("pngbytes"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if att.URL != "/uploads/photo.png" || att.Type != "image/png" || att.Filename != "photo.png" {
		t.Errorf("attachment = %+v", att)
	}
}
