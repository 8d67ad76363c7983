package state

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/pedrogbi/palaver/internal/model"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateIdempotent(t *testing.T) {
	db := testDB(t)

	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 1 {
		t.Errorf("version = %d, want 1", result.Version)
	}
}

func TestSaveAndLoadLocalUser(t *testing.T) {
	db := testDB(t)

	seen := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	u := model.User{ID: "65a1b2c3d4e5f6a7b8c9d0e1", Name: "Alice", LastSeen: &seen}
	if err := db.SaveLocalUser(u); err != nil {
		t.Fatal(err)
	}

	got, err := db.LoadLocalUser()
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.ID != u.ID || got.Name != "Alice" {
		t.Errorf("loaded user = %+v, want %+v", got, u)
	}
	if got.LastSeen == nil || !got.LastSeen.Equal(seen) {
		t.Errorf("lastSeen = %v, want %v", got.LastSeen, seen)
	}
}

func TestLoadLocalUserMissing(t *testing.T) {
	db := testDB(t)

	got, err := db.LoadLocalUser()
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("expected nil for missing user, got %+v", got)
	}
}

func TestSaveAndLoadActiveConversation(t *testing.T) {
	db := testDB(t)

	conv := model.Conversation{Kind: model.KindGroup, ID: "g1", Name: "Team"}
	if err := db.SaveActiveConversation(conv); err != nil {
		t.Fatal(err)
	}

	got, err := db.LoadActiveConversation()
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Kind != model.KindGroup || got.ID != "g1" {
		t.Errorf("loaded conversation = %+v, want %+v", got, conv)
	}
	// The routing key must survive the round trip unchanged.
	if got.Key() != conv.Key() {
		t.Errorf("key = %q, want %q", got.Key(), conv.Key())
	}
}

func TestSaveOverwrites(t *testing.T) {
	db := testDB(t)

	if err := db.SaveActiveConversation(model.Conversation{Kind: model.KindDirect, ID: "u2"}); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveActiveConversation(model.Conversation{Kind: model.KindGroup, ID: "g1"}); err != nil {
		t.Fatal(err)
	}

	got, err := db.LoadActiveConversation()
	if err != nil {
		t.Fatal(err)
	}
	if got.Key() != "group:g1" {
		t.Errorf("key = %q, want group:g1 (overwritten)", got.Key())
	}
}

func TestClear(t *testing.T) {
	db := testDB(t)

	_ = db.SaveLocalUser(model.User{ID: "u1", Name: "Alice"})
	_ = db.SaveActiveConversation(model.Conversation{Kind: model.KindDirect, ID: "u2"})

	if err := db.Clear(); err != nil {
		t.Fatal(err)
	}

	if u, _ := db.LoadLocalUser(); u != nil {
		t.Error("user survived Clear")
	}
	if c, _ := db.LoadActiveConversation(); c != nil {
		t.Error("conversation survived Clear")
	}
}
