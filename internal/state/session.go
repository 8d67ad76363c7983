package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pedrogbi/palaver/internal/model"
)

const (
	keyLocalUser          = "local_user"
	keyActiveConversation = "active_conversation"
)

func (db *DB) setValue(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	_, err = db.Exec(`
		INSERT INTO session_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(data), time.Now().UnixMilli())
	return err
}

// getValue decodes the value for key into out. Returns false if the key is
// absent.
func (db *DB) getValue(key string, out any) (bool, error) {
	var raw string
	err := db.QueryRow(`SELECT value FROM session_state WHERE key = ?`, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// SaveLocalUser persists the logged-in user record.
func (db *DB) SaveLocalUser(u model.User) error {
	return db.setValue(keyLocalUser, u)
}

// LoadLocalUser restores the logged-in user. Returns nil if no user is saved.
func (db *DB) LoadLocalUser() (*model.User, error) {
	var u model.User
	ok, err := db.getValue(keyLocalUser, &u)
	if err != nil || !ok {
		return nil, err
	}
	return &u, nil
}

// SaveActiveConversation persists the active conversation identity
// (kind + id), keeping the routing key stable across restarts.
func (db *DB) SaveActiveConversation(c model.Conversation) error {
	return db.setValue(keyActiveConversation, c)
}

// LoadActiveConversation restores the saved conversation identity.
// Returns nil if none is saved.
func (db *DB) LoadActiveConversation() (*model.Conversation, error) {
	var c model.Conversation
	ok, err := db.getValue(keyActiveConversation, &c)
	if err != nil || !ok {
		return nil, err
	}
	return &c, nil
}

// Clear removes all persisted session state. Used on logout.
func (db *DB) Clear() error {
	_, err := db.Exec(`DELETE FROM session_state`)
	return err
}
