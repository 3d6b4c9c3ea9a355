package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const globalStatusID = "global_status"

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps every document write atomic with respect to the others.
	db.SetMaxOpenConns(1)
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    -- seq keeps first-seen order; an INTEGER PRIMARY KEY id would sort by id.
    CREATE TABLE IF NOT EXISTS users (
        seq INTEGER PRIMARY KEY AUTOINCREMENT,
        id INTEGER NOT NULL UNIQUE,
        username TEXT NOT NULL DEFAULT '',
        first_name TEXT NOT NULL DEFAULT '',
        last_seen DATETIME NOT NULL
    );

    CREATE TABLE IF NOT EXISTS blocked_users (
        id INTEGER PRIMARY KEY,
        blocked BOOLEAN NOT NULL DEFAULT TRUE
    );

    CREATE TABLE IF NOT EXISTS active_chats (
        id INTEGER PRIMARY KEY,
        active BOOLEAN NOT NULL DEFAULT TRUE
    );

    CREATE TABLE IF NOT EXISTS chat_history (
        chat_id INTEGER PRIMARY KEY,
        history_json TEXT NOT NULL, -- JSON array of turns
        updated_at DATETIME NOT NULL
    );

    CREATE TABLE IF NOT EXISTS prompts (
        name TEXT PRIMARY KEY,
        prompt TEXT NOT NULL
    );

    CREATE TABLE IF NOT EXISTS bot_status (
        id TEXT PRIMARY KEY,
        is_on BOOLEAN NOT NULL
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

// User methods
func (s *SQLiteStore) UpsertUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO users (id, username, first_name, last_seen) VALUES (?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET username = excluded.username, first_name = excluded.first_name, last_seen = excluded.last_seen`,
		user.ID, user.Username, user.FirstName, user.LastSeen)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetUser(ctx context.Context, id int64) (*User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, "SELECT id, username, first_name, last_seen FROM users WHERE id = ?", id).
		Scan(&user.ID, &user.Username, &user.FirstName, &user.LastSeen)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

// ListUserIDs returns user ids in the order they were first seen.
func (s *SQLiteStore) ListUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM users ORDER BY seq ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query user ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Block list methods
func (s *SQLiteStore) BlockUser(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "INSERT INTO blocked_users (id, blocked) VALUES (?, TRUE) ON CONFLICT(id) DO UPDATE SET blocked = TRUE", id)
	if err != nil {
		return fmt.Errorf("failed to block user: %w", err)
	}
	return nil
}

// UnblockUser reports whether the user was on the block list.
func (s *SQLiteStore) UnblockUser(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM blocked_users WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to unblock user: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

func (s *SQLiteStore) IsBlocked(ctx context.Context, id int64) (bool, error) {
	var blocked bool
	err := s.db.QueryRowContext(ctx, "SELECT blocked FROM blocked_users WHERE id = ?", id).Scan(&blocked)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("failed to query block list: %w", err)
	}
	return blocked, nil
}

// Active chat methods
func (s *SQLiteStore) AddActiveChat(ctx context.Context, chatID int64) error {
	_, err := s.db.ExecContext(ctx, "INSERT INTO active_chats (id, active) VALUES (?, TRUE) ON CONFLICT(id) DO UPDATE SET active = TRUE", chatID)
	if err != nil {
		return fmt.Errorf("failed to add active chat: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RemoveActiveChat(ctx context.Context, chatID int64) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM active_chats WHERE id = ?", chatID); err != nil {
		return fmt.Errorf("failed to remove active chat: %w", err)
	}
	return nil
}

// History methods
func (s *SQLiteStore) GetHistory(ctx context.Context, chatID int64) ([]Turn, error) {
	var historyJSON string
	err := s.db.QueryRowContext(ctx, "SELECT history_json FROM chat_history WHERE chat_id = ?", chatID).Scan(&historyJSON)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // No history yet
		}
		return nil, fmt.Errorf("failed to query history: %w", err)
	}

	var turns []Turn
	if err := json.Unmarshal([]byte(historyJSON), &turns); err != nil {
		return nil, fmt.Errorf("failed to unmarshal history for chat %d: %w", chatID, err)
	}
	return turns, nil
}

// SaveHistory replaces the stored history of a chat with turns as given.
func (s *SQLiteStore) SaveHistory(ctx context.Context, chatID int64, turns []Turn) error {
	if turns == nil {
		turns = []Turn{}
	}
	historyBytes, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
        INSERT INTO chat_history (chat_id, history_json, updated_at) VALUES (?, ?, ?)
        ON CONFLICT(chat_id) DO UPDATE SET history_json = excluded.history_json, updated_at = excluded.updated_at`,
		chatID, string(historyBytes), time.Now())
	if err != nil {
		return fmt.Errorf("failed to save history: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteHistory(ctx context.Context, chatID int64) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM chat_history WHERE chat_id = ?", chatID); err != nil {
		return fmt.Errorf("failed to delete history: %w", err)
	}
	return nil
}

// Prompt methods
func (s *SQLiteStore) GetPrompt(ctx context.Context, name string) (*Prompt, error) {
	var p Prompt
	err := s.db.QueryRowContext(ctx, "SELECT name, prompt FROM prompts WHERE name = ?", name).Scan(&p.Name, &p.Prompt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to query prompt: %w", err)
	}
	return &p, nil
}

func (s *SQLiteStore) SavePrompt(ctx context.Context, name, prompt string) error {
	_, err := s.db.ExecContext(ctx, "INSERT INTO prompts (name, prompt) VALUES (?, ?) ON CONFLICT(name) DO UPDATE SET prompt = excluded.prompt", name, prompt)
	if err != nil {
		return fmt.Errorf("failed to save prompt: %w", err)
	}
	return nil
}

// DeletePrompt reports whether a prompt with that name existed.
func (s *SQLiteStore) DeletePrompt(ctx context.Context, name string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM prompts WHERE name = ?", name)
	if err != nil {
		return false, fmt.Errorf("failed to delete prompt: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

func (s *SQLiteStore) ListPrompts(ctx context.Context) ([]Prompt, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name, prompt FROM prompts ORDER BY name ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query prompts: %w", err)
	}
	defer rows.Close()

	var prompts []Prompt
	for rows.Next() {
		var p Prompt
		if err := rows.Scan(&p.Name, &p.Prompt); err != nil {
			return nil, fmt.Errorf("failed to scan prompt row: %w", err)
		}
		prompts = append(prompts, p)
	}
	return prompts, rows.Err()
}

// Bot status methods

// GetBotStatus returns nil when the flag has never been set.
func (s *SQLiteStore) GetBotStatus(ctx context.Context) (*bool, error) {
	var isOn bool
	err := s.db.QueryRowContext(ctx, "SELECT is_on FROM bot_status WHERE id = ?", globalStatusID).Scan(&isOn)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query bot status: %w", err)
	}
	return &isOn, nil
}

func (s *SQLiteStore) SetBotStatus(ctx context.Context, isOn bool) error {
	_, err := s.db.ExecContext(ctx, "INSERT INTO bot_status (id, is_on) VALUES (?, ?) ON CONFLICT(id) DO UPDATE SET is_on = excluded.is_on", globalStatusID, isOn)
	if err != nil {
		return fmt.Errorf("failed to set bot status: %w", err)
	}
	return nil
}

// Stats counts the users, blocked users and active chats.
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	counts := []struct {
		table string
		dest  *int
	}{
		{"users", &stats.TotalUsers},
		{"blocked_users", &stats.TotalBlocked},
		{"active_chats", &stats.TotalChats},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+c.table).Scan(c.dest); err != nil {
			return Stats{}, fmt.Errorf("failed to count %s: %w", c.table, err)
		}
	}
	return stats, nil
}
