package botdb

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the thread-safe, write-through backing store for every
// bot's Record plus the single shared GlobalRecord. Grounded on the
// teacher's internal/store/db.go (sqlite3 with WAL + busy timeout,
// CREATE TABLE IF NOT EXISTS migrations); generalized here to hold an
// opaque JSON blob per account instead of one column per config field,
// since the exact on-disk shape is explicitly out of scope (spec §1)
// and only the atomic-replace contract (spec §3/§5) is load-bearing.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// Open creates or opens the sqlite-backed store at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("botdb: mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("botdb: open: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("botdb: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	const ddl = `
	CREATE TABLE IF NOT EXISTS bot_records (
		account_id INTEGER PRIMARY KEY,
		data       BLOB NOT NULL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS global_record (
		id      INTEGER PRIMARY KEY CHECK (id = 1),
		cell_id INTEGER NOT NULL DEFAULT 0
	);
	`
	_, err := s.db.Exec(ddl)
	return err
}

func (s *Store) Close() error { return s.db.Close() }

// Load returns the persisted Record for accountID, or a fresh empty
// Record if none exists yet.
func (s *Store) Load(accountID int64) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var data []byte
	err := s.db.QueryRow(`SELECT data FROM bot_records WHERE account_id = ?`, accountID).Scan(&data)
	if err == sql.ErrNoRows {
		return &Record{AccountID: accountID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("botdb: load: %w", err)
	}
	rec := &Record{}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("botdb: decode record %d: %w", accountID, err)
	}
	return rec, nil
}

// Save atomically replaces the persisted Record. A single-row UPDATE
// (or INSERT via UPSERT) in sqlite never exposes a torn write to a
// concurrent reader, satisfying spec §3/§5's "atomic replace-on-disk"
// requirement without needing a temp-file-and-rename dance.
func (s *Store) Save(rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("botdb: encode record %d: %w", rec.AccountID, err)
	}
	_, err = s.db.Exec(`
		INSERT INTO bot_records (account_id, data, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(account_id) DO UPDATE SET data = excluded.data, updated_at = CURRENT_TIMESTAMP
	`, rec.AccountID, data)
	if err != nil {
		return fmt.Errorf("botdb: save record %d: %w", rec.AccountID, err)
	}
	return nil
}

// Delete removes a bot's persisted record. The Supervisor does not call
// it; a bot's record stays in place when the bot stops.
func (s *Store) Delete(accountID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`DELETE FROM bot_records WHERE account_id = ?`, accountID)
	return err
}

// LoadGlobal returns the shared GlobalRecord (cell-id hint).
func (s *Store) LoadGlobal() (*GlobalRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cellID int32
	err := s.db.QueryRow(`SELECT cell_id FROM global_record WHERE id = 1`).Scan(&cellID)
	if err == sql.ErrNoRows {
		return &GlobalRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("botdb: load global: %w", err)
	}
	return &GlobalRecord{CellID: cellID}, nil
}

// SaveGlobal persists the GlobalRecord. Concurrent onLoggedOn callbacks
// from different bots may race here; spec §5 calls this "last-writer-
// wins with an atomic replace", which a single-row UPSERT gives for
// free.
func (s *Store) SaveGlobal(rec *GlobalRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO global_record (id, cell_id) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET cell_id = excluded.cell_id
	`, rec.CellID)
	return err
}
