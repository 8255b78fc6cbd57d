package store

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"p2pmsg/internal/crypto"
	"p2pmsg/internal/domain"
)

const logKeyInfo = "msg-log"
const logKeySalt = "log-salt-v1"

// Store is the transactional message log described by spec §4.G: SQLite
// under database/sql, WAL journaling, and a per-vault-open log key that
// seals every plaintext row. It implements domain.MessageStore.
type Store struct {
	db     *sql.DB
	filesDir string
	logKey []byte

	mu sync.Mutex
}

// Open opens (creating if absent) the SQLite database at dbPath, enables
// WAL journaling and a 10s busy-timeout, runs the schema migration, and
// derives the log key from identityPriv. identityPriv's bytes are used
// only for this derivation and the caller's copy is unaffected; Store
// keeps no reference to it after Open returns.
func Open(dbPath, filesDir string, identityPriv domain.SigningPrivate) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, &domain.StorageError{Kind: domain.StorageIOError, Err: err}
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=10000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, &domain.StorageError{Kind: domain.StorageIOError, Err: fmt.Errorf("%s: %w", p, err)}
		}
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, &domain.StorageError{Kind: domain.StorageIOError, Err: err}
	}

	privCopy := append([]byte(nil), identityPriv.Slice()...)
	logKey, err := crypto.HKDF(privCopy, []byte(logKeySalt), []byte(logKeyInfo), 32)
	crypto.Zero(privCopy)
	if err != nil {
		db.Close()
		return nil, &domain.StorageError{Kind: domain.StorageIOError, Err: err}
	}

	return &Store{db: db, filesDir: filesDir, logKey: logKey}, nil
}

func migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			peer_fingerprint TEXT NOT NULL UNIQUE,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(id),
			direction INTEGER NOT NULL,
			kind INTEGER NOT NULL,
			ciphertext BLOB NOT NULL,
			nonce BLOB NOT NULL,
			timestamp INTEGER NOT NULL,
			file_name TEXT NOT NULL DEFAULT '',
			file_size INTEGER NOT NULL DEFAULT 0,
			UNIQUE(conversation_id, direction, timestamp, nonce)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, timestamp)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("migrate: %s: %w", s, err)
		}
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	crypto.Zero(s.logKey)
	return s.db.Close()
}

func nowUnix() int64 { return time.Now().Unix() }

func unixToTime(sec int64) time.Time      { return time.Unix(sec, 0) }
func unixNanoToTime(nsec int64) time.Time { return time.Unix(0, nsec) }
