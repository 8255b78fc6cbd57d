package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"p2pmsg/internal/crypto"
	"p2pmsg/internal/domain"
)

// EnsureConversation returns the conversation for peer, creating it the
// first time this fingerprint is seen. There is at most one conversation
// per peer.
func (s *Store) EnsureConversation(peer domain.Fingerprint) (domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fp := peer.String()
	var conv domain.Conversation
	var createdAt int64
	err := s.db.QueryRow(`SELECT id, created_at FROM conversations WHERE peer_fingerprint = ?`, fp).Scan(&conv.ID, &createdAt)
	if err == nil {
		conv.PeerFingerprint = peer
		conv.CreatedAt = unixToTime(createdAt)
		return conv, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Conversation{}, &domain.StorageError{Kind: domain.StorageIOError, Err: err}
	}

	conv = domain.Conversation{ID: uuid.NewString(), PeerFingerprint: peer, CreatedAt: unixToTime(nowUnix())}
	_, err = s.db.Exec(`INSERT INTO conversations (id, peer_fingerprint, created_at) VALUES (?, ?, ?)`,
		conv.ID, fp, conv.CreatedAt.Unix())
	if err != nil {
		return domain.Conversation{}, &domain.StorageError{Kind: domain.StorageIOError, Err: err}
	}
	return conv, nil
}

// AppendMessage seals msg.Plaintext under the log key and inserts it,
// idempotently on (conversation_id, direction, timestamp, nonce).
func (s *Store) AppendMessage(msg domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	nonce, err := crypto.Random(12)
	if err != nil {
		return &domain.StorageError{Kind: domain.StorageIOError, Err: err}
	}
	aad := []byte(msg.ConversationID)
	ct, err := crypto.Seal(s.logKey, nonce, aad, msg.Plaintext)
	if err != nil {
		return &domain.StorageError{Kind: domain.StorageIOError, Err: err}
	}

	id := msg.ID
	if id == "" {
		id = uuid.NewString()
	}

	_, err = s.db.Exec(`INSERT OR IGNORE INTO messages
		(id, conversation_id, direction, kind, ciphertext, nonce, timestamp, file_name, file_size)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, msg.ConversationID, int(msg.Direction), int(msg.Kind), ct, nonce, msg.Timestamp.UnixNano(), msg.FileName, msg.FileSize)
	if err != nil {
		return &domain.StorageError{Kind: domain.StorageIOError, Err: err}
	}
	return nil
}

// History returns up to limit messages for peer's conversation, oldest
// first, skipping the first offset rows (most recent rows are lowest
// offset, matching the teacher's descending-then-reverse pattern).
func (s *Store) History(peer domain.Fingerprint, limit, offset int) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var convID string
	err := s.db.QueryRow(`SELECT id FROM conversations WHERE peer_fingerprint = ?`, peer.String()).Scan(&convID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &domain.StorageError{Kind: domain.StorageIOError, Err: err}
	}

	rows, err := s.db.Query(`SELECT id, direction, kind, ciphertext, nonce, timestamp, file_name, file_size
		FROM messages WHERE conversation_id = ? ORDER BY timestamp DESC LIMIT ? OFFSET ?`,
		convID, limit, offset)
	if err != nil {
		return nil, &domain.StorageError{Kind: domain.StorageIOError, Err: err}
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		var m domain.Message
		var dir, kind int
		var ct, nonce []byte
		var tsNano int64
		if err := rows.Scan(&m.ID, &dir, &kind, &ct, &nonce, &tsNano, &m.FileName, &m.FileSize); err != nil {
			return nil, &domain.StorageError{Kind: domain.StorageIOError, Err: err}
		}
		pt, err := crypto.Open(s.logKey, nonce, []byte(convID), ct)
		if err != nil {
			return nil, &domain.StorageError{Kind: domain.StorageCorruptRow, Err: fmt.Errorf("message %s: %w", m.ID, err)}
		}
		m.ConversationID = convID
		m.Direction = domain.MessageDirection(dir)
		m.Kind = domain.MessageKind(kind)
		m.Plaintext = pt
		m.Timestamp = unixNanoToTime(tsNano)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StorageError{Kind: domain.StorageIOError, Err: err}
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
