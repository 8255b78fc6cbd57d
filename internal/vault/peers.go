package vault

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"p2pmsg/internal/domain"
)

const peersFilename = "peers.json"

// peerRow is the on-disk JSON shape for one pinned peer.
type peerRow struct {
	Fingerprint string    `json:"fingerprint"`
	IdentityPub [32]byte  `json:"identity_pub"`
	DisplayName string    `json:"display_name"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	Verified    bool      `json:"verified"`
	Trust       int       `json:"trust"`
}

func (v *Vault) peersPath() string { return filepath.Join(v.dir, peersFilename) }

// LoadPeer returns the pinned record for fp, if any. Trust-on-first-use
// pinning (spec §4.D) consults this before accepting a handshake.
func (v *Vault) LoadPeer(fp domain.Fingerprint) (domain.PeerRecord, bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	book, err := v.loadPeerBook()
	if err != nil {
		return domain.PeerRecord{}, false, err
	}
	row, ok := book[fp.String()]
	if !ok {
		return domain.PeerRecord{}, false, nil
	}
	return peerRowToRecord(fp, row), true, nil
}

// SavePeer upserts rec, keyed by its fingerprint. First contact creates
// the row; a later call replaces the stored row with rec as a whole, with
// no merging of fields.
func (v *Vault) SavePeer(rec domain.PeerRecord) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	book, err := v.loadPeerBook()
	if err != nil {
		return err
	}
	book[rec.Fingerprint.String()] = peerRow{
		Fingerprint: rec.Fingerprint.String(),
		IdentityPub: rec.IdentityPub,
		DisplayName: rec.DisplayName,
		FirstSeen:   rec.FirstSeen,
		LastSeen:    rec.LastSeen,
		Verified:    rec.Verified,
		Trust:       int(rec.Trust),
	}
	return v.savePeerBook(book)
}

// SetVerified flips the verified flag after the user has compared
// fingerprints out-of-band (spec §3, Peer record).
func (v *Vault) SetVerified(fp domain.Fingerprint, verified bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	book, err := v.loadPeerBook()
	if err != nil {
		return err
	}
	row, ok := book[fp.String()]
	if !ok {
		return &domain.VaultError{Kind: domain.VaultNotFound, Err: errors.New("unknown peer")}
	}
	row.Verified = verified
	if verified {
		row.Trust = int(domain.TrustVerified)
	}
	book[fp.String()] = row
	return v.savePeerBook(book)
}

func peerRowToRecord(fp domain.Fingerprint, row peerRow) domain.PeerRecord {
	return domain.PeerRecord{
		Fingerprint: fp,
		IdentityPub: row.IdentityPub,
		DisplayName: row.DisplayName,
		FirstSeen:   row.FirstSeen,
		LastSeen:    row.LastSeen,
		Verified:    row.Verified,
		Trust:       domain.TrustLevel(row.Trust),
	}
}

func (v *Vault) loadPeerBook() (map[string]peerRow, error) {
	b, err := os.ReadFile(v.peersPath())
	if errors.Is(err, os.ErrNotExist) {
		return map[string]peerRow{}, nil
	}
	if err != nil {
		return nil, &domain.VaultError{Kind: domain.VaultCorrupt, Err: err}
	}
	var rows map[string]peerRow
	if err := json.Unmarshal(b, &rows); err != nil {
		return nil, &domain.VaultError{Kind: domain.VaultCorrupt, Err: err}
	}
	return rows, nil
}

func (v *Vault) savePeerBook(rows map[string]peerRow) error {
	b, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return &domain.VaultError{Kind: domain.VaultCorrupt, Err: err}
	}
	return atomicWriteFile(v.peersPath(), b, 0o600)
}

var _ domain.VaultStore = (*Vault)(nil)
