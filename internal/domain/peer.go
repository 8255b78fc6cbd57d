package domain

import "time"

// TrustLevel categorizes how much an operator has vetted a peer's identity.
type TrustLevel int

const (
	TrustUnknown  TrustLevel = iota // seen once, fingerprint pinned, not compared
	TrustPinned                     // pinned across multiple sessions
	TrustVerified                   // fingerprint confirmed out-of-band
)

// PeerRecord is what the vault remembers about a peer identity across
// sessions, populated on first contact and consulted on every subsequent
// one for trust-on-first-use pinning.
type PeerRecord struct {
	Fingerprint Fingerprint
	IdentityPub SigningPublic
	DisplayName string
	FirstSeen   time.Time
	LastSeen    time.Time
	Verified    bool
	Trust       TrustLevel
}

// Role identifies which side of the handshake an endpoint played.
type Role int

const (
	RoleInitiator Role = iota
	RoleResponder
)

func (r Role) String() string {
	if r == RoleInitiator {
		return "initiator"
	}
	return "responder"
}

// Session is the ephemeral per-connection state that exists once the
// handshake has completed. Keys and counters are owned by the record
// layer; this struct is the snapshot exposed to callers that merely need
// to know a session exists.
type Session struct {
	Role               Role
	PeerFingerprint    Fingerprint
	StartedAt          time.Time
	MessagesSinceRekey uint64
}
