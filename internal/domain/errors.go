package domain

import "fmt"

// VaultErrorKind enumerates the ways a vault operation can fail.
type VaultErrorKind string

const (
	VaultNotFound      VaultErrorKind = "not_found"
	VaultExists        VaultErrorKind = "exists"
	VaultBadPassphrase VaultErrorKind = "bad_passphrase"
	VaultCorrupt       VaultErrorKind = "corrupt"
)

// VaultError wraps a failure from internal/vault with a stable Kind so
// callers can branch on errors.As without parsing messages.
type VaultError struct {
	Kind VaultErrorKind
	Err  error
}

func (e *VaultError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("vault: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("vault: %s", e.Kind)
}

func (e *VaultError) Unwrap() error { return e.Err }

// NetworkErrorKind enumerates transport-level failures.
type NetworkErrorKind string

const (
	NetworkBindFailed     NetworkErrorKind = "bind_failed"
	NetworkConnectRefused NetworkErrorKind = "connect_refused"
	NetworkTimeout        NetworkErrorKind = "timeout"
	NetworkUnreachable    NetworkErrorKind = "unreachable"
	NetworkIOError        NetworkErrorKind = "io_error"
)

// NetworkError wraps a transport failure.
type NetworkError struct {
	Kind NetworkErrorKind
	Err  error
}

func (e *NetworkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("network: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("network: %s", e.Kind)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ProtocolErrorKind enumerates handshake/record-layer failures. All are
// terminal for the current session per spec §7.
type ProtocolErrorKind string

const (
	ProtocolBadFrame             ProtocolErrorKind = "bad_frame"
	ProtocolBadSignature         ProtocolErrorKind = "bad_signature"
	ProtocolBadChallengeResponse ProtocolErrorKind = "bad_challenge_response"
	ProtocolIdentityMismatch     ProtocolErrorKind = "identity_mismatch"
	ProtocolUnknownVersion       ProtocolErrorKind = "unknown_version"
	ProtocolUnexpectedState      ProtocolErrorKind = "unexpected_state"
	ProtocolReplay               ProtocolErrorKind = "replay"
	ProtocolAuthFail             ProtocolErrorKind = "auth_fail"
)

// ProtocolError wraps a handshake or record-layer violation.
type ProtocolError struct {
	Kind ProtocolErrorKind
	Err  error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("protocol: %s", e.Kind)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// StorageErrorKind enumerates message-log/attachment failures.
type StorageErrorKind string

const (
	StorageIOError    StorageErrorKind = "io_error"
	StorageCorruptRow StorageErrorKind = "corrupt_row"
	StorageBusy       StorageErrorKind = "busy"
)

// StorageError wraps a message-log failure.
type StorageError struct {
	Kind StorageErrorKind
	Err  error
}

func (e *StorageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("storage: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("storage: %s", e.Kind)
}

func (e *StorageError) Unwrap() error { return e.Err }

// ResourceErrorKind enumerates local resource contention failures.
type ResourceErrorKind string

const (
	ResourceBusy      ResourceErrorKind = "busy"
	ResourceQueueFull ResourceErrorKind = "queue_full"
)

// ResourceError wraps a local resource-contention failure, such as a
// second connection attempt while one session is already active.
type ResourceError struct {
	Kind ResourceErrorKind
	Err  error
}

func (e *ResourceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("resource: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("resource: %s", e.Kind)
}

func (e *ResourceError) Unwrap() error { return e.Err }

// UserErrorKind enumerates invalid caller input.
type UserErrorKind string

const (
	UserInvalidAddress  UserErrorKind = "invalid_address"
	UserInvalidPort     UserErrorKind = "invalid_port"
	UserFileTooLarge    UserErrorKind = "file_too_large"
	UserInvalidFilename UserErrorKind = "invalid_filename"
)

// UserError wraps invalid input from a caller; always recoverable.
type UserError struct {
	Kind UserErrorKind
	Err  error
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("user: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("user: %s", e.Kind)
}

func (e *UserError) Unwrap() error { return e.Err }
