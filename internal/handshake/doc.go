// Package handshake implements the four-message authenticated key
// agreement of spec §4.D: HELLO / HELLO_ACK / CHALLENGE_RESPONSE / READY,
// driven step by step by whatever reads frames off the wire.
//
// It is grounded on the teacher's internal/protocol/x3dh/x3dh.go for the
// shape of a small, pure, side-effect-free key-agreement routine operating
// on fixed-size keys, and on internal/services/session/service.go for how
// a stateful step-by-step protocol is organized around an explicit state
// field plus a single "feed the next message in" entry point. Unlike
// X3DH's one-shot root-key output, this engine exposes its intermediate
// states so a connection manager can drive it frame by frame and apply a
// deadline.
package handshake
