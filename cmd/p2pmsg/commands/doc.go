// Package commands defines the p2pmsg CLI and wires the app for each
// subcommand (spec §6 "Public API exposed to UI/driver").
//
// Commands
//
//   - init              Create a new vault and identity
//   - open               Unlock the vault and print the local identity fingerprint
//   - fingerprint        Print the local identity fingerprint
//   - rotate-passphrase  Re-encrypt the vault under a new passphrase
//   - history            Print the message log for a peer
//   - listen              Accept one peer connection and start a session
//   - dial                Connect to a peer and start a session
//
// listen and dial drop into an interactive session once the handshake
// completes: typed lines are sent as text, and /send, /sendfile, /verify,
// /disconnect and /quit drive the rest of the public API documented in
// spec.md §6. There is no daemon a separate process could attach to
// (headless daemon mode is an explicit non-goal), so send/sendfile/verify
// live inside the session rather than as their own top-level commands.
package commands
