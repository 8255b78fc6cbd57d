package main

import (
	"errors"
	"fmt"
	"os"

	"p2pmsg/cmd/p2pmsg/commands"
	"p2pmsg/internal/domain"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps a typed domain error to the exit codes documented in
// spec.md §6: 0 ok, 2 bad arguments, 10 vault, 20 network, 30 protocol,
// 40 storage.
func exitCode(err error) int {
	var vaultErr *domain.VaultError
	var netErr *domain.NetworkError
	var protoErr *domain.ProtocolError
	var storageErr *domain.StorageError
	var userErr *domain.UserError

	switch {
	case errors.As(err, &vaultErr):
		return 10
	case errors.As(err, &netErr):
		return 20
	case errors.As(err, &protoErr):
		return 30
	case errors.As(err, &storageErr):
		return 40
	case errors.As(err, &userErr):
		return 2
	default:
		return 2
	}
}
