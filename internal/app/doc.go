// Package app wires the CLI's dependency graph: the vault, the message
// log, the event bus and the connection manager, built from a home
// directory and a config the way the teacher's internal/app/wire.go
// builds its stores and services from a Config before any subcommand
// runs.
package app
