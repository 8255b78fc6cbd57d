// Package domain defines the plain data types and interfaces shared across
// the core: identity and peer records, session and conversation state, the
// typed error taxonomy, and the store/service contracts other packages
// implement. It contains no behavior of its own.
package domain
