// Package connection owns the TCP lifecycle of spec §4.F: a Listen and a
// Dial mode, each driving a handshake.Engine to Established and then a
// record.Session for the life of the socket, via three small cooperating
// goroutines per connection (reader, writer, heartbeat timer).
//
// The accept-loop/per-connection-goroutine shape and the handshake
// deadline via conn.SetDeadline are grounded on
// _examples/0x5844-goMsg/main.go's acceptConnections/managePeer pair; the
// exponential-backoff jitter in backoff.go follows the same file's
// math/rand-based jitter helper, generalized from padding-traffic timing
// to reconnect timing. The single-active-connection bookkeeping and
// structured logging follow the teacher's internal/services package
// idiom (constructor-injected dependencies, typed domain errors).
package connection
