// Package ipc implements the per-client session layer of the sensorfw
// daemon: a unix-socket listener, the handshake that binds an accepted
// connection to a control-plane issued session id, and rate-limited sample
// delivery to each session.
//
// Delivery is coalescing, not queuing. Each session may set a minimum
// interval between writes; while the interval has not elapsed, new samples
// overwrite a single pending slot and one deferred flush delivers whatever
// is newest when the floor expires. Under sustained overload a client only
// ever sees the latest sample at its chosen rate, never a backlog.
//
// The wire contract is byte-oriented and minimal: the server writes a
// 16-byte channel marker on accept, the client answers with its 4-byte
// native-endian session id, and from then on every write carries raw
// sample payload with no additional framing.
package ipc
