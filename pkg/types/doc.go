// Package types defines the shared domain and wire types used by both the
// server and the dashboard stream client. Every pushed event and every client
// request has an explicit tagged shape here — there is no untyped payload
// traversal anywhere in the system.
package types
