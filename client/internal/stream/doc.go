// Package stream is the dashboard-side connection manager for the hub. It
// maintains one WebSocket connection with bounded-ladder reconnection,
// re-issues subscriptions after a reconnect, and surfaces pushed events
// through typed callbacks.
package stream
