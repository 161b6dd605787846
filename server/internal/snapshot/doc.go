// Package snapshot composes one immutable LineSnapshot per tick from the
// signal source, the health engine and the alert engine, and emits incidents
// by rule. The aggregator does not retain snapshots — caching the previous
// one for diffing is the hub's concern.
package snapshot
