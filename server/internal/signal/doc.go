// Package signal supplies the latest sensor readings and production counters
// for every post. Feeds poll floor gateways (Prometheus text exposition) or
// simulate a floor; the Source aggregates their samples into bounded rolling
// histories. The Source is an explicitly constructed, injected component —
// there is no package-level state.
package signal
