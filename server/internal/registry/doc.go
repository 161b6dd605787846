// Package registry loads the plant registry: production lines, the posts
// (workstations) on them, per-post sensor specifications, and maintenance
// schedule records. The registry is read-only after load — the monitoring
// core never mutates business entities.
package registry
