// Package alerts evaluates maintenance alert rules per post and owns the
// Alert lifecycle (new → acknowledged → resolved). Alert IDs are
// deterministic per (post, rule) so re-evaluating the same condition on a
// later tick dedupes instead of duplicating, and a cleared condition
// auto-resolves the matching open alert.
package alerts
