// Package diff computes the minimal ChangeSet between two consecutive
// snapshots of the same line. Diffing is a pure function of its two inputs;
// the hub owns the "previous snapshot" cache.
package diff
