// Package state aggregates device, project, and client information into
// immutable SystemState snapshots.
//
// The aggregator is the single source of truth for "what is the system
// doing right now". Producers push changes in (device events, project
// loads, client connections); consumers either poll State() or subscribe
// for a copy after every change. Snapshots never share memory with the
// aggregator, so readers cannot race writers.
package state
