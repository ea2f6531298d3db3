// Package project stores and manages playout rundowns.
//
// A project is a grid: ordered events (columns), each holding items that
// name a clip, a target device, and a channel-layer destination. The
// Repository persists the grid in SQLite; the Manager tracks which
// project is active and feeds that into the system state aggregator.
package project
