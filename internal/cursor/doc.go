// Package cursor persists the resume state of a stream (last event id and
// reconnection delay) in Pebble so a restarted client can send Last-Event-ID
// and pick up where it left off.
//
// Layout (byte-wise, lexicographically sortable):
//   - cursor/{key} -> JSON Record
package cursor
