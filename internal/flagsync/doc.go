// Package flagsync is the default consumer of a realtime updates session. It
// reads the JSON envelope carried by each message,
//
//	{"data": "{\"type\":\"refetchConfig\",\"etag\":\"...\",\"lastModified\":1700000000000}"}
//
// and asks a Refetcher for a new config when the type is refetchConfig or
// missing. Hints older than the last refetched change are skipped.
package flagsync
