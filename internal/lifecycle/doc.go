// Package lifecycle closes the realtime stream while the host process is in
// the background and restores it on return. Short pauses shorter than the
// inactivity delay leave the connection untouched.
package lifecycle
