// Package pebblestore is a thin wrapper around Pebble with an fsync policy,
// point operations, prefix scans and a small metrics hook. It backs the
// cursor store.
//
// Usage:
//
//	db, err := pebblestore.Open(pebblestore.Options{
//	    DataDir: "./data",
//	    Fsync:   pebblestore.FsyncModeInterval,
//	})
//	if err != nil { /* handle */ }
//	defer db.Close()
//
//	_ = db.Set([]byte("cursor/default"), []byte("{}"))
//	v, _ := db.Get([]byte("cursor/default"))
package pebblestore
