package cursor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rzbill/flagstream/internal/eventsource"
	pebblestore "github.com/rzbill/flagstream/internal/storage/pebble"
)

var keyPrefix = []byte("cursor/")

// Record is the persisted form of eventsource.Resume.
type Record struct {
	LastEventID      string `json:"lastEventId,omitempty"`
	ReconnectDelayMs int64  `json:"reconnectDelayMs"`
	UpdatedMs        int64  `json:"updatedMs"`
}

// Resume converts r to the dispatcher's resume snapshot.
func (r Record) Resume() eventsource.Resume {
	return eventsource.Resume{
		Delay:       time.Duration(r.ReconnectDelayMs) * time.Millisecond,
		LastEventID: r.LastEventID,
	}
}

// Store reads and writes cursor records keyed by stream key.
type Store struct {
	db  *pebblestore.DB
	now func() time.Time
}

// New returns a Store backed by db.
func New(db *pebblestore.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func recordKey(key string) []byte {
	k := make([]byte, 0, len(keyPrefix)+len(key))
	k = append(k, keyPrefix...)
	return append(k, key...)
}

func validKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("cursor: empty key")
	}
	return nil
}

// Save writes rec under key, stamping UpdatedMs.
func (s *Store) Save(key string, rec Record) error {
	if err := validKey(key); err != nil {
		return err
	}
	rec.UpdatedMs = s.now().UnixMilli()
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Set(recordKey(key), b)
}

// Load returns the record for key. ok is false when nothing was saved.
func (s *Store) Load(key string) (Record, bool, error) {
	if err := validKey(key); err != nil {
		return Record{}, false, err
	}
	b, err := s.db.Get(recordKey(key))
	if err != nil {
		if errors.Is(err, pebblestore.ErrNotFound) {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return Record{}, false, fmt.Errorf("cursor: decode %s: %w", key, err)
	}
	return rec, true, nil
}

// Delete removes the record for key.
func (s *Store) Delete(key string) error {
	if err := validKey(key); err != nil {
		return err
	}
	return s.db.Delete(recordKey(key))
}

// Entry pairs a stream key with its record.
type Entry struct {
	Key    string `json:"key"`
	Record Record `json:"record"`
}

// List returns every stored record in key order.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	var out []Entry
	err := s.db.ScanPrefix(ctx, keyPrefix, func(k, v []byte) error {
		var rec Record
		if err := json.Unmarshal(v, &rec); err != nil {
			return fmt.Errorf("cursor: decode %s: %w", k, err)
		}
		out = append(out, Entry{Key: string(k[len(keyPrefix):]), Record: rec})
		return nil
	})
	return out, err
}

// Checkpointer returns an eventsource.Checkpointer that saves under key.
func (s *Store) Checkpointer(key string) eventsource.Checkpointer {
	return checkpointer{s: s, key: key}
}

type checkpointer struct {
	s   *Store
	key string
}

func (c checkpointer) Checkpoint(r eventsource.Resume) error {
	return c.s.Save(c.key, Record{
		LastEventID:      r.LastEventID,
		ReconnectDelayMs: r.Delay.Milliseconds(),
	})
}
