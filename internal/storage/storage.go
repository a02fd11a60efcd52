// Package storage is the local key-value store behind the processor journal.
package storage

import (
	"errors"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
)

const (
	// defaultSyncInterval is the default interval between WAL syncs.
	defaultSyncInterval = 100 * time.Millisecond

	// defaultCacheSize is the block cache size in bytes.
	defaultCacheSize = 8 << 20
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("storage closed")

// Op is one write of an atomic batch. A nil Value deletes Key.
type Op struct {
	Key   []byte // Key is the key to write
	Value []byte // Value is the value to store, nil to delete
}

// Put returns an Op storing value at key.
func Put(key, value []byte) Op {
	return Op{Key: key, Value: value}
}

// Del returns an Op deleting key.
func Del(key []byte) Op {
	return Op{Key: key}
}

// Storage is a Pebble-backed key-value store. Writes are NoSync and a
// background goroutine syncs the WAL every SyncInterval.
type Storage struct {
	db       *pebble.DB    // db is the underlying Pebble database
	stopSync chan struct{} // stopSync signals the sync goroutine to stop
	wg       sync.WaitGroup
	mu       sync.RWMutex // mu guards closed
	closed   bool         // closed is set by Close
}

// Options tunes a store. Zero values use defaults.
type Options struct {
	SyncInterval time.Duration // SyncInterval is the WAL sync period
	CacheSize    int64         // CacheSize is the block cache size in bytes
}

// New opens or creates a store at path.
func New(path string, o Options) (*Storage, error) {
	if o.SyncInterval <= 0 {
		o.SyncInterval = defaultSyncInterval
	}

	if o.CacheSize <= 0 {
		o.CacheSize = defaultCacheSize
	}

	cache := pebble.NewCache(o.CacheSize)
	defer cache.Unref()

	db, err := pebble.Open(path, &pebble.Options{
		Cache:                       cache,
		MemTableSize:                4 << 20,
		MemTableStopWritesThreshold: 2,
	})
	if err != nil {
		return nil, err
	}

	s := &Storage{
		db:       db,
		stopSync: make(chan struct{}),
	}

	s.startSyncLoop(o.SyncInterval)

	return s, nil
}

// Get returns a copy of the value at key, or nil if it does not exist.
func (s *Storage) Get(key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	value, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	result := make([]byte, len(value))
	copy(result, value)

	return result, nil
}

// Set stores a key-value pair.
func (s *Storage) Set(key, value []byte) error {
	return s.Apply(Put(key, value))
}

// Delete removes a key.
func (s *Storage) Delete(key []byte) error {
	return s.Apply(Del(key))
}

// Apply writes ops atomically: either all of them land or none.
func (s *Storage) Apply(ops ...Op) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	for _, op := range ops {
		var err error
		if op.Value == nil {
			err = batch.Delete(op.Key, nil)
		} else {
			err = batch.Set(op.Key, op.Value, nil)
		}

		if err != nil {
			return err
		}
	}

	return batch.Commit(pebble.NoSync)
}

// IteratePrefix calls fn for each pair whose key starts with prefix, in
// lexicographic key order. Keys and values are only valid during fn.
func (s *Storage) IteratePrefix(prefix []byte, fn func(key, value []byte) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		value, err := iter.ValueAndErr()
		if err != nil {
			return err
		}

		if err := fn(iter.Key(), value); err != nil {
			return err
		}
	}

	return iter.Error()
}

// prefixUpperBound computes the exclusive upper bound for a prefix scan.
// Returns nil (unbounded) for an empty or all-0xFF prefix.
func prefixUpperBound(prefix []byte) []byte {
	upper := make([]byte, len(prefix))
	copy(upper, prefix)

	for i := len(upper) - 1; i >= 0; i-- {
		upper[i]++
		if upper[i] != 0 {
			return upper[:i+1]
		}
	}

	return nil
}

// Close stops the sync goroutine, syncs once more and closes the database.
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true

	close(s.stopSync)
	s.wg.Wait()

	if err := s.sync(); err != nil {
		return err
	}

	return s.db.Close()
}

// startSyncLoop starts the background goroutine that periodically syncs the WAL.
func (s *Storage) startSyncLoop(interval time.Duration) {
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				_ = s.sync()
			case <-s.stopSync:
				return
			}
		}
	}()
}

// sync forces a WAL sync to disk.
func (s *Storage) sync() error {
	return s.db.LogData(nil, pebble.Sync)
}
