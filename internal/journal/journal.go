// Package journal persists what the processor has seen and decided: the event
// cursor, the queue of intents in discovery order, and the latest outcome of
// every intent.
package journal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"Mist/internal/bcs"
	"Mist/internal/ledger"
	"Mist/internal/storage"
)

// Storage key prefixes.
var (
	prefixEntry = []byte("o:")
	prefixQueue = []byte("q:")
	keyCursor   = []byte("m:cursor")
	keySeq      = []byte("m:seq")
)

// KindPending is the kind of an entry that has been discovered but not processed.
const KindPending = 0

// ErrCorrupt is returned when a stored value cannot be decoded.
var ErrCorrupt = errors.New("journal entry corrupt")

// Entry is the journal state of one intent.
type Entry struct {
	Intent     ledger.ObjectID // Intent identifies the intent
	Kind       uint8           // Kind is the latest outcome kind, KindPending before processing
	Terminal   bool            // Terminal stops further attempts
	Attempts   uint32          // Attempts counts processing attempts
	TxDigest   string          // TxDigest is the settlement transaction, if any
	Detail     string          // Detail describes the latest outcome
	Discovered uint64          // Discovered is the discovery sequence number
	UpdatedAt  time.Time       // UpdatedAt is when the entry last changed
}

// Outcome is the result of one processing attempt.
type Outcome struct {
	Kind     uint8  // Kind classifies the result
	Terminal bool   // Terminal stops further attempts
	TxDigest string // TxDigest is set for settled intents
	Detail   string // Detail is a human-readable description
}

// Journal is the processor's durable state.
type Journal struct {
	db  *storage.Storage
	mu  sync.Mutex
	now func() time.Time
}

// Open opens or creates a journal at path.
func Open(path string) (*Journal, error) {
	db, err := storage.New(path, storage.Options{})
	if err != nil {
		return nil, fmt.Errorf("open journal %s:\n%w", path, err)
	}

	return &Journal{db: db, now: time.Now}, nil
}

// Close syncs and closes the journal.
func (j *Journal) Close() error {
	return j.db.Close()
}

func entryKey(id ledger.ObjectID) []byte {
	return append(append([]byte(nil), prefixEntry...), id[:]...)
}

func queueKey(seq uint64) []byte {
	key := append([]byte(nil), prefixQueue...)
	return binary.BigEndian.AppendUint64(key, seq)
}

// Enqueue adds newly discovered intents to the pending queue in order.
// Intents already known to the journal are skipped. It returns how many were added.
func (j *Journal) Enqueue(ids []ledger.ObjectID) (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	seq, err := j.nextSeq()
	if err != nil {
		return 0, err
	}

	var ops []storage.Op

	seen := make(map[ledger.ObjectID]bool, len(ids))
	now := j.now()
	added := 0

	for _, id := range ids {
		if seen[id] {
			continue
		}

		seen[id] = true

		existing, err := j.db.Get(entryKey(id))
		if err != nil {
			return 0, err
		}

		if existing != nil {
			continue
		}

		e := &Entry{Intent: id, Kind: KindPending, Discovered: seq, UpdatedAt: now}

		ops = append(ops,
			storage.Put(entryKey(id), encodeEntry(e)),
			storage.Put(queueKey(seq), id.Bytes()),
		)

		seq++
		added++
	}

	if added == 0 {
		return 0, nil
	}

	ops = append(ops, storage.Put(keySeq, bcs.U64Bytes(seq)))

	return added, j.db.Apply(ops...)
}

// nextSeq returns the next unused discovery sequence number.
func (j *Journal) nextSeq() (uint64, error) {
	raw, err := j.db.Get(keySeq)
	if err != nil || raw == nil {
		return 0, err
	}

	d := bcs.NewDecoder(raw)
	seq := d.U64()

	if d.Err() != nil {
		return 0, fmt.Errorf("%w: sequence", ErrCorrupt)
	}

	return seq, nil
}

// Pending returns the queued intents in discovery order.
func (j *Journal) Pending() ([]ledger.ObjectID, error) {
	var ids []ledger.ObjectID

	err := j.db.IteratePrefix(prefixQueue, func(_, value []byte) error {
		if len(value) != len(ledger.ObjectID{}) {
			return fmt.Errorf("%w: queue value of %d bytes", ErrCorrupt, len(value))
		}

		ids = append(ids, ledger.ObjectID(value))

		return nil
	})

	return ids, err
}

// Record stores the outcome of one attempt and returns the updated entry.
// Terminal outcomes leave the pending queue.
func (j *Journal) Record(id ledger.ObjectID, o Outcome) (*Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	e, err := j.lookup(id)
	if err != nil {
		return nil, err
	}

	ops := make([]storage.Op, 0, 2)

	if e == nil {
		seq, err := j.nextSeq()
		if err != nil {
			return nil, err
		}

		e = &Entry{Intent: id, Discovered: seq}
		ops = append(ops, storage.Put(keySeq, bcs.U64Bytes(seq+1)))

		if !o.Terminal {
			ops = append(ops, storage.Put(queueKey(seq), id.Bytes()))
		}
	}

	e.Kind = o.Kind
	e.Terminal = o.Terminal
	e.TxDigest = o.TxDigest
	e.Detail = o.Detail
	e.Attempts++
	e.UpdatedAt = j.now()

	ops = append(ops, storage.Put(entryKey(id), encodeEntry(e)))

	if o.Terminal {
		ops = append(ops, storage.Del(queueKey(e.Discovered)))
	}

	if err := j.db.Apply(ops...); err != nil {
		return nil, err
	}

	return e, nil
}

// Lookup returns the entry for id, or nil if the journal has never seen it.
func (j *Journal) Lookup(id ledger.ObjectID) (*Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.lookup(id)
}

func (j *Journal) lookup(id ledger.ObjectID) (*Entry, error) {
	raw, err := j.db.Get(entryKey(id))
	if err != nil || raw == nil {
		return nil, err
	}

	return decodeEntry(raw)
}

// Terminal reports whether id reached a terminal outcome.
func (j *Journal) Terminal(id ledger.ObjectID) (bool, error) {
	e, err := j.Lookup(id)
	if err != nil || e == nil {
		return false, err
	}

	return e.Terminal, nil
}

// Entries calls fn for every journal entry in intent ID order.
func (j *Journal) Entries(fn func(*Entry) error) error {
	return j.db.IteratePrefix(prefixEntry, func(_, value []byte) error {
		e, err := decodeEntry(value)
		if err != nil {
			return err
		}

		return fn(e)
	})
}

// Cursor returns the saved event cursor, zero if none.
func (j *Journal) Cursor() (ledger.EventCursor, error) {
	raw, err := j.db.Get(keyCursor)
	if err != nil || raw == nil {
		return ledger.EventCursor{}, err
	}

	d := bcs.NewDecoder(raw)
	c := ledger.EventCursor{TxDigest: d.Str(), EventSeq: d.Str()}

	if d.Err() != nil {
		return ledger.EventCursor{}, fmt.Errorf("%w: cursor", ErrCorrupt)
	}

	return c, nil
}

// SetCursor saves the event cursor.
func (j *Journal) SetCursor(c ledger.EventCursor) error {
	return j.db.Set(keyCursor, encodeCursor(c))
}

func encodeCursor(c ledger.EventCursor) []byte {
	return bcs.NewEncoder(64).String(c.TxDigest).String(c.EventSeq).Bytes()
}
