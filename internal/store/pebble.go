package store

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/Kushchii/sse-service/internal/storage/pebble"
	"github.com/Kushchii/sse-service/internal/transaction"
	"github.com/Kushchii/sse-service/pkg/log"
)

// Keyspace (byte-wise, lexicographically sortable):
// - tx/e/{createdAt_ns be8}   record value (CRC-framed JSON)
// - tx/id/{id}                id index -> createdAt_ns be8
// - tx/m                      meta: lastSeq be8 | lastCreated_ns be8
var (
	entryPrefix = []byte("tx/e/")
	idPrefix    = []byte("tx/id/")
	metaKey     = []byte("tx/m")
)

func entryKey(createdNs uint64) []byte {
	k := make([]byte, 0, len(entryPrefix)+8)
	k = append(k, entryPrefix...)
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], createdNs)
	return append(k, b[:]...)
}

func idKey(id string) []byte {
	k := make([]byte, 0, len(idPrefix)+len(id))
	k = append(k, idPrefix...)
	return append(k, id...)
}

// PebbleStore is the embedded record store backend.
type PebbleStore struct {
	db     *pebblestore.DB
	logger log.Logger

	mu          sync.Mutex
	lastSeq     uint64
	lastCreated int64 // unix nanos of the newest record
	notifyCh    chan struct{}
}

// OpenPebble opens the record store on db, restoring the persisted sequence
// and creation-time high-water marks.
func OpenPebble(db *pebblestore.DB, logger log.Logger) (*PebbleStore, error) {
	s := &PebbleStore{db: db, logger: logger, notifyCh: make(chan struct{})}
	meta, err := db.Get(metaKey)
	if err == nil && len(meta) >= 16 {
		s.lastSeq = binary.BigEndian.Uint64(meta[0:8])
		s.lastCreated = int64(binary.BigEndian.Uint64(meta[8:16]))
	} else if err != nil && !pebblestore.ErrNotFound(err) {
		return nil, wrapf(err, "load store meta")
	}
	return s, nil
}

// Close releases the store. The underlying DB is owned by the caller.
func (s *PebbleStore) Close() error { return nil }

// Save implements Store. CreatedAt is forced strictly greater than the
// previous record's so the entry key doubles as a total order.
func (s *PebbleStore) Save(ctx context.Context, rec *transaction.Record) (*transaction.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Get(idKey(rec.ID)); err == nil {
		return nil, ErrDuplicateID
	} else if !pebblestore.ErrNotFound(err) {
		return nil, Transient(wrapf(err, "check id index"))
	}

	createdNs := time.Now().UTC().UnixNano()
	if createdNs <= s.lastCreated {
		createdNs = s.lastCreated + 1
	}
	persisted := *rec
	persisted.CreatedAt = time.Unix(0, createdNs).UTC()
	persisted.Seq = s.lastSeq + 1

	val, err := encodeRecord(&persisted)
	if err != nil {
		return nil, wrapf(err, "encode record")
	}

	b := s.db.NewBatch()
	defer b.Close()
	var created [8]byte
	binary.BigEndian.PutUint64(created[:], uint64(createdNs))
	if err := b.Set(entryKey(uint64(createdNs)), val, nil); err != nil {
		return nil, Transient(wrapf(err, "stage entry"))
	}
	if err := b.Set(idKey(persisted.ID), created[:], nil); err != nil {
		return nil, Transient(wrapf(err, "stage id index"))
	}
	var meta [16]byte
	binary.BigEndian.PutUint64(meta[0:8], persisted.Seq)
	binary.BigEndian.PutUint64(meta[8:16], uint64(createdNs))
	if err := b.Set(metaKey, meta[:], nil); err != nil {
		return nil, Transient(wrapf(err, "stage meta"))
	}
	if err := s.db.CommitBatch(ctx, b); err != nil {
		return nil, Transient(wrapf(err, "commit record"))
	}

	s.lastSeq = persisted.Seq
	s.lastCreated = createdNs
	// wake waiters
	close(s.notifyCh)
	s.notifyCh = make(chan struct{})
	return &persisted, nil
}

// WaitForAppend blocks until a record is saved or timeout elapses. It returns
// true if woken by a save, false on timeout.
func (s *PebbleStore) WaitForAppend(timeout time.Duration) bool {
	s.mu.Lock()
	ch := s.notifyCh
	s.mu.Unlock()
	if timeout <= 0 {
		<-ch
		return true
	}
	select {
	case <-ch:
		return true
	case <-time.After(timeout):
		return false
	}
}

// FindByID implements Store.
func (s *PebbleStore) FindByID(ctx context.Context, id string) (*transaction.Record, error) {
	ptr, err := s.db.Get(idKey(id))
	if err != nil {
		if pebblestore.ErrNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, Transient(wrapf(err, "read id index"))
	}
	if len(ptr) < 8 {
		return nil, errCorruptRecord
	}
	val, err := s.db.Get(entryKey(binary.BigEndian.Uint64(ptr[:8])))
	if err != nil {
		if pebblestore.ErrNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, Transient(wrapf(err, "read entry"))
	}
	return decodeRecord(val)
}

// FindCreatedSince implements Store. The bound is exclusive.
func (s *PebbleStore) FindCreatedSince(ctx context.Context, t time.Time) ([]*transaction.Record, error) {
	var lowNs uint64
	if ns := t.UnixNano(); ns > 0 {
		lowNs = uint64(ns) + 1
	}
	return s.scan(lowNs)
}

// FindAll implements Store.
func (s *PebbleStore) FindAll(ctx context.Context) ([]*transaction.Record, error) {
	return s.scan(0)
}

func (s *PebbleStore) scan(lowNs uint64) ([]*transaction.Record, error) {
	hi := entryKey(^uint64(0))
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: entryKey(lowNs),
		UpperBound: append(hi, 0x00),
	})
	if err != nil {
		return nil, Transient(wrapf(err, "open iterator"))
	}
	defer iter.Close()

	var out []*transaction.Record
	for ok := iter.First(); ok; ok = iter.Next() {
		rec, err := decodeRecord(iter.Value())
		if err != nil {
			s.logger.Warn("skipping corrupt record", log.Str("key", string(iter.Key())))
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}
