package storage

import (
	"errors"
	"sort"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"loanpipe/internal/book"
)

// ErrNotFound is returned for an unknown isbn.
var ErrNotFound = errors.New("record not found")

// Store defines the interface for record storage.
type Store interface {
	// Get returns a copy of the record for isbn, or ErrNotFound.
	Get(isbn string) (*book.Record, error)
	// Put overwrites the record for rec.ISBN and persists the full set
	// before returning.
	Put(rec *book.Record) error
	// Snapshot returns copies of all records ordered by isbn.
	Snapshot() []*book.Record
	// Len returns the number of records.
	Len() int
}

// InMemoryStore is the in-memory implementation of Store.
// It's thread-safe; writes are serialized so the persisted set always
// reflects apply order.
type InMemoryStore struct {
	mu        sync.RWMutex
	data      map[string]*book.Record
	persister Persister
}

// NewInMemoryStore creates an empty store. A nil persister keeps records in
// memory only.
func NewInMemoryStore(p Persister) *InMemoryStore {
	return &InMemoryStore{
		data:      make(map[string]*book.Record),
		persister: p,
	}
}

// Open creates a store from the persisted record set. If nothing has been
// persisted yet and seedPath is set, the seed catalog is loaded and persisted.
func Open(p Persister, seedPath string) (*InMemoryStore, error) {
	s := NewInMemoryStore(p)

	var records []*book.Record
	if p != nil {
		var err error
		if records, err = p.Load(); err != nil {
			return nil, pkgerrors.Wrap(err, "load persisted records")
		}
	}

	seeded := false
	if len(records) == 0 && seedPath != "" {
		var err error
		if records, err = LoadSeed(seedPath); err != nil {
			return nil, err
		}
		seeded = true
	}

	for _, rec := range records {
		if rec == nil || rec.ISBN == "" {
			continue
		}
		s.data[rec.ISBN] = rec.Clone()
	}

	if seeded && p != nil {
		if err := p.Save(s.snapshotLocked()); err != nil {
			return nil, pkgerrors.Wrap(err, "persist seed catalog")
		}
	}
	return s, nil
}

// Get retrieves a record by isbn.
func (s *InMemoryStore) Get(isbn string) (*book.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.data[isbn]
	if !exists {
		return nil, ErrNotFound
	}
	// Return a copy to avoid external modifications
	return rec.Clone(), nil
}

// Put overwrites a record and persists the full set. If persisting fails the
// previous in-memory entry is restored so memory never runs ahead of disk.
func (s *InMemoryStore) Put(rec *book.Record) error {
	if rec == nil || rec.ISBN == "" {
		return errors.New("record must have an isbn")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.data[rec.ISBN]
	s.data[rec.ISBN] = rec.Clone()

	if s.persister == nil {
		return nil
	}
	if err := s.persister.Save(s.snapshotLocked()); err != nil {
		if existed {
			s.data[rec.ISBN] = prev
		} else {
			delete(s.data, rec.ISBN)
		}
		return pkgerrors.Wrapf(err, "persist record %s", rec.ISBN)
	}
	return nil
}

// Snapshot returns copies of all records ordered by isbn.
func (s *InMemoryStore) Snapshot() []*book.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Len returns the number of records.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Close releases the persister.
func (s *InMemoryStore) Close() error {
	if s.persister == nil {
		return nil
	}
	return s.persister.Close()
}

// snapshotLocked must be called with mu held.
func (s *InMemoryStore) snapshotLocked() []*book.Record {
	out := make([]*book.Record, 0, len(s.data))
	for _, rec := range s.data {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ISBN < out[j].ISBN })
	return out
}
