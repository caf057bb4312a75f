package storage

import (
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
	"loanpipe/internal/book"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Persister writes and reads the full record set.
type Persister interface {
	// Load returns the persisted records, or none if nothing was saved yet.
	Load() ([]*book.Record, error)
	// Save durably replaces the persisted set.
	Save(records []*book.Record) error
	Close() error
}

// LoadSeed reads a seed catalog: a JSON array of records.
func LoadSeed(path string) ([]*book.Record, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read seed file %s", path)
	}
	var records []*book.Record
	if err := json.Unmarshal(b, &records); err != nil {
		return nil, errors.Wrapf(err, "parse seed file %s", path)
	}
	for i, rec := range records {
		// Normalize nil collections from hand-written seeds.
		records[i] = rec.Clone()
	}
	return records, nil
}

// FilePersister stores the record set as a flat JSON array file.
type FilePersister struct {
	path string
}

// NewFilePersister creates a persister writing to path.
func NewFilePersister(path string) *FilePersister {
	return &FilePersister{path: path}
}

// Load reads the file. A missing file is an empty set.
func (p *FilePersister) Load() ([]*book.Record, error) {
	if _, err := os.Stat(p.path); os.IsNotExist(err) {
		return nil, nil
	}
	return LoadSeed(p.path)
}

// Save writes the set to a temp file, syncs it and renames it over the
// previous file.
func (p *FilePersister) Save(records []*book.Record) error {
	b, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode records")
	}

	dir := filepath.Dir(p.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(p.path)+".tmp*")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return errors.Wrap(err, "write temp file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "sync temp file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp file")
	}
	if err := os.Rename(tmpName, p.path); err != nil {
		return errors.Wrapf(err, "replace %s", p.path)
	}
	return nil
}

// Close is a no-op.
func (p *FilePersister) Close() error { return nil }

var recordsBucket = []byte("records")

// BoltPersister stores one key per isbn in a bbolt bucket.
type BoltPersister struct {
	db *bolt.DB
}

// OpenBoltPersister opens or creates the bolt file at path.
func OpenBoltPersister(path string) (*BoltPersister, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "open bolt file %s", path)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(recordsBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create records bucket")
	}
	return &BoltPersister{db: db}, nil
}

// Load reads every record in the bucket.
func (p *BoltPersister) Load() ([]*book.Record, error) {
	var records []*book.Record
	err := p.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(recordsBucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			rec := &book.Record{}
			if err := json.Unmarshal(v, rec); err != nil {
				return errors.Wrapf(err, "decode record %s", k)
			}
			records = append(records, rec.Clone())
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Save replaces the bucket contents in a single transaction.
func (p *BoltPersister) Save(records []*book.Record) error {
	return p.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(recordsBucket); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		b, err := tx.CreateBucket(recordsBucket)
		if err != nil {
			return err
		}
		for _, rec := range records {
			v, err := json.Marshal(rec)
			if err != nil {
				return errors.Wrapf(err, "encode record %s", rec.ISBN)
			}
			if err := b.Put([]byte(rec.ISBN), v); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close closes the bolt file.
func (p *BoltPersister) Close() error {
	return p.db.Close()
}
