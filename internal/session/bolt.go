package session

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"time"

	"github.com/boltdb/bolt"
	"github.com/dvloznov/bookkeeper/internal/domain"
)

var (
	bucketMeta    = []byte("meta")
	bucketResults = []byte("results")
)

// BoltStore keeps each session in its own top-level bucket: a gob encoded
// header under "meta" and results in a nested bucket keyed by sequence.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the bolt database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("NewBoltStore: opening %s: %w", path, err)
	}
	return &BoltStore{db: db}, nil
}

func encodeGob(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGob(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

func seqKey(n uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, n)
	return key
}

// Create stores the header in a new bucket named after the session.
func (s *BoltStore) Create(ctx context.Context, meta domain.SessionMeta) error {
	data, err := encodeGob(meta)
	if err != nil {
		return fmt.Errorf("BoltStore.Create: encoding meta: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(meta.SessionID)) != nil {
			return fmt.Errorf("BoltStore.Create: %s: %w", meta.SessionID, ErrExists)
		}
		b, err := tx.CreateBucket([]byte(meta.SessionID))
		if err != nil {
			return fmt.Errorf("BoltStore.Create: %w", err)
		}
		if _, err := b.CreateBucket(bucketResults); err != nil {
			return fmt.Errorf("BoltStore.Create: %w", err)
		}
		return b.Put(bucketMeta, data)
	})
}

// Append adds results in one transaction.
func (s *BoltStore) Append(ctx context.Context, sessionID string, results ...domain.CategorizationResult) error {
	if len(results) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(sessionID))
		if b == nil {
			return fmt.Errorf("BoltStore.Append: %s: %w", sessionID, ErrNotFound)
		}
		rb := b.Bucket(bucketResults)
		for _, r := range results {
			seq, err := rb.NextSequence()
			if err != nil {
				return fmt.Errorf("BoltStore.Append: %w", err)
			}
			data, err := encodeGob(r)
			if err != nil {
				return fmt.Errorf("BoltStore.Append: encoding %s: %w", r.TransactionID, err)
			}
			if err := rb.Put(seqKey(seq), data); err != nil {
				return fmt.Errorf("BoltStore.Append: %w", err)
			}
		}
		return nil
	})
}

// ReadAll returns the header and results of a session in append order.
func (s *BoltStore) ReadAll(ctx context.Context, sessionID string) (domain.SessionMeta, []domain.CategorizationResult, error) {
	var (
		meta    domain.SessionMeta
		results []domain.CategorizationResult
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(sessionID))
		if b == nil {
			return fmt.Errorf("BoltStore.ReadAll: %s: %w", sessionID, ErrNotFound)
		}
		if err := decodeGob(b.Get(bucketMeta), &meta); err != nil {
			return fmt.Errorf("BoltStore.ReadAll: decoding meta: %w", err)
		}
		c := b.Bucket(bucketResults).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var r domain.CategorizationResult
			if err := decodeGob(v, &r); err != nil {
				return fmt.Errorf("BoltStore.ReadAll: decoding result %x: %w", k, err)
			}
			results = append(results, r)
		}
		return nil
	})
	if err != nil {
		return domain.SessionMeta{}, nil, err
	}
	return meta, results, nil
}

// List returns every session header, newest first.
func (s *BoltStore) List(ctx context.Context) ([]domain.SessionMeta, error) {
	var metas []domain.SessionMeta
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, b *bolt.Bucket) error {
			var meta domain.SessionMeta
			if err := decodeGob(b.Get(bucketMeta), &meta); err != nil {
				return fmt.Errorf("BoltStore.List: decoding %s: %w", name, err)
			}
			metas = append(metas, meta)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	SortNewestFirst(metas)
	return metas, nil
}

// DiscoverLatest returns the most recent session.
func (s *BoltStore) DiscoverLatest(ctx context.Context) (string, error) {
	metas, err := s.List(ctx)
	if err != nil {
		return "", err
	}
	return Latest(metas)
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

var _ Store = (*BoltStore)(nil)
