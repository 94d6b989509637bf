package boltdb

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.etcd.io/bbolt"

	"github.com/iudanet/gophgrade/internal/client/storage"
	"github.com/iudanet/gophgrade/internal/models"
)

var (
	// BoltDB bucket names
	bucketAuth     = []byte("auth")
	bucketMetadata = []byte("metadata")

	// внутри bucket пространства имен
	bucketEntries = []byte("entries")
	keyIndex      = []byte("index")
	keyChanges    = []byte("changes")
)

// namespaceBucket returns the top-level bucket name of an entity type
func namespaceBucket(t models.EntityType) []byte {
	return []byte("ns:" + string(t))
}

// Storage represents BoltDB storage implementation for client
type Storage struct {
	db     *bbolt.DB
	closed atomic.Bool
}

var (
	_ storage.EntityStorage   = (*Storage)(nil)
	_ storage.AuthStorage     = (*Storage)(nil)
	_ storage.MetadataStorage = (*Storage)(nil)
)

// New creates a new BoltDB storage instance
// dbPath is the path to the BoltDB database file
func New(ctx context.Context, dbPath string) (*Storage, error) {
	// Открываем BoltDB
	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb: %w", err)
	}

	s := &Storage{db: db}

	// Инициализируем buckets
	if err := s.initBuckets(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

// initBuckets создает необходимые buckets если они не существуют
func (s *Storage) initBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketAuth, bucketMetadata} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", name, err)
			}
		}
		for _, t := range models.AllTypes {
			if err := createNamespace(tx, t); err != nil {
				return err
			}
		}
		return nil
	})
}

func createNamespace(tx *bbolt.Tx, t models.EntityType) error {
	ns, err := tx.CreateBucketIfNotExists(namespaceBucket(t))
	if err != nil {
		return fmt.Errorf("failed to create %s namespace: %w", t, err)
	}
	if _, err := ns.CreateBucketIfNotExists(bucketEntries); err != nil {
		return fmt.Errorf("failed to create %s entries bucket: %w", t, err)
	}
	return nil
}

// View runs fn in a read-only transaction
func (s *Storage) View(ctx context.Context, fn func(tx storage.Tx) error) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	return s.db.View(func(tx *bbolt.Tx) error {
		return fn(&boltTx{tx: tx})
	})
}

// Update runs fn in a read-write transaction; an error from fn rolls everything back
func (s *Storage) Update(ctx context.Context, fn func(tx storage.Tx) error) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return fn(&boltTx{tx: tx})
	})
}

func (s *Storage) check(ctx context.Context) error {
	if s.closed.Load() {
		return storage.ErrStorageClosed
	}
	return ctx.Err()
}
