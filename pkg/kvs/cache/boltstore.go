package cache

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/flux-framework/flux-core-go/pkg/ferror"
	bolt "go.etcd.io/bbolt"
)

var bucketBlobs = []byte("blobs")

// HashAlgo names the hash function used to derive blobrefs, fixed per
// Cache instance.
type HashAlgo string

const (
	HashSHA1   HashAlgo = "sha1"
	HashSHA256 HashAlgo = "sha256"
)

// Hash computes the "algo-hex" blobref for data using algo.
func Hash(algo HashAlgo, data []byte) (string, error) {
	switch algo {
	case HashSHA1:
		sum := sha1.Sum(data)
		return fmt.Sprintf("%s-%s", algo, hex.EncodeToString(sum[:])), nil
	case HashSHA256:
		sum := sha256.Sum256(data)
		return fmt.Sprintf("%s-%s", algo, hex.EncodeToString(sum[:])), nil
	default:
		return "", ferror.New(ferror.Inval, "unknown hash algo %q", algo)
	}
}

// VerifyRef recomputes the hash of data under ref's algo and fails
// FATAL on mismatch: a blobref/content mismatch is a fatal invariant
// violation, never a recoverable error.
func VerifyRef(ref string, data []byte) error {
	algo, _, ok := strings.Cut(ref, "-")
	if !ok {
		return ferror.New(ferror.Inval, "malformed blobref %q", ref)
	}
	want, err := Hash(HashAlgo(algo), data)
	if err != nil {
		return err
	}
	if want != ref {
		return ferror.New(ferror.Fatal, "blobref %q does not match content hash %q", ref, want)
	}
	return nil
}

// BoltContentStore implements ContentStore over a single bbolt bucket.
// Unlike a bucket-per-entity-type store, it collapses everything into
// one "blobs" bucket since content here is keyed uniformly by blobref
// rather than by typed entity.
type BoltContentStore struct {
	db *bolt.DB
}

// NewBoltContentStore opens (creating if needed) a bbolt-backed content
// store under dataDir.
func NewBoltContentStore(dataDir string) (*BoltContentStore, error) {
	dbPath := filepath.Join(dataDir, "content.db")
	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, ferror.Wrap(ferror.Fatal, err, "open content store at %s", dbPath)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketBlobs)
		return err
	})
	if err != nil {
		db.Close()
		return nil, ferror.Wrap(ferror.Fatal, err, "create blobs bucket")
	}
	return &BoltContentStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltContentStore) Close() error { return s.db.Close() }

// Put stores data under ref. A duplicate store of identical content is
// a no-op success, since content-addressed storage makes re-storing the
// same bytes under the same ref idempotent by construction.
func (s *BoltContentStore) Put(ref string, data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBlobs)
		if existing := b.Get([]byte(ref)); existing != nil {
			return nil
		}
		return b.Put([]byte(ref), data)
	})
}

// Get returns the bytes stored under ref, or ErrNotFound.
func (s *BoltContentStore) Get(ref string) ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBlobs)
		v := b.Get([]byte(ref))
		if v == nil {
			return ErrNotFound
		}
		data = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}
