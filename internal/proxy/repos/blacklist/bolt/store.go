// Package bolt keeps the deny list in a local bbolt database, for hosts that
// run without PostgreSQL.
package bolt

import (
	"context"
	"encoding/binary"
	"errors"
	"time"

	bbolt "go.etcd.io/bbolt"
	bberrors "go.etcd.io/bbolt/errors"

	"github.com/haukened/phishguard/internal/proxy/repos/blacklist"
	"github.com/haukened/phishguard/internal/proxy/repos/blacklist/parsers"
)

var (
	bucketDomain = []byte("domain")
	bucketCidr   = []byte("cidr")
	bucketMeta   = []byte("meta")

	keyUpdated = []byte("updated")
)

var (
	active   = []byte{1}
	inactive = []byte{0}
)

// ErrEmptyKey is returned when a blank entry is written.
var ErrEmptyKey = errors.New("bolt: empty entry")

// Stats summarizes the database contents.
type Stats struct {
	Domains       int
	ActiveDomains int
	Cidrs         int
	ActiveCidrs   int
	UpdatedUnix   int64
}

// Store is a blacklist.Source over bbolt. Each bucket maps an entry to a
// one-byte active flag.
type Store struct {
	db *bbolt.DB
}

// New opens (or creates) a Bolt database at path and ensures buckets exist.
func New(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketDomain, bucketCidr, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) FetchActiveDomains(ctx context.Context) ([]string, error) {
	return s.activeKeys(ctx, bucketDomain)
}

func (s *Store) FetchActiveCidrs(ctx context.Context) ([]string, error) {
	return s.activeKeys(ctx, bucketCidr)
}

func (s *Store) activeKeys(ctx context.Context, bucket []byte) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			if len(v) == 1 && v[0] == 1 {
				out = append(out, string(k))
			}
			return nil
		})
	})
	return out, err
}

// PutDomain inserts or updates a domain entry.
func (s *Store) PutDomain(name string, isActive bool) error {
	return s.put(bucketDomain, name, isActive)
}

// PutCidr inserts or updates a network entry. The value is validated the same
// way the cache parses it.
func (s *Store) PutCidr(cidr string, isActive bool) error {
	if _, err := blacklist.ParseCIDR(cidr); err != nil {
		return err
	}
	return s.put(bucketCidr, cidr, isActive)
}

func (s *Store) put(bucket []byte, key string, isActive bool) error {
	if key == "" {
		return ErrEmptyKey
	}
	flag := inactive
	if isActive {
		flag = active
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucket).Put([]byte(key), flag); err != nil {
			return err
		}
		return touch(tx, time.Now().Unix())
	})
}

// ReplaceAll swaps the whole content for entries in one transaction, marking
// every entry active.
func (s *Store) ReplaceAll(entries parsers.Entries, updatedUnix int64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, set := range []struct {
			name []byte
			keys []string
		}{{bucketDomain, entries.Domains}, {bucketCidr, entries.Cidrs}} {
			if err := tx.DeleteBucket(set.name); err != nil && !errors.Is(err, bberrors.ErrBucketNotFound) {
				return err
			}
			b, err := tx.CreateBucket(set.name)
			if err != nil {
				return err
			}
			for _, k := range set.keys {
				if k == "" {
					continue
				}
				if err := b.Put([]byte(k), active); err != nil {
					return err
				}
			}
		}
		return touch(tx, updatedUnix)
	})
}

func touch(tx *bbolt.Tx, unix int64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(unix))
	return tx.Bucket(bucketMeta).Put(keyUpdated, buf)
}

func (s *Store) Stats() Stats {
	st := Stats{}
	_ = s.db.View(func(tx *bbolt.Tx) error {
		count := func(name []byte) (all, on int) {
			b := tx.Bucket(name)
			if b == nil {
				return 0, 0
			}
			_ = b.ForEach(func(_, v []byte) error {
				all++
				if len(v) == 1 && v[0] == 1 {
					on++
				}
				return nil
			})
			return all, on
		}
		st.Domains, st.ActiveDomains = count(bucketDomain)
		st.Cidrs, st.ActiveCidrs = count(bucketCidr)
		if v := tx.Bucket(bucketMeta).Get(keyUpdated); len(v) == 8 {
			st.UpdatedUnix = int64(binary.BigEndian.Uint64(v))
		}
		return nil
	})
	return st
}

var _ blacklist.Source = (*Store)(nil)
