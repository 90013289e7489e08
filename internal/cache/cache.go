// Package cache implements the durable OID/CID translation cache: a
// byte-keyed, byte-valued store with atomic per-key Put, full iteration, and
// a Drop that empties it without affecting correctness (only throughput).
//
// The backend is an ordered-key-value log built on goleveldb, the same
// family of embedded store used for content-addressed data elsewhere (e.g.
// dolthub/dolt's chunk index).
package cache

import (
	"bytes"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/dhappy/git-remote-igis/internal/igiserr"
)

// Key family prefixes, kept disjoint so no family's keys can collide with
// another's.
const (
	prefixOID   = "oid:"   // <OID> -> <CID>
	prefixModes = "modes:" // modes:<OID> -> <modesCID>
	prefixCID   = "cid:"   // <CID> -> <OID>, reverse lookup used on fetch
)

// Entry is one (key, value) pair yielded by Iterate.
type Entry struct {
	Key   string
	Value string
}

// Cache is the durable key-value contract the core's cache collaborator
// must satisfy.
type Cache interface {
	Get(key string) (value string, ok bool, err error)
	Put(key, value string) error
	Drop() error
	Iterate() (func(yield func(Entry) bool), error)
	Close() error
}

// LevelDB is the reference Cache backend: an on-disk ordered-key-value log.
type LevelDB struct {
	dir string
	db  *leveldb.DB
}

// Open opens (creating if absent) a LevelDB-backed cache at dir, normally
// the sibling-of-.git directory "<GIT_DIR>/remote-igis/".
func Open(dir string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("cache: open %s: %w", dir, err)
	}
	return &LevelDB{dir: dir, db: db}, nil
}

func (c *LevelDB) Close() error {
	return c.db.Close()
}

func (c *LevelDB) Get(key string) (string, bool, error) {
	v, err := c.db.Get([]byte(key), nil)
	if err == leveldb.ErrNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("cache: get %s: %w", key, err)
	}
	return string(v), true, nil
}

// Put writes key->value. A put to an existing key with an identical value is
// a no-op; with a differing value it is ErrCacheInconsistent.
func (c *LevelDB) Put(key, value string) error {
	existing, err := c.db.Get([]byte(key), nil)
	if err != nil && err != leveldb.ErrNotFound {
		return fmt.Errorf("cache: put %s: %w", key, err)
	}
	if err == nil {
		if bytes.Equal(existing, []byte(value)) {
			return nil
		}
		return fmt.Errorf("%w: key %s", igiserr.ErrCacheInconsistent, key)
	}
	if err := c.db.Put([]byte(key), []byte(value), nil); err != nil {
		return fmt.Errorf("cache: put %s: %w", key, err)
	}
	return nil
}

// Drop empties the store. Correctness is preserved; only throughput is
// degraded, since every translation will need to be recomputed.
func (c *LevelDB) Drop() error {
	iter := c.db.NewIterator(nil, nil)
	defer iter.Release()
	batch := new(leveldb.Batch)
	for iter.Next() {
		batch.Delete(iter.Key())
	}
	if err := iter.Error(); err != nil {
		return fmt.Errorf("cache: drop: iterate: %w", err)
	}
	if err := c.db.Write(batch, nil); err != nil {
		return fmt.Errorf("cache: drop: %w", err)
	}
	return nil
}

// Iterate returns a lazy sequence of all (key, value) pairs, used by the
// `hash-cache:dump` administrative operation.
func (c *LevelDB) Iterate() (func(yield func(Entry) bool), error) {
	return func(yield func(Entry) bool) {
		iter := c.db.NewIterator(util.BytesPrefix(nil), nil)
		defer iter.Release()
		for iter.Next() {
			e := Entry{Key: string(iter.Key()), Value: string(iter.Value())}
			if !yield(e) {
				return
			}
		}
	}, nil
}

// OIDKey builds the `<OID>` -> `<CID>` key for a Git object translation.
func OIDKey(oid string) string { return prefixOID + oid }

// ModesKey builds the `modes:<OID>` -> `<modesCID>` key for a tree's mode
// companion object.
func ModesKey(oid string) string { return prefixModes + oid }

// CIDKey builds the `<CID>` -> `<OID>` reverse-lookup key used on fetch.
func CIDKey(cid string) string { return prefixCID + cid }
