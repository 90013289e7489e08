// Package ipfsfake is an in-memory implementation of internal/ipfs.Client
// used by tests in place of a real Kubo daemon. Content is hashed with the
// same go-cid/multihash machinery a real node uses for its on-disk object
// files, but kept in memory and tagged with a codec so Ls can tell UnixFS
// directories from opaque blobs.
package ipfsfake

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	gocid "github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	"github.com/dhappy/git-remote-igis/internal/ipfs"
	"github.com/dhappy/git-remote-igis/internal/model"
)

type kind int

const (
	kindRaw kind = iota
	kindDir
	kindCBOR
)

type object struct {
	kind  kind
	data  []byte // raw bytes (kindRaw) or dag-cbor bytes (kindCBOR)
	links []ipfs.DirEntry
}

// Store is an in-memory content-addressed block store that also implements
// ipfs.Client, so the same type serves as both the fake transport and the
// fake backing store in tests.
type Store struct {
	mu      sync.Mutex
	objects map[string]object
	pinned  map[string]bool
}

// New creates an empty Store, pre-seeded with the canonical empty UnixFS
// directory CID.
func New() *Store {
	s := &Store{
		objects: make(map[string]object),
		pinned:  make(map[string]bool),
	}
	s.objects[string(model.EmptyRepoCID)] = object{kind: kindDir}
	return s
}

func computeCID(data []byte, codec uint64) (string, error) {
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("ipfsfake: multihash: %w", err)
	}
	return gocid.NewCidV1(codec, mh).String(), nil
}

// Add implements ipfs.Client.
func (s *Store) Add(_ context.Context, content []byte, pin bool) (string, error) {
	cid, err := computeCID(content, gocid.Raw)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[cid] = object{kind: kindRaw, data: content}
	if pin {
		s.pinned[cid] = true
	}
	return cid, nil
}

// Cat implements ipfs.Client.
func (s *Store) Cat(_ context.Context, cid string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[cid]
	if !ok {
		return nil, fmt.Errorf("ipfsfake: cat: no such object %s", cid)
	}
	return obj.data, nil
}

// Ls implements ipfs.Client.
func (s *Store) Ls(_ context.Context, cid string) ([]ipfs.DirEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[cid]
	if !ok {
		return nil, fmt.Errorf("ipfsfake: ls: no such object %s", cid)
	}
	if obj.kind != kindDir {
		return nil, fmt.Errorf("ipfsfake: ls: %s is not a directory", cid)
	}
	out := make([]ipfs.DirEntry, len(obj.links))
	copy(out, obj.links)
	return out, nil
}

// DagPut implements ipfs.Client.
func (s *Store) DagPut(_ context.Context, data []byte, pin bool) (string, error) {
	cid, err := computeCID(data, gocid.DagCBOR)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[cid] = object{kind: kindCBOR, data: data}
	if pin {
		s.pinned[cid] = true
	}
	return cid, nil
}

// DagGet implements ipfs.Client.
func (s *Store) DagGet(_ context.Context, cid string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[cid]
	if !ok || obj.kind != kindCBOR {
		return nil, fmt.Errorf("ipfsfake: dag get: no such node %s", cid)
	}
	return obj.data, nil
}

// PatchAddLink implements ipfs.Client.
func (s *Store) PatchAddLink(_ context.Context, base, name, target string, create, pin bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var links []ipfs.DirEntry
	if base != "" {
		obj, ok := s.objects[base]
		if !ok {
			if !create {
				return "", fmt.Errorf("ipfsfake: patch add-link: no such directory %s", base)
			}
		} else {
			links = append(links, obj.links...)
		}
	}

	_, isDir := s.lookupDirType(target)
	links = append(links, ipfs.DirEntry{Name: name, CID: target, Dir: isDir})

	// Deterministic content hash derived from the link set, in insertion
	// order: tree entry order follows the source Git tree.
	encoded, err := json.Marshal(links)
	if err != nil {
		return "", fmt.Errorf("ipfsfake: patch add-link: encode: %w", err)
	}
	cid, err := computeCID(encoded, gocid.DagProtobuf)
	if err != nil {
		return "", err
	}
	s.objects[cid] = object{kind: kindDir, links: links}
	if pin {
		s.pinned[cid] = true
	}
	return cid, nil
}

func (s *Store) lookupDirType(cid string) (kind, bool) {
	obj, ok := s.objects[cid]
	if !ok {
		return 0, false
	}
	return obj.kind, obj.kind == kindDir
}

// Pin implements ipfs.Client.
func (s *Store) Pin(_ context.Context, cid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[cid]; !ok {
		return fmt.Errorf("ipfsfake: pin: no such object %s", cid)
	}
	s.pinned[cid] = true
	return nil
}

// IsPinned reports whether cid has been pinned, for test assertions.
func (s *Store) IsPinned(cid string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pinned[cid]
}
