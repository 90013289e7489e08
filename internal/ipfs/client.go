// Package ipfs is the core's external IPFS collaborator: an HTTP client
// against the Kubo RPC API exposing exactly the calls the
// translation engine needs — dag.get/put, ls, cat, add,
// object.patch.addLink, pin.add. This version adds the dag-cbor and
// UnixFS-directory operations the Git translation layer requires and omits
// IPNS/keystore calls, since no component here needs a feed-publishing
// feature.
package ipfs

import "context"

// DirEntry is one child of a UnixFS directory listing, as returned by `ls`.
type DirEntry struct {
	Name string
	CID  string
	Dir  bool
}

// Client is every IPFS operation the translation engine calls. Every method
// may suspend on network I/O; implementations must return
// *igiserr.IPFSUnavailableError on transport or node failure.
type Client interface {
	// Add streams content into UnixFS, optionally pinning it, and returns
	// the resulting CID.
	Add(ctx context.Context, content []byte, pin bool) (string, error)

	// Cat retrieves the full bytes of a UnixFS file by CID.
	Cat(ctx context.Context, cid string) ([]byte, error)

	// Ls lists the immediate children of a UnixFS directory.
	Ls(ctx context.Context, cid string) ([]DirEntry, error)

	// DagPut serializes data as a dag-cbor node, optionally pinning it, and
	// returns its CID.
	DagPut(ctx context.Context, data []byte, pin bool) (string, error)

	// DagGet fetches the raw dag-cbor bytes of a node by CID.
	DagGet(ctx context.Context, cid string) ([]byte, error)

	// PatchAddLink extends the UnixFS directory at base with a named link
	// to target, creating base first if create is true and base is the
	// zero value, optionally pinning the result.
	PatchAddLink(ctx context.Context, base, name, target string, create, pin bool) (string, error)

	// Pin pins content to prevent garbage collection.
	Pin(ctx context.Context, cid string) error
}
