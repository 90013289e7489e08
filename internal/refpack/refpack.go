// Package refpack implements the Ref Pack Builder: it accumulates a push
// batch's (ref, CID) results into a VFS root, mints or
// preserves the stable uuid, picks HEAD and the working-tree base, and
// attaches the VFS root to that base as `.git` to produce the final root
// CID.
package refpack

import (
	"context"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/dhappy/git-remote-igis/internal/igiserr"
	"github.com/dhappy/git-remote-igis/internal/ipfs"
	"github.com/dhappy/git-remote-igis/internal/model"
)

// PushResult is one successfully pushed ref, as recorded by the core after
// the commit or tag codec has produced its CID.
type PushResult struct {
	// DstRef is the full ref path, e.g. "refs/heads/master" or "refs/tags/v1".
	DstRef string
	// RefCID is the CID stored at vfs.refs[kind][name] — a commit CID for a
	// branch, a tag or commit CID for a tag.
	RefCID model.CID
	// CommitCID is the underlying commit's CID, used to locate the
	// working-tree base (for a tag result this is the tag's target commit,
	// not the tag node itself).
	CommitCID model.CID
}

// Builder accumulates one push batch into a VFSRoot.
type Builder struct {
	IPFS  ipfs.Client
	VFS   model.VFSRoot
	first *PushResult
}

// NewBuilder creates a Builder with an empty VFS root. Callers that are
// continuing an existing remote should call Preload first.
func NewBuilder(client ipfs.Client) *Builder {
	b := &Builder{IPFS: client}
	b.VFS.EnsureRefs()
	return b
}

// Preload reads the VFS root already attached to remoteRootCID's `.git`
// link, so a later push is additive: untouched refs persist and the stable
// uuid/name carry forward.
func (b *Builder) Preload(ctx context.Context, remoteRootCID model.CID) error {
	listing, err := b.IPFS.Ls(ctx, string(remoteRootCID))
	if err != nil {
		return fmt.Errorf("refpack: preload: ls %s: %w", remoteRootCID, err)
	}
	var gitCID string
	for _, e := range listing {
		if e.Name == ".git" {
			gitCID = e.CID
			break
		}
	}
	if gitCID == "" {
		return fmt.Errorf("%w: %s has no .git link", igiserr.ErrMalformedNode, remoteRootCID)
	}
	raw, err := b.IPFS.DagGet(ctx, gitCID)
	if err != nil {
		return fmt.Errorf("refpack: preload: dag get %s: %w", gitCID, err)
	}
	var vfs model.VFSRoot
	if err := cbor.Unmarshal(raw, &vfs); err != nil {
		return fmt.Errorf("refpack: preload: decode %s: %w", gitCID, err)
	}
	vfs.EnsureRefs()
	b.VFS = vfs
	return nil
}

// SetName sets the repo name from an `ipfs://<name>` push URL. Caller-
// provided fields win over a preloaded value.
func (b *Builder) SetName(name string) {
	if name != "" {
		b.VFS.Name = name
	}
}

// Record files one successful push result into the VFS root: it extends
// vfs.refs[kind][name], picks HEAD if this is the batch's first result, and
// remembers the first result for the working-tree base lookup in Finalize.
func (b *Builder) Record(result PushResult) error {
	trimmed := strings.TrimPrefix(result.DstRef, "refs/")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || (parts[0] != "heads" && parts[0] != "tags") {
		return fmt.Errorf("refpack: unrecognized ref %q", result.DstRef)
	}
	kind, name := parts[0], parts[1]

	b.VFS.EnsureRefs()
	b.VFS.Refs[kind][name] = string(result.RefCID)

	if b.first == nil {
		r := result
		b.first = &r
		b.VFS.HEAD = result.DstRef
	}
	return nil
}

// EnsureUUID mints a UUIDv1 if the VFS root has none yet: a fresh
// ipfs://<name> push mints a new one, while a preloaded continuation push
// keeps its existing uuid stable.
func (b *Builder) EnsureUUID() error {
	if b.VFS.UUID != "" {
		return nil
	}
	id, err := uuid.NewUUID()
	if err != nil {
		return fmt.Errorf("refpack: mint uuid: %w", err)
	}
	b.VFS.UUID = id.String()
	return nil
}

// Finalize writes the accumulated VFS root as a pinned dag-cbor node,
// attaches it as `.git` to the working-tree base of the batch's first push
// result, pins the resulting root, and returns its CID.
func (b *Builder) Finalize(ctx context.Context) (model.CID, error) {
	if b.first == nil {
		return "", fmt.Errorf("refpack: finalize: no successful push results recorded")
	}
	if err := b.EnsureUUID(); err != nil {
		return "", err
	}

	commitRaw, err := b.IPFS.DagGet(ctx, string(b.first.CommitCID))
	if err != nil {
		return "", fmt.Errorf("refpack: finalize: dag get %s: %w", b.first.CommitCID, err)
	}
	var commitNode model.CommitNode
	if err := cbor.Unmarshal(commitRaw, &commitNode); err != nil {
		return "", fmt.Errorf("refpack: finalize: decode commit %s: %w", b.first.CommitCID, err)
	}
	if commitNode.Tree == "" {
		return "", fmt.Errorf("%w: commit %s has no tree", igiserr.ErrMalformedNode, b.first.CommitCID)
	}
	workTree := commitNode.Tree

	vfsEncoded, err := cbor.Marshal(b.VFS)
	if err != nil {
		return "", fmt.Errorf("refpack: finalize: encode vfs: %w", err)
	}
	vfsCID, err := b.IPFS.DagPut(ctx, vfsEncoded, true)
	if err != nil {
		return "", fmt.Errorf("refpack: finalize: dag put vfs: %w", err)
	}

	rootCID, err := b.IPFS.PatchAddLink(ctx, workTree, ".git", vfsCID, true, true)
	if err != nil {
		return "", fmt.Errorf("refpack: finalize: attach .git: %w", err)
	}
	if err := b.IPFS.Pin(ctx, rootCID); err != nil {
		return "", fmt.Errorf("refpack: finalize: pin root: %w", err)
	}
	return model.CID(rootCID), nil
}
