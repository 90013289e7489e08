// Package core wires the gitrepo, ipfs, cache, resolve, treecodec,
// commitcodec, tagcodec, and refpack components into the three entry points
// the CLI driver calls: SerializeRefs, DoFetch, and DoPush. It owns no stdio
// framing — that belongs to cmd/git-remote-igis.
package core

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/fxamacker/cbor/v2"

	"github.com/dhappy/git-remote-igis/internal/cache"
	"github.com/dhappy/git-remote-igis/internal/commitcodec"
	"github.com/dhappy/git-remote-igis/internal/gitrepo"
	"github.com/dhappy/git-remote-igis/internal/igiserr"
	"github.com/dhappy/git-remote-igis/internal/igislog"
	"github.com/dhappy/git-remote-igis/internal/ipfs"
	"github.com/dhappy/git-remote-igis/internal/model"
	"github.com/dhappy/git-remote-igis/internal/refpack"
	"github.com/dhappy/git-remote-igis/internal/resolve"
	"github.com/dhappy/git-remote-igis/internal/tagcodec"
	"github.com/dhappy/git-remote-igis/internal/treecodec"
)

// Core is the translation engine: one instance per CLI invocation, holding
// the scoped Git, IPFS, and cache handles. No global state is required.
type Core struct {
	Git   *gitrepo.Repo
	IPFS  ipfs.Client
	Cache cache.Cache

	resolver    *resolve.Resolver
	commitPush  *commitcodec.Pusher
	commitFetch *commitcodec.Fetcher
	tagPush     *tagcodec.Pusher
	tagFetch    *tagcodec.Fetcher
}

// New wires every codec against a shared resolver, cache, Git repo, and IPFS
// client.
func New(git *gitrepo.Repo, ipfsClient ipfs.Client, c cache.Cache) *Core {
	resolver := resolve.New()
	treePush := &treecodec.Pusher{Git: git, IPFS: ipfsClient, Cache: c}
	treeFetch := &treecodec.Fetcher{Git: git, IPFS: ipfsClient, Cache: c}
	commitPush := &commitcodec.Pusher{Git: git, IPFS: ipfsClient, Cache: c, Resolver: resolver, Tree: treePush}
	commitFetch := &commitcodec.Fetcher{Git: git, IPFS: ipfsClient, Cache: c, Resolver: resolver, Tree: treeFetch}
	return &Core{
		Git:         git,
		IPFS:        ipfsClient,
		Cache:       c,
		resolver:    resolver,
		commitPush:  commitPush,
		commitFetch: commitFetch,
		tagPush:     &tagcodec.Pusher{Git: git, IPFS: ipfsClient, Commits: commitPush},
		tagFetch:    &tagcodec.Fetcher{Git: git, IPFS: ipfsClient, Commits: commitFetch},
	}
}

// splitRef splits "refs/heads/master" into ("heads", "master") or
// "refs/tags/v1" into ("tags", "v1").
func splitRef(ref string) (kind, name string, err error) {
	trimmed := strings.TrimPrefix(ref, "refs/")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || (parts[0] != "heads" && parts[0] != "tags") {
		return "", "", fmt.Errorf("core: unrecognized ref %q", ref)
	}
	return parts[0], parts[1], nil
}

// PushRequest is one (src, dst) pair from the CLI's `push` command.
type PushRequest struct {
	Src string
	Dst string
}

// PushOutcome is the per-ref result of a push batch. A non-nil Err means the
// CLI must not print `ok <dst>` for that ref; other pushes in the same
// batch still proceed.
type PushOutcome struct {
	Dst string
	Err error
}

// DoPush pushes every (src, dst) pair in reqs. remoteRootCID is the
// continuation root ("" for a brand-new `ipfs://<name>` remote); name is the
// repo name from that URL form. It returns the new root CID and the
// per-ref outcomes.
func (c *Core) DoPush(ctx context.Context, remoteRootCID model.CID, name string, reqs []PushRequest) (model.CID, []PushOutcome, error) {
	builder := refpack.NewBuilder(c.IPFS)
	if remoteRootCID != "" {
		if err := builder.Preload(ctx, remoteRootCID); err != nil {
			return "", nil, err
		}
	}
	builder.SetName(name)

	outcomes := make([]PushOutcome, 0, len(reqs))
	for _, req := range reqs {
		refCID, commitCID, err := c.pushOne(ctx, req)
		if err != nil {
			igislog.Warnf("push %s: %v", req.Dst, err)
			outcomes = append(outcomes, PushOutcome{Dst: req.Dst, Err: err})
			continue
		}
		if err := builder.Record(refpack.PushResult{DstRef: req.Dst, RefCID: refCID, CommitCID: commitCID}); err != nil {
			igislog.Warnf("push %s: %v", req.Dst, err)
			outcomes = append(outcomes, PushOutcome{Dst: req.Dst, Err: err})
			continue
		}
		outcomes = append(outcomes, PushOutcome{Dst: req.Dst})
	}

	anySucceeded := false
	for _, o := range outcomes {
		if o.Err == nil {
			anySucceeded = true
			break
		}
	}
	if !anySucceeded {
		return "", outcomes, fmt.Errorf("core: push: no refs succeeded")
	}

	rootCID, err := builder.Finalize(ctx)
	if err != nil {
		return "", outcomes, err
	}
	return rootCID, outcomes, nil
}

func (c *Core) pushOne(ctx context.Context, req PushRequest) (refCID, commitCID model.CID, err error) {
	oid, err := c.Git.ResolveRef(req.Src)
	if err != nil {
		return "", "", fmt.Errorf("resolve %s: %w", req.Src, err)
	}
	kind, name, err := splitRef(req.Dst)
	if err != nil {
		return "", "", err
	}
	if kind == "tags" {
		return c.tagPush.PushTag(ctx, oid, name)
	}
	cid, err := c.commitPush.PushCommit(ctx, oid)
	if err != nil {
		return "", "", err
	}
	return cid, cid, nil
}

// FetchRequest is one (hash, ref) pair from the CLI's `fetch` command. Hash
// is the OID SerializeRefs previously emitted for ref; it is not
// otherwise consulted — the core trusts its own VFS lookup.
type FetchRequest struct {
	Hash model.OID
	Ref  string
}

// DoFetch fetches every listed ref from remoteRootCID's VFS metadata tree,
// creates or updates the corresponding local branch/tag, and restores HEAD
// from the remote's recorded HEAD.
func (c *Core) DoFetch(ctx context.Context, remoteRootCID model.CID, reqs []FetchRequest) error {
	builder := refpack.NewBuilder(c.IPFS)
	if err := builder.Preload(ctx, remoteRootCID); err != nil {
		return fmt.Errorf("core: fetch: %w", err)
	}
	vfs := builder.VFS

	for _, req := range reqs {
		if err := c.fetchOne(ctx, vfs, req); err != nil {
			igislog.Warnf("fetch %s: %v", req.Ref, err)
		}
	}

	if vfs.HEAD != "" {
		if err := c.Git.SetHEAD(vfs.HEAD); err != nil {
			return fmt.Errorf("core: fetch: restore HEAD: %w", err)
		}
	}
	return nil
}

func (c *Core) fetchOne(ctx context.Context, vfs model.VFSRoot, req FetchRequest) error {
	kind, name, err := splitRef(req.Ref)
	if err != nil {
		return err
	}
	cidStr, ok := vfs.Refs[kind][name]
	if !ok {
		return fmt.Errorf("no such ref %s in remote", req.Ref)
	}

	if kind == "tags" {
		_, err := c.tagFetch.FetchTag(ctx, model.CID(cidStr), name)
		return err
	}

	oid, err := c.commitFetch.FetchCommit(ctx, model.CID(cidStr))
	if err != nil {
		return err
	}
	return c.Git.SetBranch(name, oid)
}

// refOID is the shared shape of CommitNode and TagNode's leading field,
// enough to answer `list` without a full fetch.
type refOID struct {
	OID string `cbor:"oid"`
}

// SerializeRefs answers Git's `list` command: one line per ref,
// "<oid> <ref-path>", plus a symref line for HEAD.
func (c *Core) SerializeRefs(ctx context.Context, vfs model.VFSRoot) ([]string, error) {
	var lines []string
	for kind, byName := range vfs.Refs {
		for name, cidStr := range byName {
			oid, err := c.readOID(ctx, cidStr)
			if err != nil {
				return nil, fmt.Errorf("core: serialize refs: %s/%s: %w", kind, name, err)
			}
			lines = append(lines, fmt.Sprintf("%s refs/%s/%s", oid, kind, name))
		}
	}
	sort.Strings(lines)
	if vfs.HEAD != "" {
		lines = append(lines, fmt.Sprintf("@%s HEAD", vfs.HEAD))
	}
	return lines, nil
}

func (c *Core) readOID(ctx context.Context, cidStr string) (string, error) {
	raw, err := c.IPFS.DagGet(ctx, cidStr)
	if err != nil {
		return "", fmt.Errorf("dag get %s: %w", cidStr, err)
	}
	var r refOID
	if err := cbor.Unmarshal(raw, &r); err != nil {
		return "", fmt.Errorf("decode %s: %w", cidStr, err)
	}
	if r.OID == "" {
		return "", fmt.Errorf("%w: %s has no oid field", igiserr.ErrMalformedNode, cidStr)
	}
	return r.OID, nil
}
