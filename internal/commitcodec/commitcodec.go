// Package commitcodec implements the Commit Serializer/Deserializer:
// translating a Git commit (and, recursively, its ancestry and tree) to and
// from a dag-cbor model.CommitNode, coalescing concurrent translations of
// the same commit through internal/resolve.
package commitcodec

import (
	"context"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/sync/errgroup"

	"github.com/dhappy/git-remote-igis/internal/cache"
	"github.com/dhappy/git-remote-igis/internal/gitrepo"
	"github.com/dhappy/git-remote-igis/internal/igiserr"
	"github.com/dhappy/git-remote-igis/internal/ipfs"
	"github.com/dhappy/git-remote-igis/internal/model"
	"github.com/dhappy/git-remote-igis/internal/resolve"
	"github.com/dhappy/git-remote-igis/internal/treecodec"
)

// Pusher drives the push path's commit serialization.
type Pusher struct {
	Git      *gitrepo.Repo
	IPFS     ipfs.Client
	Cache    cache.Cache
	Resolver *resolve.Resolver
	Tree     *treecodec.Pusher
}

// PushCommit translates oid and its full ancestry into dag-cbor
// model.CommitNode chains, returning the CID of oid's own node.
func (p *Pusher) PushCommit(ctx context.Context, oid model.OID) (model.CID, error) {
	return p.Resolver.ResolvePush(oid, func() (model.CID, error) {
		oidKey := cache.OIDKey(string(oid))
		if cached, ok, err := p.Cache.Get(oidKey); err != nil {
			return "", fmt.Errorf("commitcodec: cache get %s: %w", oidKey, err)
		} else if ok {
			return model.CID(cached), nil
		}

		info, err := p.Git.CommitByOID(oid)
		if err != nil {
			return "", fmt.Errorf("commitcodec: lookup commit %s: %w", oid, err)
		}

		parentCIDs := make([]string, len(info.Parents))
		g, gctx := errgroup.WithContext(ctx)
		for i, parent := range info.Parents {
			i, parent := i, parent
			g.Go(func() error {
				cid, err := p.PushCommit(gctx, parent)
				if err != nil {
					return err
				}
				parentCIDs[i] = string(cid)
				return nil
			})
		}

		var fsCID, modesCID model.CID
		g.Go(func() error {
			var err error
			fsCID, modesCID, err = p.Tree.PushTree(gctx, info.Tree)
			return err
		})

		if err := g.Wait(); err != nil {
			return "", err
		}

		node := model.CommitNode{
			OID:          string(oid),
			AuthorSig:    info.AuthorSig,
			CommitterSig: info.CommitterSig,
			Encoding:     info.Encoding,
			Message:      info.Message,
			Tree:         string(fsCID),
			Modes:        string(modesCID),
			Parents:      parentCIDs,
			Signature:    info.PGPSignature,
		}
		encoded, err := cbor.Marshal(node)
		if err != nil {
			return "", fmt.Errorf("commitcodec: encode commit %s: %w", oid, err)
		}
		cid, err := p.IPFS.DagPut(ctx, encoded, true)
		if err != nil {
			return "", fmt.Errorf("commitcodec: dag put commit %s: %w", oid, err)
		}

		if err := p.Cache.Put(oidKey, cid); err != nil {
			return "", fmt.Errorf("commitcodec: cache put %s: %w", oidKey, err)
		}
		return model.CID(cid), nil
	})
}

// Fetcher drives the fetch path's commit deserialization.
type Fetcher struct {
	Git      *gitrepo.Repo
	IPFS     ipfs.Client
	Cache    cache.Cache
	Resolver *resolve.Resolver
	Tree     *treecodec.Fetcher
}

// FetchCommit reconstructs a Git commit, and its full ancestry, from cid and
// returns its OID.
func (f *Fetcher) FetchCommit(ctx context.Context, cid model.CID) (model.OID, error) {
	return f.Resolver.ResolveFetch(f.Cache, cid, func() (model.OID, error) {
		raw, err := f.IPFS.DagGet(ctx, string(cid))
		if err != nil {
			return "", fmt.Errorf("commitcodec: dag get %s: %w", cid, err)
		}
		var node model.CommitNode
		if err := cbor.Unmarshal(raw, &node); err != nil {
			return "", fmt.Errorf("commitcodec: decode %s: %w", cid, err)
		}

		if node.OID != "" && f.Git.ObjectExists(model.OID(node.OID)) {
			if err := f.cachePut(cid, node.OID); err != nil {
				return "", err
			}
			return model.OID(node.OID), nil
		}

		parentOIDs := make([]model.OID, len(node.Parents))
		g, gctx := errgroup.WithContext(ctx)
		for i, parentCID := range node.Parents {
			i, parentCID := i, parentCID
			g.Go(func() error {
				oid, err := f.FetchCommit(gctx, model.CID(parentCID))
				if err != nil {
					return err
				}
				parentOIDs[i] = oid
				return nil
			})
		}

		var treeOID model.OID
		g.Go(func() error {
			var err error
			treeOID, err = f.Tree.FetchTree(gctx, model.CID(node.Tree), model.CID(node.Modes))
			return err
		})

		if err := g.Wait(); err != nil {
			return "", err
		}

		oid, err := f.Git.CreateCommit(gitrepo.CommitInfo{
			Tree:         treeOID,
			Parents:      parentOIDs,
			AuthorSig:    node.AuthorSig,
			CommitterSig: node.CommitterSig,
			Encoding:     node.Encoding,
			Message:      node.Message,
			PGPSignature: node.Signature,
		})
		if err != nil {
			return "", fmt.Errorf("commitcodec: create commit for %s: %w", cid, err)
		}
		if node.OID != "" && string(oid) != node.OID {
			return "", fmt.Errorf("%w: node %s recorded %s, reconstructed %s", igiserr.ErrSignatureMismatch, cid, node.OID, oid)
		}
		if err := f.cachePut(cid, string(oid)); err != nil {
			return "", err
		}
		return oid, nil
	})
}

func (f *Fetcher) cachePut(cid model.CID, oid string) error {
	key := cache.CIDKey(string(cid))
	if err := f.Cache.Put(key, oid); err != nil {
		return fmt.Errorf("commitcodec: cache put %s: %w", key, err)
	}
	return nil
}
