// Package treecodec implements the Tree Serializer/Deserializer: converting
// a Git tree into a UnixFS directory plus a dag-cbor mode map, and back.
package treecodec

import (
	"context"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/sync/errgroup"

	"github.com/dhappy/git-remote-igis/internal/cache"
	"github.com/dhappy/git-remote-igis/internal/gitrepo"
	"github.com/dhappy/git-remote-igis/internal/igislog"
	"github.com/dhappy/git-remote-igis/internal/ipfs"
	"github.com/dhappy/git-remote-igis/internal/model"
)

// entryResult is what fan-out resolution of one tree entry produces, folded
// sequentially into the directory afterwards: addLink order must follow the
// Git tree's natural order even though resolution itself is concurrent.
type entryResult struct {
	name       string
	mode       model.FileMode
	cid        model.CID
	childModes model.CID // set only when mode == ModeDir
	skip       bool
}

// Pusher drives the push path's tree serialization.
type Pusher struct {
	Git   *gitrepo.Repo
	IPFS  ipfs.Client
	Cache cache.Cache
}

// PushTree walks tree and returns (fsCID, modesCID).
func (p *Pusher) PushTree(ctx context.Context, tree model.OID) (model.CID, model.CID, error) {
	entries, err := p.Git.TreeEntries(tree)
	if err != nil {
		return "", "", fmt.Errorf("treecodec: push %s: %w", tree, err)
	}

	results := make([]entryResult, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	for i, e := range entries {
		i, e := i, e
		g.Go(func() error {
			r, err := p.pushEntry(gctx, e)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", "", err
	}

	base := model.EmptyRepoCID
	modes := make(map[string]interface{}, len(results))
	for _, r := range results {
		if r.skip {
			continue
		}
		next, err := p.IPFS.PatchAddLink(ctx, string(base), r.name, string(r.cid), false, true)
		if err != nil {
			return "", "", fmt.Errorf("treecodec: add-link %s: %w", r.name, err)
		}
		base = model.CID(next)
		if r.mode == model.ModeDir {
			modes[r.name] = string(r.childModes)
		} else {
			modes[r.name] = uint32(r.mode)
		}
	}

	encoded, err := cbor.Marshal(modes)
	if err != nil {
		return "", "", fmt.Errorf("treecodec: encode modes: %w", err)
	}
	modesCID, err := p.IPFS.DagPut(ctx, encoded, true)
	if err != nil {
		return "", "", fmt.Errorf("treecodec: dag put modes: %w", err)
	}
	return base, model.CID(modesCID), nil
}

func (p *Pusher) pushEntry(ctx context.Context, e gitrepo.TreeEntry) (entryResult, error) {
	if e.Mode == model.ModeDir {
		return p.pushDirEntry(ctx, e)
	}
	if e.Mode.IsBlob() {
		return p.pushBlobEntry(ctx, e)
	}
	igislog.Warnf("skipping unrepresentable tree entry %s (mode %o)", e.Name, e.Mode)
	return entryResult{name: e.Name, skip: true}, nil
}

func (p *Pusher) pushDirEntry(ctx context.Context, e gitrepo.TreeEntry) (entryResult, error) {
	oidKey := cache.OIDKey(string(e.OID))
	modesKey := cache.ModesKey(string(e.OID))

	cid, cidOK, err := p.Cache.Get(oidKey)
	if err != nil {
		return entryResult{}, fmt.Errorf("treecodec: cache get %s: %w", oidKey, err)
	}
	childModes, modesOK, err := p.Cache.Get(modesKey)
	if err != nil {
		return entryResult{}, fmt.Errorf("treecodec: cache get %s: %w", modesKey, err)
	}

	if !cidOK || !modesOK {
		fsCID, modesCID, err := p.PushTree(ctx, e.OID)
		if err != nil {
			return entryResult{}, err
		}
		cid, childModes = string(fsCID), string(modesCID)
		if err := p.Cache.Put(oidKey, cid); err != nil {
			return entryResult{}, fmt.Errorf("treecodec: cache put %s: %w", oidKey, err)
		}
		if err := p.Cache.Put(modesKey, childModes); err != nil {
			return entryResult{}, fmt.Errorf("treecodec: cache put %s: %w", modesKey, err)
		}
	}

	return entryResult{name: e.Name, mode: model.ModeDir, cid: model.CID(cid), childModes: model.CID(childModes)}, nil
}

func (p *Pusher) pushBlobEntry(ctx context.Context, e gitrepo.TreeEntry) (entryResult, error) {
	oidKey := cache.OIDKey(string(e.OID))
	cid, ok, err := p.Cache.Get(oidKey)
	if err != nil {
		return entryResult{}, fmt.Errorf("treecodec: cache get %s: %w", oidKey, err)
	}
	if !ok {
		data, err := p.Git.Blob(e.OID)
		if err != nil {
			return entryResult{}, fmt.Errorf("treecodec: read blob %s: %w", e.OID, err)
		}
		added, err := p.IPFS.Add(ctx, data, true)
		if err != nil {
			return entryResult{}, fmt.Errorf("treecodec: add blob %s: %w", e.OID, err)
		}
		cid = added
		if err := p.Cache.Put(oidKey, cid); err != nil {
			return entryResult{}, fmt.Errorf("treecodec: cache put %s: %w", oidKey, err)
		}
	}
	return entryResult{name: e.Name, mode: e.Mode, cid: model.CID(cid)}, nil
}

// Fetcher drives the fetch path's tree deserialization.
type Fetcher struct {
	Git   *gitrepo.Repo
	IPFS  ipfs.Client
	Cache cache.Cache
}

// FetchTree reconstructs a Git tree from (fsCID, modesCID) and returns its
// OID.
func (f *Fetcher) FetchTree(ctx context.Context, fsCID, modesCID model.CID) (model.OID, error) {
	listing, err := f.IPFS.Ls(ctx, string(fsCID))
	if err != nil {
		return "", fmt.Errorf("treecodec: ls %s: %w", fsCID, err)
	}
	modesRaw, err := f.IPFS.DagGet(ctx, string(modesCID))
	if err != nil {
		return "", fmt.Errorf("treecodec: dag get modes %s: %w", modesCID, err)
	}
	var modes map[string]interface{}
	if err := cbor.Unmarshal(modesRaw, &modes); err != nil {
		return "", fmt.Errorf("treecodec: decode modes %s: %w", modesCID, err)
	}

	entries := make([]gitrepo.TreeEntry, len(listing))
	g, gctx := errgroup.WithContext(ctx)
	for i, l := range listing {
		i, l := i, l
		g.Go(func() error {
			e, err := f.fetchEntry(gctx, l, modes[l.Name])
			if err != nil {
				return err
			}
			entries[i] = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	oid, err := f.Git.CreateTree(entries)
	if err != nil {
		return "", fmt.Errorf("treecodec: create tree: %w", err)
	}
	return oid, nil
}

func (f *Fetcher) fetchEntry(ctx context.Context, l ipfs.DirEntry, modeVal interface{}) (gitrepo.TreeEntry, error) {
	if l.Dir {
		childModesCID, _ := modeVal.(string)
		oid, ok, err := f.Cache.Get(cache.CIDKey(l.CID))
		if err != nil {
			return gitrepo.TreeEntry{}, fmt.Errorf("treecodec: cache get %s: %w", l.CID, err)
		}
		if ok && f.Git.ObjectExists(model.OID(oid)) {
			return gitrepo.TreeEntry{Name: l.Name, Mode: model.ModeDir, OID: model.OID(oid)}, nil
		}
		childOID, err := f.FetchTree(ctx, model.CID(l.CID), model.CID(childModesCID))
		if err != nil {
			return gitrepo.TreeEntry{}, err
		}
		if err := f.cachePut(l.CID, string(childOID)); err != nil {
			return gitrepo.TreeEntry{}, err
		}
		return gitrepo.TreeEntry{Name: l.Name, Mode: model.ModeDir, OID: childOID}, nil
	}

	mode := model.ModeFile
	switch v := modeVal.(type) {
	case uint64:
		mode = model.FileMode(v)
	case uint32:
		mode = model.FileMode(v)
	case int64:
		mode = model.FileMode(v)
	}

	oid, ok, err := f.Cache.Get(cache.CIDKey(l.CID))
	if err != nil {
		return gitrepo.TreeEntry{}, fmt.Errorf("treecodec: cache get %s: %w", l.CID, err)
	}
	if ok && f.Git.ObjectExists(model.OID(oid)) {
		return gitrepo.TreeEntry{Name: l.Name, Mode: mode, OID: model.OID(oid)}, nil
	}
	data, err := f.IPFS.Cat(ctx, l.CID)
	if err != nil {
		return gitrepo.TreeEntry{}, fmt.Errorf("treecodec: cat %s: %w", l.CID, err)
	}
	blobOID, err := f.Git.CreateBlob(data)
	if err != nil {
		return gitrepo.TreeEntry{}, fmt.Errorf("treecodec: create blob: %w", err)
	}
	if err := f.cachePut(l.CID, string(blobOID)); err != nil {
		return gitrepo.TreeEntry{}, err
	}
	return gitrepo.TreeEntry{Name: l.Name, Mode: mode, OID: blobOID}, nil
}

func (f *Fetcher) cachePut(cidStr, oidStr string) error {
	if err := f.Cache.Put(cache.CIDKey(cidStr), oidStr); err != nil {
		return fmt.Errorf("treecodec: cache put %s: %w", cidStr, err)
	}
	return nil
}
