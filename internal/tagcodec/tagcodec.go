// Package tagcodec implements the Tag Serializer/Deserializer: annotated
// tags become a dag-cbor model.TagNode pointing at their target commit's
// CID; lightweight tags carry no node of their own and are represented
// directly by their target commit's CID. ErrTagNotATag is not surfaced as
// an error here — it is the signal that distinguishes the two cases,
// handled locally in both directions.
package tagcodec

import (
	"errors"
	"fmt"

	"context"

	"github.com/fxamacker/cbor/v2"

	"github.com/dhappy/git-remote-igis/internal/commitcodec"
	"github.com/dhappy/git-remote-igis/internal/gitrepo"
	"github.com/dhappy/git-remote-igis/internal/igiserr"
	"github.com/dhappy/git-remote-igis/internal/ipfs"
	"github.com/dhappy/git-remote-igis/internal/model"
)

// Pusher drives the push path's tag serialization.
type Pusher struct {
	Git     *gitrepo.Repo
	IPFS    ipfs.Client
	Commits *commitcodec.Pusher
}

// PushTag translates the tag oid names into IPFS. It returns refCID, the CID
// that belongs in the VFS root's refs.tags[name] slot, and commitCID, the
// underlying target commit's CID — for a lightweight tag the two are
// identical; for an annotated tag, refCID is the tag node and commitCID is
// its target — needed by the ref pack builder's working-tree base lookup.
func (p *Pusher) PushTag(ctx context.Context, oid model.OID, name string) (refCID, commitCID model.CID, err error) {
	tagInfo, err := p.Git.TagByOID(oid)
	if errors.Is(err, igiserr.ErrTagNotATag) {
		// Lightweight: oid already names the target commit.
		cid, err := p.Commits.PushCommit(ctx, oid)
		return cid, cid, err
	}
	if err != nil {
		return "", "", fmt.Errorf("tagcodec: push %s: %w", oid, err)
	}

	targetCID, err := p.Commits.PushCommit(ctx, tagInfo.Target)
	if err != nil {
		return "", "", err
	}

	taggerSig := tagInfo.TaggerSig
	node := model.TagNode{
		OID:       string(oid),
		Name:      tagInfo.Name,
		Type:      model.TagAnnotated,
		Commit:    string(targetCID),
		TaggerSig: &taggerSig,
		Message:   tagInfo.Message,
		Signature: tagInfo.PGPSignature,
	}
	encoded, err := cbor.Marshal(node)
	if err != nil {
		return "", "", fmt.Errorf("tagcodec: encode %s: %w", oid, err)
	}
	cid, err := p.IPFS.DagPut(ctx, encoded, true)
	if err != nil {
		return "", "", fmt.Errorf("tagcodec: dag put %s: %w", oid, err)
	}
	return model.CID(cid), targetCID, nil
}

// Fetcher drives the fetch path's tag deserialization.
type Fetcher struct {
	Git     *gitrepo.Repo
	IPFS    ipfs.Client
	Commits *commitcodec.Fetcher
}

// FetchTag reconstructs the tag (or lightweight tag ref) name from cid,
// creating refs/tags/<name> and returning the OID it now points at.
func (f *Fetcher) FetchTag(ctx context.Context, cid model.CID, name string) (model.OID, error) {
	raw, err := f.IPFS.DagGet(ctx, string(cid))
	if err != nil {
		return "", fmt.Errorf("tagcodec: dag get %s: %w", cid, err)
	}

	var node model.TagNode
	if err := cbor.Unmarshal(raw, &node); err == nil && node.Type != "" {
		commitOID, err := f.Commits.FetchCommit(ctx, model.CID(node.Commit))
		if err != nil {
			return "", err
		}
		tagName := node.Name
		if tagName == "" {
			tagName = name
		}
		var tagger model.Signature
		if node.TaggerSig != nil {
			tagger = *node.TaggerSig
		}
		tagOID, err := f.Git.CreateAnnotatedTag(gitrepo.TagInfo{
			Name:         tagName,
			Target:       commitOID,
			TaggerSig:    tagger,
			Message:      node.Message,
			PGPSignature: node.Signature,
		})
		if err != nil {
			return "", fmt.Errorf("tagcodec: create annotated tag %s: %w", name, err)
		}
		return tagOID, nil
	}

	commitOID, err := f.Commits.FetchCommit(ctx, cid)
	if err != nil {
		return "", err
	}
	if err := f.Git.CreateLightweightTag(name, commitOID); err != nil {
		return "", fmt.Errorf("tagcodec: create lightweight tag %s: %w", name, err)
	}
	return commitOID, nil
}
