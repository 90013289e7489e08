package tagcodec

import (
	"context"
	"testing"

	"github.com/dhappy/git-remote-igis/internal/cache"
	"github.com/dhappy/git-remote-igis/internal/commitcodec"
	"github.com/dhappy/git-remote-igis/internal/gitrepo"
	"github.com/dhappy/git-remote-igis/internal/ipfsfake"
	"github.com/dhappy/git-remote-igis/internal/model"
	"github.com/dhappy/git-remote-igis/internal/resolve"
	"github.com/dhappy/git-remote-igis/internal/treecodec"
)

func TestPushFetchAnnotatedTagRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo, err := gitrepo.OpenInMemory()
	if err != nil {
		t.Fatal(err)
	}
	treeOID, err := repo.CreateTree(nil)
	if err != nil {
		t.Fatal(err)
	}
	sig := model.Signature{Name: "A", Email: "a@example.com", Time: 1, Offset: 0}
	commitOID, err := repo.CreateCommit(gitrepo.CommitInfo{Tree: treeOID, AuthorSig: sig, CommitterSig: sig, Message: "m\n"})
	if err != nil {
		t.Fatal(err)
	}
	tagOID, err := repo.CreateAnnotatedTag(gitrepo.TagInfo{
		Name:      "v1.0.0",
		Target:    commitOID,
		TaggerSig: sig,
		Message:   "release\n",
	})
	if err != nil {
		t.Fatal(err)
	}

	store := ipfsfake.New()
	pushCache := cache.NewMem()
	commitPusher := &commitcodec.Pusher{
		Git: repo, IPFS: store, Cache: pushCache, Resolver: resolve.New(),
		Tree: &treecodec.Pusher{Git: repo, IPFS: store, Cache: pushCache},
	}
	tagPusher := &Pusher{Git: repo, IPFS: store, Commits: commitPusher}

	cid, commitCID, err := tagPusher.PushTag(ctx, tagOID, "v1.0.0")
	if err != nil {
		t.Fatal(err)
	}
	if commitCID == "" {
		t.Fatal("got empty commit CID")
	}

	fetchRepo, err := gitrepo.OpenInMemory()
	if err != nil {
		t.Fatal(err)
	}
	fetchCache := cache.NewMem()
	commitFetcher := &commitcodec.Fetcher{
		Git: fetchRepo, IPFS: store, Cache: fetchCache, Resolver: resolve.New(),
		Tree: &treecodec.Fetcher{Git: fetchRepo, IPFS: store, Cache: fetchCache},
	}
	tagFetcher := &Fetcher{Git: fetchRepo, IPFS: store, Commits: commitFetcher}

	gotOID, err := tagFetcher.FetchTag(ctx, cid, "v1.0.0")
	if err != nil {
		t.Fatal(err)
	}
	info, err := fetchRepo.TagByOID(gotOID)
	if err != nil {
		t.Fatal(err)
	}
	if info.Name != "v1.0.0" || info.Message != "release\n" {
		t.Errorf("got %+v", info)
	}
}

func TestPushFetchLightweightTagRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo, err := gitrepo.OpenInMemory()
	if err != nil {
		t.Fatal(err)
	}
	treeOID, err := repo.CreateTree(nil)
	if err != nil {
		t.Fatal(err)
	}
	sig := model.Signature{Name: "A", Email: "a@example.com", Time: 1, Offset: 0}
	commitOID, err := repo.CreateCommit(gitrepo.CommitInfo{Tree: treeOID, AuthorSig: sig, CommitterSig: sig, Message: "m\n"})
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.CreateLightweightTag("v0.1", commitOID); err != nil {
		t.Fatal(err)
	}

	store := ipfsfake.New()
	pushCache := cache.NewMem()
	commitPusher := &commitcodec.Pusher{
		Git: repo, IPFS: store, Cache: pushCache, Resolver: resolve.New(),
		Tree: &treecodec.Pusher{Git: repo, IPFS: store, Cache: pushCache},
	}
	tagPusher := &Pusher{Git: repo, IPFS: store, Commits: commitPusher}

	cid, commitCID, err := tagPusher.PushTag(ctx, commitOID, "v0.1")
	if err != nil {
		t.Fatal(err)
	}
	if commitCID != cid {
		t.Errorf("lightweight tag: got commitCID %q, refCID %q, want equal", commitCID, cid)
	}

	fetchRepo, err := gitrepo.OpenInMemory()
	if err != nil {
		t.Fatal(err)
	}
	fetchCache := cache.NewMem()
	commitFetcher := &commitcodec.Fetcher{
		Git: fetchRepo, IPFS: store, Cache: fetchCache, Resolver: resolve.New(),
		Tree: &treecodec.Fetcher{Git: fetchRepo, IPFS: store, Cache: fetchCache},
	}
	tagFetcher := &Fetcher{Git: fetchRepo, IPFS: store, Commits: commitFetcher}

	gotOID, err := tagFetcher.FetchTag(ctx, cid, "v0.1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fetchRepo.TagByOID(gotOID); err == nil {
		t.Fatal("expected ErrTagNotATag for a lightweight tag's target commit")
	}
	resolved, err := fetchRepo.ResolveRef("refs/tags/v0.1")
	if err != nil {
		t.Fatal(err)
	}
	if resolved != gotOID {
		t.Errorf("got ref %s, want %s", resolved, gotOID)
	}
}
