package commitcodec

import (
	"context"
	"testing"

	"github.com/dhappy/git-remote-igis/internal/cache"
	"github.com/dhappy/git-remote-igis/internal/gitrepo"
	"github.com/dhappy/git-remote-igis/internal/ipfsfake"
	"github.com/dhappy/git-remote-igis/internal/model"
	"github.com/dhappy/git-remote-igis/internal/resolve"
	"github.com/dhappy/git-remote-igis/internal/treecodec"
)

func TestPushFetchCommitChainRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo, err := gitrepo.OpenInMemory()
	if err != nil {
		t.Fatal(err)
	}

	rootTree, err := repo.CreateTree(nil)
	if err != nil {
		t.Fatal(err)
	}
	sig := model.Signature{Name: "A", Email: "a@example.com", Time: 1000, Offset: 60}
	parentOID, err := repo.CreateCommit(gitrepo.CommitInfo{
		Tree:         rootTree,
		AuthorSig:    sig,
		CommitterSig: sig,
		Message:      "first\n",
	})
	if err != nil {
		t.Fatal(err)
	}
	childOID, err := repo.CreateCommit(gitrepo.CommitInfo{
		Tree:         rootTree,
		Parents:      []model.OID{parentOID},
		AuthorSig:    sig,
		CommitterSig: sig,
		Message:      "second\n",
	})
	if err != nil {
		t.Fatal(err)
	}

	store := ipfsfake.New()
	pushCache := cache.NewMem()
	pusher := &Pusher{
		Git:      repo,
		IPFS:     store,
		Cache:    pushCache,
		Resolver: resolve.New(),
		Tree:     &treecodec.Pusher{Git: repo, IPFS: store, Cache: pushCache},
	}

	cid, err := pusher.PushCommit(ctx, childOID)
	if err != nil {
		t.Fatal(err)
	}
	if cid == "" {
		t.Fatal("got empty commit CID")
	}

	fetchRepo, err := gitrepo.OpenInMemory()
	if err != nil {
		t.Fatal(err)
	}
	fetchCache := cache.NewMem()
	fetcher := &Fetcher{
		Git:      fetchRepo,
		IPFS:     store,
		Cache:    fetchCache,
		Resolver: resolve.New(),
		Tree:     &treecodec.Fetcher{Git: fetchRepo, IPFS: store, Cache: fetchCache},
	}

	gotChildOID, err := fetcher.FetchCommit(ctx, cid)
	if err != nil {
		t.Fatal(err)
	}
	info, err := fetchRepo.CommitByOID(gotChildOID)
	if err != nil {
		t.Fatal(err)
	}
	if info.Message != "second\n" {
		t.Errorf("got message %q, want %q", info.Message, "second\n")
	}
	if len(info.Parents) != 1 {
		t.Fatalf("got %d parents, want 1", len(info.Parents))
	}
	parentInfo, err := fetchRepo.CommitByOID(info.Parents[0])
	if err != nil {
		t.Fatal(err)
	}
	if parentInfo.Message != "first\n" {
		t.Errorf("got parent message %q, want %q", parentInfo.Message, "first\n")
	}
	if info.AuthorSig.Offset != 60 {
		t.Errorf("got author offset %d, want 60", info.AuthorSig.Offset)
	}
}

func TestPushCommitIsIdempotent(t *testing.T) {
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

	store := ipfsfake.New()
	c := cache.NewMem()
	pusher := &Pusher{
		Git:      repo,
		IPFS:     store,
		Cache:    c,
		Resolver: resolve.New(),
		Tree:     &treecodec.Pusher{Git: repo, IPFS: store, Cache: c},
	}

	cid1, err := pusher.PushCommit(ctx, commitOID)
	if err != nil {
		t.Fatal(err)
	}
	cid2, err := pusher.PushCommit(ctx, commitOID)
	if err != nil {
		t.Fatal(err)
	}
	if cid1 != cid2 {
		t.Errorf("pushing the same commit twice produced different CIDs: %s vs %s", cid1, cid2)
	}
}
