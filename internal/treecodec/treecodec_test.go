package treecodec

import (
	"context"
	"testing"

	"github.com/dhappy/git-remote-igis/internal/cache"
	"github.com/dhappy/git-remote-igis/internal/gitrepo"
	"github.com/dhappy/git-remote-igis/internal/ipfsfake"
	"github.com/dhappy/git-remote-igis/internal/model"
)

func TestPushFetchTreeRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo, err := gitrepo.OpenInMemory()
	if err != nil {
		t.Fatal(err)
	}

	readmeOID, err := repo.CreateBlob([]byte("hello\n"))
	if err != nil {
		t.Fatal(err)
	}
	nestedOID, err := repo.CreateBlob([]byte("nested\n"))
	if err != nil {
		t.Fatal(err)
	}
	subtreeOID, err := repo.CreateTree([]gitrepo.TreeEntry{
		{Name: "inner.txt", Mode: model.ModeFile, OID: nestedOID},
	})
	if err != nil {
		t.Fatal(err)
	}
	rootOID, err := repo.CreateTree([]gitrepo.TreeEntry{
		{Name: "README", Mode: model.ModeFile, OID: readmeOID},
		{Name: "sub", Mode: model.ModeDir, OID: subtreeOID},
	})
	if err != nil {
		t.Fatal(err)
	}

	store := ipfsfake.New()
	pushCache := cache.NewMem()
	pusher := &Pusher{Git: repo, IPFS: store, Cache: pushCache}

	fsCID, modesCID, err := pusher.PushTree(ctx, rootOID)
	if err != nil {
		t.Fatal(err)
	}
	if fsCID == "" || modesCID == "" {
		t.Fatalf("got empty CIDs: fs=%q modes=%q", fsCID, modesCID)
	}

	listing, err := store.Ls(ctx, string(fsCID))
	if err != nil {
		t.Fatal(err)
	}
	if len(listing) != 2 {
		t.Fatalf("got %d top-level entries, want 2", len(listing))
	}

	fetchRepo, err := gitrepo.OpenInMemory()
	if err != nil {
		t.Fatal(err)
	}
	fetchCache := cache.NewMem()
	fetcher := &Fetcher{Git: fetchRepo, IPFS: store, Cache: fetchCache}

	gotOID, err := fetcher.FetchTree(ctx, fsCID, modesCID)
	if err != nil {
		t.Fatal(err)
	}

	entries, err := fetchRepo.TreeEntries(gotOID)
	if err != nil {
		t.Fatal(err)
	}
	byName := make(map[string]gitrepo.TreeEntry, len(entries))
	for _, e := range entries {
		byName[e.Name] = e
	}
	readme, ok := byName["README"]
	if !ok || readme.Mode != model.ModeFile {
		t.Fatalf("got entries %+v, missing README file", entries)
	}
	sub, ok := byName["sub"]
	if !ok || sub.Mode != model.ModeDir {
		t.Fatalf("got entries %+v, missing sub dir", entries)
	}

	got, err := fetchRepo.Blob(readme.OID)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello\n" {
		t.Errorf("got README content %q", got)
	}

	innerEntries, err := fetchRepo.TreeEntries(sub.OID)
	if err != nil {
		t.Fatal(err)
	}
	if len(innerEntries) != 1 || innerEntries[0].Name != "inner.txt" {
		t.Errorf("got inner entries %+v", innerEntries)
	}
}

func TestPushTreeSkipsUnrepresentableEntry(t *testing.T) {
	ctx := context.Background()
	repo, err := gitrepo.OpenInMemory()
	if err != nil {
		t.Fatal(err)
	}
	blobOID, err := repo.CreateBlob([]byte("x"))
	if err != nil {
		t.Fatal(err)
	}
	rootOID, err := repo.CreateTree([]gitrepo.TreeEntry{
		{Name: "keep", Mode: model.ModeFile, OID: blobOID},
		{Name: "gitlink", Mode: model.ModeSubmodule, OID: blobOID},
	})
	if err != nil {
		t.Fatal(err)
	}

	store := ipfsfake.New()
	pusher := &Pusher{Git: repo, IPFS: store, Cache: cache.NewMem()}

	fsCID, _, err := pusher.PushTree(ctx, rootOID)
	if err != nil {
		t.Fatal(err)
	}
	listing, err := store.Ls(ctx, string(fsCID))
	if err != nil {
		t.Fatal(err)
	}
	if len(listing) != 1 || listing[0].Name != "keep" {
		t.Errorf("got %+v, want only the representable entry", listing)
	}
}

func TestPushTreeCachesRepeatedBlob(t *testing.T) {
	ctx := context.Background()
	repo, err := gitrepo.OpenInMemory()
	if err != nil {
		t.Fatal(err)
	}
	blobOID, err := repo.CreateBlob([]byte("shared"))
	if err != nil {
		t.Fatal(err)
	}
	rootOID, err := repo.CreateTree([]gitrepo.TreeEntry{
		{Name: "a.txt", Mode: model.ModeFile, OID: blobOID},
		{Name: "b.txt", Mode: model.ModeFile, OID: blobOID},
	})
	if err != nil {
		t.Fatal(err)
	}

	store := ipfsfake.New()
	c := cache.NewMem()
	pusher := &Pusher{Git: repo, IPFS: store, Cache: c}

	fsCID, _, err := pusher.PushTree(ctx, rootOID)
	if err != nil {
		t.Fatal(err)
	}
	listing, err := store.Ls(ctx, string(fsCID))
	if err != nil {
		t.Fatal(err)
	}
	if len(listing) != 2 || listing[0].CID != listing[1].CID {
		t.Errorf("expected both entries to share a CID, got %+v", listing)
	}
	if cached, ok, _ := c.Get(cache.OIDKey(string(blobOID))); !ok || len(listing) == 0 || cached != listing[0].CID {
		t.Errorf("got cached CID (%q, %v) for blob %s, want %+v", cached, ok, blobOID, listing)
	}
}
