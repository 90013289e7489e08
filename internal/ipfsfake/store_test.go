package ipfsfake

import (
	"context"
	"testing"

	"github.com/dhappy/git-remote-igis/internal/model"
)

func TestAddCatRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New()
	cid, err := s.Add(ctx, []byte("hi\n"), true)
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.Cat(ctx, cid)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hi\n" {
		t.Errorf("got %q, want %q", got, "hi\n")
	}
	if !s.IsPinned(cid) {
		t.Error("expected content to be pinned")
	}
}

func TestPatchAddLinkFromEmptyDir(t *testing.T) {
	ctx := context.Background()
	s := New()
	blobCID, err := s.Add(ctx, []byte("hi\n"), true)
	if err != nil {
		t.Fatal(err)
	}
	dirCID, err := s.PatchAddLink(ctx, string(model.EmptyRepoCID), "README", blobCID, false, true)
	if err != nil {
		t.Fatal(err)
	}
	entries, err := s.Ls(ctx, dirCID)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name != "README" || entries[0].CID != blobCID {
		t.Errorf("got %+v", entries)
	}
}

func TestDagPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New()
	cid, err := s.DagPut(ctx, []byte{0xa1, 0x61, 0x61, 0x01}, true)
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.DagGet(ctx, cid)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 4 {
		t.Errorf("got %d bytes, want 4", len(got))
	}
}

func TestAddIsContentAddressedAndIdempotent(t *testing.T) {
	ctx := context.Background()
	s := New()
	c1, _ := s.Add(ctx, []byte("same"), false)
	c2, _ := s.Add(ctx, []byte("same"), false)
	if c1 != c2 {
		t.Errorf("identical content produced different CIDs: %s vs %s", c1, c2)
	}
}
