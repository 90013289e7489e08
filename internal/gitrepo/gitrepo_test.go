package gitrepo

import (
	"testing"

	"github.com/dhappy/git-remote-igis/internal/model"
)

func TestBlobTreeCommitRoundTrip(t *testing.T) {
	r, err := OpenInMemory()
	if err != nil {
		t.Fatal(err)
	}

	blobOID, err := r.CreateBlob([]byte("hi\n"))
	if err != nil {
		t.Fatal(err)
	}
	got, err := r.Blob(blobOID)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hi\n" {
		t.Errorf("got %q, want %q", got, "hi\n")
	}

	treeOID, err := r.CreateTree([]TreeEntry{
		{Name: "README", Mode: model.ModeFile, OID: blobOID},
	})
	if err != nil {
		t.Fatal(err)
	}
	entries, err := r.TreeEntries(treeOID)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name != "README" || entries[0].Mode != model.ModeFile {
		t.Errorf("got %+v", entries)
	}

	sig := model.Signature{Name: "A", Email: "a@example.com", Time: 1000, Offset: -420}
	commitOID, err := r.CreateCommit(CommitInfo{
		Tree:         treeOID,
		AuthorSig:    sig,
		CommitterSig: sig,
		Message:      "initial\n",
	})
	if err != nil {
		t.Fatal(err)
	}

	info, err := r.CommitByOID(commitOID)
	if err != nil {
		t.Fatal(err)
	}
	if info.Tree != treeOID {
		t.Errorf("got tree %s, want %s", info.Tree, treeOID)
	}
	if info.Message != "initial\n" {
		t.Errorf("got message %q", info.Message)
	}
	if info.AuthorSig.Name != "A" || info.AuthorSig.Offset != -420 {
		t.Errorf("got author sig %+v", info.AuthorSig)
	}
}

func TestLightweightTagLookupFallsThroughToCommit(t *testing.T) {
	r, err := OpenInMemory()
	if err != nil {
		t.Fatal(err)
	}
	treeOID, _ := r.CreateTree(nil)
	sig := model.Signature{Name: "A", Email: "a@example.com", Time: 1, Offset: 0}
	commitOID, err := r.CreateCommit(CommitInfo{Tree: treeOID, AuthorSig: sig, CommitterSig: sig, Message: "m\n"})
	if err != nil {
		t.Fatal(err)
	}

	if err := r.CreateLightweightTag("v1", commitOID); err != nil {
		t.Fatal(err)
	}

	_, err = r.TagByOID(commitOID)
	if err == nil {
		t.Fatal("expected ErrTagNotATag for a commit OID")
	}
}

func TestAnnotatedTagRoundTrip(t *testing.T) {
	r, err := OpenInMemory()
	if err != nil {
		t.Fatal(err)
	}
	treeOID, _ := r.CreateTree(nil)
	sig := model.Signature{Name: "A", Email: "a@example.com", Time: 1, Offset: 0}
	commitOID, err := r.CreateCommit(CommitInfo{Tree: treeOID, AuthorSig: sig, CommitterSig: sig, Message: "m\n"})
	if err != nil {
		t.Fatal(err)
	}

	tagOID, err := r.CreateAnnotatedTag(TagInfo{
		Name:      "v1",
		Target:    commitOID,
		TaggerSig: sig,
		Message:   "release\n",
	})
	if err != nil {
		t.Fatal(err)
	}

	info, err := r.TagByOID(tagOID)
	if err != nil {
		t.Fatal(err)
	}
	if info.Target != commitOID || info.Name != "v1" {
		t.Errorf("got %+v", info)
	}
}
