// Package gitrepo is the core's external Git collaborator: blob/tree/
// commit/tag lookup and creation, reference management, and
// signature creation, backed by go-git. The rest of the core never imports
// go-git directly — every commit/tree/tag field it needs crosses this
// package's boundary as a plain Go value.
package gitrepo

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"

	"github.com/dhappy/git-remote-igis/internal/igiserr"
	"github.com/dhappy/git-remote-igis/internal/model"
)

// Repo wraps a *git.Repository with the narrow surface the translation
// engine needs.
type Repo struct {
	repo *git.Repository
}

// Open opens the local Git repository rooted at path (the directory
// containing .git, or a bare repository).
func Open(path string) (*Repo, error) {
	r, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("gitrepo: open %s: %w", path, err)
	}
	return &Repo{repo: r}, nil
}

// OpenInMemory creates a fresh in-memory repository, used by tests so the
// push/fetch round trip runs without touching a real .git directory.
func OpenInMemory() (*Repo, error) {
	r, err := git.Init(memory.NewStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("gitrepo: init in-memory repo: %w", err)
	}
	return &Repo{repo: r}, nil
}

// TreeEntry is one entry of a Git tree: a name, its mode, and the OID of the
// blob or subtree it names.
type TreeEntry struct {
	Name string
	Mode model.FileMode
	OID  model.OID
}

// CommitInfo is the plain-value view of a Git commit the codecs operate on.
type CommitInfo struct {
	OID          model.OID
	Tree         model.OID
	Parents      []model.OID
	AuthorSig    model.Signature
	CommitterSig model.Signature
	Encoding     string
	Message      string
	PGPSignature string
}

// TagInfo is the plain-value view of an annotated Git tag.
type TagInfo struct {
	OID          model.OID
	Name         string
	Target       model.OID
	TargetIsCommit bool
	TaggerSig    model.Signature
	Message      string
	PGPSignature string
}

func modeToGit(m model.FileMode) (filemode.FileMode, error) {
	switch m {
	case model.ModeFile:
		return filemode.Regular, nil
	case model.ModeExecutable:
		return filemode.Executable, nil
	case model.ModeSymlink:
		return filemode.Symlink, nil
	case model.ModeSubmodule:
		return filemode.Submodule, nil
	case model.ModeDir:
		return filemode.Dir, nil
	default:
		return 0, fmt.Errorf("%w: mode %o", igiserr.ErrUnrepresentableEntry, m)
	}
}

func modeFromGit(m filemode.FileMode) model.FileMode {
	switch m {
	case filemode.Executable:
		return model.ModeExecutable
	case filemode.Symlink:
		return model.ModeSymlink
	case filemode.Submodule:
		return model.ModeSubmodule
	case filemode.Dir:
		return model.ModeDir
	default:
		return model.ModeFile
	}
}

func sigToModel(s object.Signature) model.Signature {
	_, offsetSeconds := s.When.Zone()
	return model.Signature{
		Name:   s.Name,
		Email:  s.Email,
		Time:   s.When.Unix(),
		Offset: offsetSeconds / 60,
	}
}

func sigFromModel(s model.Signature) object.Signature {
	loc := time.FixedZone("", s.Offset*60)
	return object.Signature{
		Name:  s.Name,
		Email: s.Email,
		When:  time.Unix(s.Time, 0).In(loc),
	}
}

// ResolveRef returns the OID a ref currently points to.
func (r *Repo) ResolveRef(ref string) (model.OID, error) {
	ref2, err := r.repo.Reference(plumbing.ReferenceName(ref), true)
	if err != nil {
		return "", fmt.Errorf("gitrepo: resolve %s: %w", ref, err)
	}
	return model.OID(ref2.Hash().String()), nil
}

// Head returns the ref HEAD currently points to and the OID it resolves to.
func (r *Repo) Head() (refName string, oid model.OID, err error) {
	head, err := r.repo.Reference(plumbing.HEAD, false)
	if err != nil {
		return "", "", fmt.Errorf("gitrepo: read HEAD: %w", err)
	}
	if head.Type() == plumbing.SymbolicReference {
		resolved, err := r.repo.Reference(head.Target(), true)
		if err != nil {
			return string(head.Target()), "", fmt.Errorf("gitrepo: resolve HEAD target: %w", err)
		}
		return string(head.Target()), model.OID(resolved.Hash().String()), nil
	}
	return string(head.Name()), model.OID(head.Hash().String()), nil
}

// ObjectExists reports whether oid is present in the local ODB, used by the
// fetch path to skip re-materializing objects already present locally.
func (r *Repo) ObjectExists(oid model.OID) bool {
	_, err := r.repo.Storer.EncodedObject(plumbing.AnyObject, plumbing.NewHash(string(oid)))
	return err == nil
}

// CommitByOID looks up and decodes a commit.
func (r *Repo) CommitByOID(oid model.OID) (*CommitInfo, error) {
	c, err := r.repo.CommitObject(plumbing.NewHash(string(oid)))
	if err != nil {
		return nil, fmt.Errorf("gitrepo: lookup commit %s: %w", oid, err)
	}
	parents := make([]model.OID, len(c.ParentHashes))
	for i, h := range c.ParentHashes {
		parents[i] = model.OID(h.String())
	}
	return &CommitInfo{
		OID:          oid,
		Tree:         model.OID(c.TreeHash.String()),
		Parents:      parents,
		AuthorSig:    sigToModel(c.Author),
		CommitterSig: sigToModel(c.Committer),
		Encoding:     string(c.Encoding),
		Message:      c.Message,
		PGPSignature: c.PGPSignature,
	}, nil
}

// TreeEntries looks up and lists a tree's immediate entries, in their
// original order.
func (r *Repo) TreeEntries(oid model.OID) ([]TreeEntry, error) {
	t, err := r.repo.TreeObject(plumbing.NewHash(string(oid)))
	if err != nil {
		return nil, fmt.Errorf("gitrepo: lookup tree %s: %w", oid, err)
	}
	entries := make([]TreeEntry, len(t.Entries))
	for i, e := range t.Entries {
		entries[i] = TreeEntry{Name: e.Name, Mode: modeFromGit(e.Mode), OID: model.OID(e.Hash.String())}
	}
	return entries, nil
}

// Blob reads the full content of a blob.
func (r *Repo) Blob(oid model.OID) ([]byte, error) {
	b, err := r.repo.BlobObject(plumbing.NewHash(string(oid)))
	if err != nil {
		return nil, fmt.Errorf("gitrepo: lookup blob %s: %w", oid, err)
	}
	rd, err := b.Reader()
	if err != nil {
		return nil, fmt.Errorf("gitrepo: read blob %s: %w", oid, err)
	}
	defer rd.Close()
	buf := make([]byte, b.Size)
	if _, err := io.ReadFull(rd, buf); err != nil {
		return nil, fmt.Errorf("gitrepo: read blob %s: %w", oid, err)
	}
	return buf, nil
}

// TagByOID looks up and decodes an annotated tag object. If oid names an
// object that is not a tag (a lightweight tag pointing straight at a
// commit), it returns igiserr.ErrTagNotATag, which callers treat as "not an
// error" and fall through to the commit path.
func (r *Repo) TagByOID(oid model.OID) (*TagInfo, error) {
	tag, err := r.repo.TagObject(plumbing.NewHash(string(oid)))
	if err != nil {
		if errors.Is(err, plumbing.ErrObjectNotFound) {
			return nil, igiserr.ErrTagNotATag
		}
		return nil, fmt.Errorf("gitrepo: lookup tag %s: %w", oid, err)
	}
	return &TagInfo{
		OID:            oid,
		Name:           tag.Name,
		Target:         model.OID(tag.Target.String()),
		TargetIsCommit: tag.TargetType == plumbing.CommitObject,
		TaggerSig:      sigToModel(tag.Tagger),
		Message:        tag.Message,
		PGPSignature:   tag.PGPSignature,
	}, nil
}

// CreateBlob writes raw bytes as a Git blob and returns its OID.
func (r *Repo) CreateBlob(data []byte) (model.OID, error) {
	obj := r.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	w, err := obj.Writer()
	if err != nil {
		return "", fmt.Errorf("gitrepo: create blob: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return "", fmt.Errorf("gitrepo: create blob: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gitrepo: create blob: %w", err)
	}
	hash, err := r.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return "", fmt.Errorf("gitrepo: store blob: %w", err)
	}
	return model.OID(hash.String()), nil
}

// CreateTree builds a Git tree from entries, in order, and returns its OID.
func (r *Repo) CreateTree(entries []TreeEntry) (model.OID, error) {
	tree := &object.Tree{Entries: make([]object.TreeEntry, 0, len(entries))}
	for _, e := range entries {
		gm, err := modeToGit(e.Mode)
		if err != nil {
			return "", err
		}
		tree.Entries = append(tree.Entries, object.TreeEntry{
			Name: e.Name,
			Mode: gm,
			Hash: plumbing.NewHash(string(e.OID)),
		})
	}
	obj := r.repo.Storer.NewEncodedObject()
	if err := tree.Encode(obj); err != nil {
		return "", fmt.Errorf("gitrepo: encode tree: %w", err)
	}
	hash, err := r.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return "", fmt.Errorf("gitrepo: store tree: %w", err)
	}
	return model.OID(hash.String()), nil
}

// CreateCommit builds a Git commit object and returns its OID. When info
// carries a PGPSignature it is written verbatim as the gpgsig header, never
// re-signed.
func (r *Repo) CreateCommit(info CommitInfo) (model.OID, error) {
	c := &object.Commit{
		Author:       sigFromModel(info.AuthorSig),
		Committer:    sigFromModel(info.CommitterSig),
		Message:      info.Message,
		TreeHash:     plumbing.NewHash(string(info.Tree)),
		PGPSignature: info.PGPSignature,
		Encoding:     object.MessageEncoding(info.Encoding),
	}
	c.ParentHashes = make([]plumbing.Hash, len(info.Parents))
	for i, p := range info.Parents {
		c.ParentHashes[i] = plumbing.NewHash(string(p))
	}

	obj := r.repo.Storer.NewEncodedObject()
	if err := c.Encode(obj); err != nil {
		return "", fmt.Errorf("gitrepo: encode commit: %w", err)
	}
	hash, err := r.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return "", fmt.Errorf("gitrepo: store commit: %w", err)
	}
	return model.OID(hash.String()), nil
}

// CreateAnnotatedTag builds a Git tag object (optionally PGP-signed,
// verbatim) and sets refs/tags/<name> to point at it.
func (r *Repo) CreateAnnotatedTag(info TagInfo) (model.OID, error) {
	t := &object.Tag{
		Name:         info.Name,
		Tagger:       sigFromModel(info.TaggerSig),
		Message:      info.Message,
		TargetType:   plumbing.CommitObject,
		Target:       plumbing.NewHash(string(info.Target)),
		PGPSignature: info.PGPSignature,
	}
	obj := r.repo.Storer.NewEncodedObject()
	if err := t.Encode(obj); err != nil {
		return "", fmt.Errorf("gitrepo: encode tag: %w", err)
	}
	hash, err := r.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return "", fmt.Errorf("gitrepo: store tag: %w", err)
	}
	if err := r.setRefForce("refs/tags/"+info.Name, hash); err != nil {
		return "", err
	}
	return model.OID(hash.String()), nil
}

// CreateLightweightTag points refs/tags/<name> directly at target, with no
// intervening tag object.
func (r *Repo) CreateLightweightTag(name string, target model.OID) error {
	return r.setRefForce("refs/tags/"+name, plumbing.NewHash(string(target)))
}

// SetBranch points refs/heads/<name> at oid, force-updating it so a repeated
// fetch of the same ref is idempotent.
func (r *Repo) SetBranch(name string, oid model.OID) error {
	return r.setRefForce("refs/heads/"+name, plumbing.NewHash(string(oid)))
}

func (r *Repo) setRefForce(refName string, hash plumbing.Hash) error {
	ref := plumbing.NewHashReference(plumbing.ReferenceName(refName), hash)
	if err := r.repo.Storer.SetReference(ref); err != nil {
		return fmt.Errorf("gitrepo: set ref %s: %w", refName, err)
	}
	return nil
}

// SetHEAD makes HEAD a symbolic reference to ref.
func (r *Repo) SetHEAD(ref string) error {
	head := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.ReferenceName(ref))
	if err := r.repo.Storer.SetReference(head); err != nil {
		return fmt.Errorf("gitrepo: set HEAD: %w", err)
	}
	return nil
}
