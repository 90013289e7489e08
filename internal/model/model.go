// Package model holds the value types shared across the push and fetch
// paths: the Git/IPFS identifiers, file modes, and the CBOR-DAG schema.
package model

import "fmt"

// OID is a Git object identifier: a 20-byte SHA-1 rendered as 40 lowercase
// hex characters. Opaque; equality is the only operation the core needs.
type OID string

// CID is an opaque IPFS content identifier string. The core never inspects
// CID bytes beyond round-tripping their string form.
type CID string

// FileMode is a standard Git filemode, preserved losslessly end-to-end.
type FileMode uint32

// The file modes the core must preserve.
const (
	ModeFile       FileMode = 0100644
	ModeExecutable FileMode = 0100755
	ModeSymlink    FileMode = 0120000
	ModeSubmodule  FileMode = 0160000
	ModeDir        FileMode = 0040000
)

// IsBlob reports whether a mode denotes blob content: a regular file, an
// executable, or a symlink. ModeSubmodule also begins with the octal digit 1
// but is not a blob, so it reports false.
func (m FileMode) IsBlob() bool {
	return m == ModeFile || m == ModeExecutable || m == ModeSymlink
}

// EmptyRepoCID is the canonical UnixFS CID for a directory with no entries,
// the starting point of every new working tree.
const EmptyRepoCID CID = "QmUNLLsPACCz1vLxQVkXqqLX5R1X345qqfHbsf67hvA3Nn"

// Signature mirrors a Git author/committer identity plus timestamp, exactly
// as stored in a commit or annotated tag's CBOR node.
type Signature struct {
	Name   string `cbor:"name"`
	Email  string `cbor:"email"`
	Time   int64  `cbor:"time"`   // Unix seconds
	Offset int    `cbor:"offset"` // timezone offset in minutes east of UTC
}

func (s Signature) String() string {
	sign := "+"
	off := s.Offset
	if off < 0 {
		sign = "-"
		off = -off
	}
	return fmt.Sprintf("%s <%s> offset %s%02d%02d", s.Name, s.Email, sign, off/60, off%60)
}

// CommitNode is the dag-cbor representation of a Git commit.
type CommitNode struct {
	OID          string     `cbor:"oid"`
	AuthorSig    Signature  `cbor:"authorSig"`
	CommitterSig Signature  `cbor:"committerSig"`
	Encoding     string     `cbor:"encoding,omitempty"`
	Message      string     `cbor:"message"`
	Tree         string     `cbor:"tree"`  // fsCID
	Modes        string     `cbor:"modes"` // modesCID
	Parents      []string   `cbor:"parents"`
	Signature    string     `cbor:"signature,omitempty"`
}

// TagKind distinguishes annotated from lightweight tags.
type TagKind string

const (
	TagAnnotated  TagKind = "annotated"
	TagLightweight TagKind = "lightweight"
)

// TagNode is the dag-cbor representation of a Git tag.
type TagNode struct {
	OID        string    `cbor:"oid"`
	Name       string    `cbor:"name"`
	Type       TagKind   `cbor:"type"`
	Commit     string     `cbor:"commit"`
	TaggerSig  *Signature `cbor:"taggerSig,omitempty"`
	Message    string     `cbor:"message,omitempty"`
	Signature  string    `cbor:"signature,omitempty"`
}

// VFSRoot is the dag-cbor `.git/` metadata tree attached as a sibling of the
// pushed working tree.
type VFSRoot struct {
	Name string                       `cbor:"name,omitempty"`
	UUID string                       `cbor:"uuid"`
	HEAD string                       `cbor:"HEAD,omitempty"`
	Refs map[string]map[string]string `cbor:"refs"` // "heads"|"tags" -> name -> CID
}

// EnsureRefs lazily allocates the heads/tags maps so callers can always
// index into them.
func (v *VFSRoot) EnsureRefs() {
	if v.Refs == nil {
		v.Refs = map[string]map[string]string{}
	}
	if v.Refs["heads"] == nil {
		v.Refs["heads"] = map[string]string{}
	}
	if v.Refs["tags"] == nil {
		v.Refs["tags"] = map[string]string{}
	}
}
