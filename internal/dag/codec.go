// Package dag implements the commit-graph query engine: a thin, set-oriented
// wrapper around a persistent segmented DAG index, plus the event-sourced
// classification overlay (visible/obsolete/public/draft) layered on top of
// it. See SPEC_FULL.md for the full component design.
package dag

import (
	"encoding/hex"

	"github.com/branchlessvcs/smartlog/internal/dagerrors"
)

// oidSize is the width of a content-addressed commit identifier (e.g. a
// SHA-1 git oid). A 20-byte hash is assumed throughout; the codec does not
// care which hash function produced it.
const oidSize = 20

// Oid is a 20-byte content-addressed commit identifier. The zero value is
// the distinguished "zero oid" sentinel meaning "no such commit".
type Oid [oidSize]byte

// ZeroOid is the all-zero sentinel oid.
var ZeroOid = Oid{}

// IsZero reports whether this is the zero-oid sentinel.
func (o Oid) IsZero() bool {
	return o == ZeroOid
}

// String renders the oid as lowercase hex.
func (o Oid) String() string {
	return hex.EncodeToString(o[:])
}

// OidFromBytes parses a 20-byte slice into an Oid.
func OidFromBytes(b []byte) (Oid, error) {
	var o Oid
	if len(b) != oidSize {
		return o, dagerrors.NewCodecErrorf("convert", "oid must be %d bytes, got %d", oidSize, len(b))
	}
	copy(o[:], b)
	return o, nil
}

// OidFromHex parses a hex-encoded oid string.
func OidFromHex(s string) (Oid, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Oid{}, dagerrors.Wrap(err, dagerrors.CodecError, "convert", "oid is not valid hex: "+s)
	}
	return OidFromBytes(b)
}

// NonZeroOid is an Oid known, by construction, not to be the zero oid. A
// commit reference is always represented this way; the zero oid is reserved
// for "no such commit" (e.g. an unborn HEAD).
type NonZeroOid struct {
	oid Oid
}

// NewNonZeroOid wraps an Oid, failing with UnexpectedZeroOid if it is the
// zero oid.
func NewNonZeroOid(o Oid) (NonZeroOid, error) {
	if o.IsZero() {
		return NonZeroOid{}, dagerrors.NewUnexpectedZeroOid("convert")
	}
	return NonZeroOid{oid: o}, nil
}

// MustNonZeroOid is NewNonZeroOid but panics on the zero oid. Intended for
// tests and literals where the oid is known non-zero by construction.
func MustNonZeroOid(o Oid) NonZeroOid {
	n, err := NewNonZeroOid(o)
	if err != nil {
		panic(err)
	}
	return n
}

// Oid returns the underlying oid.
func (n NonZeroOid) Oid() Oid { return n.oid }

// String renders the oid as lowercase hex.
func (n NonZeroOid) String() string { return n.oid.String() }

// Compare gives a deterministic byte-wise ordering over NonZeroOids, used as
// the tie-break in sorted_commit_set (§4.8).
func (n NonZeroOid) Compare(other NonZeroOid) int {
	for i := 0; i < oidSize; i++ {
		if n.oid[i] != other.oid[i] {
			if n.oid[i] < other.oid[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// MaybeZeroOid is an Oid that may legitimately be the zero oid, e.g. when
// decoded from a vertex of unknown provenance before it's known whether it
// refers to a real commit.
type MaybeZeroOid struct {
	oid Oid
}

// IsZero reports whether this is the zero oid.
func (m MaybeZeroOid) IsZero() bool { return m.oid.IsZero() }

// Oid returns the underlying oid, zero or not.
func (m MaybeZeroOid) Oid() Oid { return m.oid }

// NonZero converts to a NonZeroOid, failing if this is the zero oid.
func (m MaybeZeroOid) NonZero() (NonZeroOid, error) {
	return NewNonZeroOid(m.oid)
}

// Vertex is the opaque byte handle the DAG index uses to identify a commit.
// It is always exactly the oid's raw bytes; the codec is the only place
// that asserts this equivalence.
type Vertex []byte

// OidToVertex copies a non-zero oid's bytes into a vertex name.
func OidToVertex(oid NonZeroOid) Vertex {
	v := make(Vertex, oidSize)
	copy(v, oid.oid[:])
	return v
}

// MaybeZeroOidToVertex copies a (possibly zero) oid's bytes into a vertex
// name; the zero oid round-trips through this path too.
func MaybeZeroOidToVertex(oid MaybeZeroOid) Vertex {
	v := make(Vertex, oidSize)
	copy(v, oid.oid[:])
	return v
}

// VertexToMaybeZeroOid parses a vertex's bytes as an oid that may be zero.
func VertexToMaybeZeroOid(v Vertex) (MaybeZeroOid, error) {
	oid, err := OidFromBytes(v)
	if err != nil {
		return MaybeZeroOid{}, dagerrors.Wrapf(err, dagerrors.CodecError, "convert", "vertex %x is not a valid oid", []byte(v))
	}
	return MaybeZeroOid{oid: oid}, nil
}

// VertexToNonZeroOid parses a vertex's bytes as an oid and asserts it is
// not the zero oid.
func VertexToNonZeroOid(v Vertex) (NonZeroOid, error) {
	maybe, err := VertexToMaybeZeroOid(v)
	if err != nil {
		return NonZeroOid{}, err
	}
	return maybe.NonZero()
}

func (v Vertex) key() string { return string(v) }
