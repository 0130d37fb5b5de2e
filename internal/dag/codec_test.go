package dag

import (
	"testing"

	"github.com/branchlessvcs/smartlog/internal/dagerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOidZeroSentinel(t *testing.T) {
	assert.True(t, ZeroOid.IsZero())
	assert.False(t, oidA.Oid().IsZero())

	_, err := NewNonZeroOid(ZeroOid)
	require.Error(t, err)
	assert.True(t, dagerrors.Is(err, dagerrors.UnexpectedZeroOid))
}

func TestVertexOidRoundTrip(t *testing.T) {
	v := OidToVertex(oidA)
	back, err := VertexToNonZeroOid(v)
	require.NoError(t, err)
	assert.Equal(t, oidA, back)

	maybe, err := VertexToMaybeZeroOid(v)
	require.NoError(t, err)
	assert.False(t, maybe.IsZero())
}

func TestZeroVertexDecodesAsMaybeZero(t *testing.T) {
	v := MaybeZeroOidToVertex(MaybeZeroOid{oid: ZeroOid})
	maybe, err := VertexToMaybeZeroOid(v)
	require.NoError(t, err)
	assert.True(t, maybe.IsZero())

	_, err = maybe.NonZero()
	require.Error(t, err)
}

func TestOidFromBytesRejectsWrongLength(t *testing.T) {
	_, err := OidFromBytes([]byte{1, 2, 3})
	require.Error(t, err)
	assert.True(t, dagerrors.Is(err, dagerrors.CodecError))
}

func TestOidFromHexRoundTrip(t *testing.T) {
	hex := oidA.Oid().String()
	o, err := OidFromHex(hex)
	require.NoError(t, err)
	assert.Equal(t, oidA.Oid(), o)
}

func TestNonZeroOidCompareIsAntisymmetric(t *testing.T) {
	assert.Equal(t, 0, oidA.Compare(oidA))
	assert.Equal(t, -1, oidA.Compare(oidB))
	assert.Equal(t, 1, oidB.Compare(oidA))
}
