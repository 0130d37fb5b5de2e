package eventlog

import (
	"path/filepath"
	"testing"

	"github.com/branchlessvcs/smartlog/internal/dag"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOid(tag byte) dag.NonZeroOid {
	var raw [20]byte
	raw[19] = tag
	o, err := dag.OidFromBytes(raw[:])
	if err != nil {
		panic(err)
	}
	nz, err := dag.NewNonZeroOid(o)
	if err != nil {
		panic(err)
	}
	return nz
}

func openTestReplayer(t *testing.T) *SQLiteReplayer {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.db")
	logger := logrus.New()
	r, err := Open(path, logger)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestAppendAndGetCursorOids(t *testing.T) {
	r := openTestReplayer(t)
	a := testOid(1)
	b := testOid(2)

	c1, err := r.Append(a, dag.CommitActive)
	require.NoError(t, err)
	c2, err := r.Append(b, dag.CommitActive)
	require.NoError(t, err)
	assert.Greater(t, c2, c1)

	oids, err := r.GetCursorOids(c2)
	require.NoError(t, err)
	assert.Len(t, oids, 2)
}

func TestGetCursorOidsRespectsCursor(t *testing.T) {
	r := openTestReplayer(t)
	a := testOid(1)
	b := testOid(2)

	c1, err := r.Append(a, dag.CommitActive)
	require.NoError(t, err)
	_, err = r.Append(b, dag.CommitActive)
	require.NoError(t, err)

	oids, err := r.GetCursorOids(c1)
	require.NoError(t, err)
	require.Len(t, oids, 1)
	assert.Equal(t, a, oids[0])
}

func TestGetCursorCommitActivityStatusDefaultsToActive(t *testing.T) {
	r := openTestReplayer(t)
	unobserved := testOid(9)

	status, err := r.GetCursorCommitActivityStatus(dag.EventCursor(100), unobserved)
	require.NoError(t, err)
	assert.Equal(t, dag.CommitActive, status)
}

func TestGetCursorCommitActivityStatusReturnsLatest(t *testing.T) {
	r := openTestReplayer(t)
	a := testOid(1)

	_, err := r.Append(a, dag.CommitActive)
	require.NoError(t, err)
	c2, err := r.Append(a, dag.CommitObsolete)
	require.NoError(t, err)

	status, err := r.GetCursorCommitActivityStatus(c2, a)
	require.NoError(t, err)
	assert.Equal(t, dag.CommitObsolete, status)
}

func TestAppendAndGetReferencesSnapshot(t *testing.T) {
	r := openTestReplayer(t)
	mainOid := testOid(1)
	topicOid := testOid(2)

	snapshot := &dag.ReferencesSnapshot{
		HeadOid:       &topicOid,
		MainBranchOid: mainOid,
		BranchOidToNames: map[dag.NonZeroOid][]string{
			mainOid:  {"main"},
			topicOid: {"topic"},
		},
	}

	cursor, err := r.AppendRefSnapshot(snapshot)
	require.NoError(t, err)

	got, err := r.GetReferencesSnapshot(nil, cursor)
	require.NoError(t, err)
	assert.Equal(t, mainOid, got.MainBranchOid)
	require.NotNil(t, got.HeadOid)
	assert.Equal(t, topicOid, *got.HeadOid)
	assert.ElementsMatch(t, []string{"main"}, got.BranchOidToNames[mainOid])
	assert.ElementsMatch(t, []string{"topic"}, got.BranchOidToNames[topicOid])
}
