package dag

import (
	"testing"
	"time"

	"github.com/branchlessvcs/smartlog/internal/dagerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	oidA = testOid(1)
	oidB = testOid(2)
	oidC = testOid(3)
	oidD = testOid(4)
	oidE = testOid(5)
	oidX = testOid(6)
	oidY = testOid(7)
	oidM = testOid(8)
)

var baseTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func at(hours int) time.Time {
	return baseTime.Add(time.Duration(hours) * time.Hour)
}

// buildChainRepo constructs the S1 scenario: a linear chain A <- B <- C <- D,
// with D as both HEAD and main branch.
func buildChainRepo(t *testing.T) (*fakeRepo, *ReferencesSnapshot) {
	t.Helper()
	repo := newFakeRepo(t.TempDir())
	repo.addCommit(oidA, nil, at(0))
	repo.addCommit(oidB, []NonZeroOid{oidA}, at(1))
	repo.addCommit(oidC, []NonZeroOid{oidB}, at(2))
	repo.addCommit(oidD, []NonZeroOid{oidC}, at(3))

	snapshot := &ReferencesSnapshot{
		HeadOid:          &oidD,
		MainBranchOid:    oidD,
		BranchOidToNames: map[NonZeroOid][]string{},
	}
	return repo, snapshot
}

func mustContain(t *testing.T, set CommitSet, oid NonZeroOid) {
	t.Helper()
	ok, err := set.Contains(OidToVertex(oid))
	require.NoError(t, err)
	assert.True(t, ok, "expected set to contain %s", oid)
}

func mustNotContain(t *testing.T, set CommitSet, oid NonZeroOid) {
	t.Helper()
	ok, err := set.Contains(OidToVertex(oid))
	require.NoError(t, err)
	assert.False(t, ok, "expected set not to contain %s", oid)
}

// S1: a linear chain, no drafts, everything public.
func TestScenarioLinearChainIsAllPublic(t *testing.T) {
	repo, snapshot := buildChainRepo(t)
	replayer := newFakeReplayer()

	d, err := OpenAndSync(fakeEffects{}, repo, replayer, EventCursor(0), snapshot)
	require.NoError(t, err)
	defer d.Close()

	public, err := d.QueryPublicCommitsSlow()
	require.NoError(t, err)
	for _, oid := range []NonZeroOid{oidA, oidB, oidC, oidD} {
		mustContain(t, public, oid)
	}

	draft, err := d.QueryDraftCommits()
	require.NoError(t, err)
	empty, err := draft.IsEmpty()
	require.NoError(t, err)
	assert.True(t, empty, "linear main-branch chain should have no draft commits")

	heads, err := d.QueryVisibleHeads()
	require.NoError(t, err)
	count, err := heads.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	mustContain(t, heads, oidD)

	rng, err := d.GetRange(fakeEffects{}, repo, oidB, oidD)
	require.NoError(t, err)
	require.Equal(t, []NonZeroOid{oidB, oidC, oidD}, rng)
}

// S2: an active observed commit branching off the chain is visible and
// draft, but does not affect the public set.
func TestScenarioActiveBranchIsDraft(t *testing.T) {
	repo, snapshot := buildChainRepo(t)
	repo.addCommit(oidE, []NonZeroOid{oidB}, at(4))

	replayer := newFakeReplayer()
	replayer.observe(oidE, CommitActive)

	d, err := OpenAndSync(fakeEffects{}, repo, replayer, EventCursor(0), snapshot)
	require.NoError(t, err)
	defer d.Close()

	draft, err := d.QueryDraftCommits()
	require.NoError(t, err)
	mustContain(t, draft, oidE)
	mustNotContain(t, draft, oidA)
	mustNotContain(t, draft, oidD)

	visible, err := d.QueryVisibleCommitsSlow()
	require.NoError(t, err)
	for _, oid := range []NonZeroOid{oidA, oidB, oidC, oidD, oidE} {
		mustContain(t, visible, oid)
	}

	isPublic, err := d.IsPublicCommit(oidE)
	require.NoError(t, err)
	assert.False(t, isPublic)
}

// S3: the same branch, but marked obsolete, must be excluded from every
// classification set.
func TestScenarioObsoleteBranchIsHidden(t *testing.T) {
	repo, snapshot := buildChainRepo(t)
	repo.addCommit(oidE, []NonZeroOid{oidB}, at(4))

	replayer := newFakeReplayer()
	replayer.observe(oidE, CommitObsolete)

	d, err := OpenAndSync(fakeEffects{}, repo, replayer, EventCursor(0), snapshot)
	require.NoError(t, err)
	defer d.Close()

	obsolete := d.QueryObsoleteCommits()
	mustContain(t, obsolete, oidE)

	visible, err := d.QueryVisibleCommitsSlow()
	require.NoError(t, err)
	mustNotContain(t, visible, oidE)

	draft, err := d.QueryDraftCommits()
	require.NoError(t, err)
	mustNotContain(t, draft, oidE)

	heads, err := d.QueryVisibleHeads()
	require.NoError(t, err)
	mustNotContain(t, heads, oidE)
}

// S4: GetOnlyParentOid fails distinctly for a root commit and a merge
// commit.
func TestScenarioGetOnlyParentOidFailureModes(t *testing.T) {
	repo, snapshot := buildChainRepo(t)
	repo.addCommit(oidX, nil, at(4))
	repo.addCommit(oidY, nil, at(4))
	repo.addCommit(oidM, []NonZeroOid{oidX, oidY}, at(5))

	replayer := newFakeReplayer()
	replayer.observe(oidM, CommitActive)

	d, err := OpenAndSync(fakeEffects{}, repo, replayer, EventCursor(0), snapshot)
	require.NoError(t, err)
	defer d.Close()

	_, err = d.GetOnlyParentOid(oidA)
	require.Error(t, err)
	assert.True(t, dagerrors.Is(err, dagerrors.NoParents))

	_, err = d.GetOnlyParentOid(oidM)
	require.Error(t, err)
	assert.True(t, dagerrors.Is(err, dagerrors.MultipleParents))

	parent, err := d.GetOnlyParentOid(oidB)
	require.NoError(t, err)
	assert.Equal(t, oidA, parent)
}

// S5: commits with no shared adjacency within the queried set decompose
// into separate connected components.
func TestScenarioConnectedComponents(t *testing.T) {
	repo, snapshot := buildChainRepo(t)
	repo.addCommit(oidE, []NonZeroOid{oidB}, at(4))

	replayer := newFakeReplayer()
	replayer.observe(oidE, CommitActive)

	d, err := OpenAndSync(fakeEffects{}, repo, replayer, EventCursor(0), snapshot)
	require.NoError(t, err)
	defer d.Close()

	components, err := d.GetConnectedComponents(FromOids([]NonZeroOid{oidC, oidE}))
	require.NoError(t, err)
	require.Len(t, components, 2)

	for _, comp := range components {
		n, err := comp.Count()
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	}
}

// S6: sorted_commit_set produces ancestry order, independent of input
// order.
func TestScenarioSortedCommitSet(t *testing.T) {
	repo, snapshot := buildChainRepo(t)
	replayer := newFakeReplayer()

	d, err := OpenAndSync(fakeEffects{}, repo, replayer, EventCursor(0), snapshot)
	require.NoError(t, err)
	defer d.Close()

	commits, err := SortedCommitSet(repo, d, FromOids([]NonZeroOid{oidC, oidB, oidD, oidA}))
	require.NoError(t, err)
	require.Len(t, commits, 4)

	var oids []NonZeroOid
	for _, c := range commits {
		oids = append(oids, c.Oid)
	}
	assert.Equal(t, []NonZeroOid{oidA, oidB, oidC, oidD}, oids)
}

// Siblings with an equal commit time but no ancestry relationship fall back
// to the oid tie-break, ascending.
func TestSortedCommitSetTiesBreakByOid(t *testing.T) {
	repo := newFakeRepo(t.TempDir())
	repo.addCommit(oidA, nil, at(0))
	repo.addCommit(oidY, []NonZeroOid{oidA}, at(1))
	repo.addCommit(oidX, []NonZeroOid{oidA}, at(1)) // sibling of Y, identical time

	snapshot := &ReferencesSnapshot{
		HeadOid:          &oidY,
		MainBranchOid:    oidY,
		BranchOidToNames: map[NonZeroOid][]string{oidX: {"topic"}},
	}

	replayer := newFakeReplayer()
	d, err := OpenAndSync(fakeEffects{}, repo, replayer, EventCursor(0), snapshot)
	require.NoError(t, err)
	defer d.Close()

	commits, err := SortedCommitSet(repo, d, FromOids([]NonZeroOid{oidY, oidX, oidA}))
	require.NoError(t, err)
	require.Len(t, commits, 3)

	assert.Equal(t, oidA, commits[0].Oid)
	// oidX (tag 6) sorts before oidY (tag 7) byte-wise.
	assert.Equal(t, oidX, commits[1].Oid)
	assert.Equal(t, oidY, commits[2].Oid)
}

// Invariant: Union/Intersection/Difference never touch the index — they
// produce correct results on sets built without any Dag or index.
func TestCommitSetAlgebraIsIndexFree(t *testing.T) {
	a := FromOids([]NonZeroOid{oidA, oidB})
	b := FromOids([]NonZeroOid{oidB, oidC})

	union := a.Union(b)
	n, err := union.Count()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	inter := a.Intersection(b)
	mustContain(t, inter, oidB)
	mustNotContain(t, inter, oidA)

	diff := a.Difference(b)
	mustContain(t, diff, oidA)
	mustNotContain(t, diff, oidB)
}

// Invariant: a CommitSet's generator runs at most once, even across
// repeated Iter calls.
func TestCommitSetMemoizesGenerator(t *testing.T) {
	calls := 0
	s := lazy(func() ([]Vertex, error) {
		calls++
		return []Vertex{OidToVertex(oidA)}, nil
	})

	_, err := s.Iter()
	require.NoError(t, err)
	_, err = s.Iter()
	require.NoError(t, err)
	_, err = s.Count()
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
}

// Invariant: a missing parent (simulating garbage collection) is absorbed
// as empty parents, not propagated as an error.
func TestSyncAbsorbsMissingCommits(t *testing.T) {
	repo, snapshot := buildChainRepo(t)
	// oidE references a parent oid that was never added to the repo.
	repo.addCommit(oidE, []NonZeroOid{oidX}, at(4))
	replayer := newFakeReplayer()
	replayer.observe(oidE, CommitActive)

	d, err := OpenAndSync(fakeEffects{}, repo, replayer, EventCursor(0), snapshot)
	require.NoError(t, err)
	defer d.Close()

	ancestors, err := d.index.Ancestors(FromOid(oidE))
	require.NoError(t, err)
	mustContain(t, ancestors, oidE)
}
