package dag

import (
	"fmt"
	"time"
)

// testOid builds a small, distinct, non-zero oid from a single byte tag —
// convenient stand-ins for real 20-byte SHA hashes in tests.
func testOid(tag byte) NonZeroOid {
	var o Oid
	o[oidSize-1] = tag
	return MustNonZeroOid(o)
}

// fakeRepo is an in-memory object store used for testing the engine
// without shelling out to git, in the style of the teacher's
// MockGraphClient (internal/git/resolver_test.go).
type fakeRepo struct {
	dir     string
	commits map[NonZeroOid]*Commit
}

func newFakeRepo(dir string) *fakeRepo {
	return &fakeRepo{dir: dir, commits: make(map[NonZeroOid]*Commit)}
}

func (r *fakeRepo) addCommit(oid NonZeroOid, parents []NonZeroOid, t time.Time) {
	r.commits[oid] = &Commit{Oid: oid, ParentOids: parents, Time: t}
}

func (r *fakeRepo) FindCommit(oid NonZeroOid) (*Commit, bool, error) {
	c, ok := r.commits[oid]
	return c, ok, nil
}

func (r *fakeRepo) GetDagDir() (string, error) {
	return r.dir, nil
}

// fakeReplayer is a single-cursor in-memory event replayer: every test uses
// EventCursor(0) and configures the full observed/obsolete state up front.
type fakeReplayer struct {
	observed []NonZeroOid
	status   map[NonZeroOid]CommitActivityStatus
}

func newFakeReplayer() *fakeReplayer {
	return &fakeReplayer{status: make(map[NonZeroOid]CommitActivityStatus)}
}

func (r *fakeReplayer) observe(oid NonZeroOid, status CommitActivityStatus) {
	r.observed = append(r.observed, oid)
	r.status[oid] = status
}

func (r *fakeReplayer) GetCursorOids(cursor EventCursor) ([]NonZeroOid, error) {
	return r.observed, nil
}

func (r *fakeReplayer) GetCursorCommitActivityStatus(cursor EventCursor, oid NonZeroOid) (CommitActivityStatus, error) {
	if status, ok := r.status[oid]; ok {
		return status, nil
	}
	return CommitActive, nil
}

func (r *fakeReplayer) GetReferencesSnapshot(repo Repo, cursor EventCursor) (*ReferencesSnapshot, error) {
	return nil, fmt.Errorf("not implemented by fakeReplayer")
}

// fakeEffects is a no-op tracing sink.
type fakeEffects struct{}

func (fakeEffects) StartOperation(kind OperationKind) (Effects, func()) {
	return fakeEffects{}, func() {}
}
