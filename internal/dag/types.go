package dag

import "time"

// Repo is the subset of the object store the engine consumes. A concrete
// implementation lives in internal/vcs; the engine only ever depends on
// this interface, never on vcs directly, so it stays swappable and
// independently testable.
type Repo interface {
	// FindCommit looks up a commit by oid. found is false (err nil) if the
	// oid doesn't resolve to a commit object, e.g. because it was garbage
	// collected.
	FindCommit(oid NonZeroOid) (commit *Commit, found bool, err error)
	// GetDagDir returns the directory the persistent DAG index should be
	// opened under. The directory need not exist yet: OpenIndex creates it,
	// along with any missing parent directories.
	GetDagDir() (string, error)
}

// Commit is the minimal view of a commit the engine needs: its own oid,
// its parents', and its timestamp (used only by the deterministic sort
// tie-break, §4.8).
type Commit struct {
	Oid        NonZeroOid
	ParentOids []NonZeroOid
	Time       time.Time
}

// CommitActivityStatus classifies an observed commit's fate, as determined
// by the event replayer.
type CommitActivityStatus int

const (
	CommitActive CommitActivityStatus = iota
	CommitInactive
	CommitObsolete
)

// EventCursor is an opaque, monotone position in the event log.
type EventCursor int64

// EventReplayer is the subset of the event-sourced replayer the engine
// consumes. A concrete implementation lives in internal/eventlog.
type EventReplayer interface {
	// GetCursorOids returns every commit oid the replayer has observed
	// through cursor.
	GetCursorOids(cursor EventCursor) ([]NonZeroOid, error)
	// GetCursorCommitActivityStatus returns oid's activity status as of
	// cursor.
	GetCursorCommitActivityStatus(cursor EventCursor, oid NonZeroOid) (CommitActivityStatus, error)
	// GetReferencesSnapshot returns the reference snapshot (HEAD, main
	// branch, local branches) as of cursor.
	GetReferencesSnapshot(repo Repo, cursor EventCursor) (*ReferencesSnapshot, error)
}

// ReferencesSnapshot is the reference state the engine classifies commits
// against. MainBranchOid is always present; HeadOid may be nil (unborn
// HEAD).
type ReferencesSnapshot struct {
	HeadOid          *NonZeroOid
	MainBranchOid    NonZeroOid
	BranchOidToNames map[NonZeroOid][]string
}

// OperationKind names a traced unit of work, used by Effects.StartOperation
// to label its progress reporting.
type OperationKind int

const (
	OperationUpdateCommitGraph OperationKind = iota
	OperationWalkCommits
)

// Effects is the tracing/progress-reporting sink the Sync Protocol (§4.4)
// and GetRange (§4.6) report through. A concrete implementation lives in
// internal/effects.
type Effects interface {
	// StartOperation returns a scoped Effects for nested reporting and an
	// end function that must be called (typically via defer) exactly once
	// when the operation completes.
	StartOperation(kind OperationKind) (scoped Effects, end func())
}
