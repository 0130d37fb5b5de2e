package dag

import (
	"sync"

	"github.com/branchlessvcs/smartlog/internal/dagerrors"
)

// commitSetCell is a single-assignment, thread-safe memoization cell: its
// generator runs at most once, and concurrent callers observe the same
// result. There is no invalidation API, matching §4.5's "no invalidation,
// fresh façade via SetCursor" rule.
type commitSetCell struct {
	once sync.Once
	val  CommitSet
	err  error
}

func (c *commitSetCell) getOrTryInit(f func() (CommitSet, error)) (CommitSet, error) {
	c.once.Do(func() {
		c.val, c.err = f()
	})
	return c.val, c.err
}

// Dag is the query façade: it owns the persistent index, the reference
// sets fixed at construction, and the memoized classification sets. It is
// single-owner and its queries are synchronous and blocking (§5); the only
// internal concurrency is the bounded fan-out inside AddHeadsAndFlush.
type Dag struct {
	index *Index

	// HeadCommit, MainBranchCommit, and BranchCommits are fixed at
	// construction and handed out as read-only views.
	HeadCommit       CommitSet
	MainBranchCommit CommitSet
	BranchCommits    CommitSet

	observedCommits CommitSet
	obsoleteCommits CommitSet

	publicCommits  commitSetCell
	visibleHeads   commitSetCell
	visibleCommits commitSetCell
	draftCommits   commitSetCell
}

// OpenWithoutSyncing initializes a Dag for repo without extending the
// index with newly-referenced commits. Unsafe if new live commits have
// appeared since the index was last synced; prefer OpenAndSync unless the
// caller already knows the index is current.
func OpenWithoutSyncing(
	effects Effects,
	repo Repo,
	replayer EventReplayer,
	cursor EventCursor,
	snapshot *ReferencesSnapshot,
) (*Dag, error) {
	observedOids, err := replayer.GetCursorOids(cursor)
	if err != nil {
		return nil, dagerrors.WrapBackend(err, "open", "loading observed commits from event replayer")
	}

	var obsoleteOids []NonZeroOid
	for _, oid := range observedOids {
		status, err := replayer.GetCursorCommitActivityStatus(cursor, oid)
		if err != nil {
			return nil, dagerrors.WrapBackend(err, "open", "loading commit activity status")
		}
		if status == CommitObsolete {
			obsoleteOids = append(obsoleteOids, oid)
		}
	}

	dagDir, err := repo.GetDagDir()
	if err != nil {
		return nil, dagerrors.WrapIndexIO(err, "open", "locating DAG index directory")
	}
	index, err := OpenIndex(dagDir)
	if err != nil {
		return nil, err
	}

	headCommit := Empty()
	if snapshot.HeadOid != nil {
		headCommit = FromOid(*snapshot.HeadOid)
	}
	branchOids := make([]NonZeroOid, 0, len(snapshot.BranchOidToNames))
	for oid := range snapshot.BranchOidToNames {
		branchOids = append(branchOids, oid)
	}

	return &Dag{
		index:            index,
		HeadCommit:       headCommit,
		MainBranchCommit: FromOid(snapshot.MainBranchOid),
		BranchCommits:    FromOids(branchOids),
		observedCommits:  FromOids(observedOids),
		obsoleteCommits:  FromOids(obsoleteOids),
	}, nil
}

// OpenAndSync initializes a Dag and extends its index to cover any commits
// newly referenced since the last sync.
func OpenAndSync(
	effects Effects,
	repo Repo,
	replayer EventReplayer,
	cursor EventCursor,
	snapshot *ReferencesSnapshot,
) (*Dag, error) {
	d, err := OpenWithoutSyncing(effects, repo, replayer, cursor, snapshot)
	if err != nil {
		return nil, err
	}
	if err := d.Sync(effects, repo); err != nil {
		return nil, err
	}
	return d, nil
}

// Sync extends the index to cover every commit reachable from the main
// branch, HEAD, local branches, and every observed commit.
func (d *Dag) Sync(effects Effects, repo Repo) error {
	masterHeads := d.MainBranchCommit
	nonMasterHeads := d.observedCommits.Union(d.HeadCommit).Union(d.BranchCommits)
	return d.SyncFromOids(effects, repo, masterHeads, nonMasterHeads)
}

// metaKeyHistoryFingerprint is the bucketMeta key the history-rewrite guard
// (below) records its last-seen fingerprint under.
const metaKeyHistoryFingerprint = "history_fingerprint"

// historyFingerprinter is the optional capability a Repo may implement to
// let SyncFromOids detect that the repository's history was rewritten (e.g.
// a force push) since the index was last flushed. vcs.GitRepo implements
// it; Repo implementations that can't cheaply fingerprint their history
// simply don't, and the guard is skipped.
type historyFingerprinter interface {
	DetectForcePush(previousFingerprint string) (rewritten bool, newFingerprint string, err error)
}

// checkHistoryRewrite compares repo's current history fingerprint against
// the one recorded at the last flush. If repo doesn't support
// fingerprinting, or this is the first sync, it reports no rewrite.
func (d *Dag) checkHistoryRewrite(repo Repo) (forceRewalk bool, newFingerprint string, err error) {
	fp, ok := repo.(historyFingerprinter)
	if !ok {
		return false, "", nil
	}
	previous, _, err := d.index.Meta(metaKeyHistoryFingerprint)
	if err != nil {
		return false, "", err
	}
	rewritten, current, err := fp.DetectForcePush(previous)
	if err != nil {
		return false, "", dagerrors.WrapBackend(err, "sync", "detecting history rewrite")
	}
	return rewritten, current, nil
}

// SyncFromOids extends the index to cover every ancestor of masterHeads
// and nonMasterHeads, distinguishing the two so the index can optimize its
// segment layout. If repo's history fingerprint changed since the last
// flush (detected via historyFingerprinter), every vertex reached is
// re-walked instead of trusting what's already recorded. Existing
// master-reachability markings are not removed by a re-walk.
func (d *Dag) SyncFromOids(effects Effects, repo Repo, masterHeads, nonMasterHeads CommitSet) error {
	_, end := effects.StartOperation(OperationUpdateCommitGraph)
	defer end()

	forceRewalk, newFingerprint, err := d.checkHistoryRewrite(repo)
	if err != nil {
		return err
	}

	parentFn := func(v Vertex) ([]Vertex, error) {
		maybeOid, err := VertexToMaybeZeroOid(v)
		if err != nil {
			return nil, dagerrors.WrapBackend(err, "sync", "decoding vertex during sync")
		}
		if maybeOid.IsZero() {
			return nil, nil
		}
		oid, err := maybeOid.NonZero()
		if err != nil {
			return nil, nil
		}
		commit, found, err := repo.FindCommit(oid)
		if err != nil {
			return nil, dagerrors.WrapBackend(err, "sync", "resolving commit "+oid.String())
		}
		if !found {
			// Garbage-collected or non-commit object: absorbed, not an error.
			return nil, nil
		}
		parents := make([]Vertex, len(commit.ParentOids))
		for i, p := range commit.ParentOids {
			parents[i] = OidToVertex(p)
		}
		return parents, nil
	}

	if err := d.index.AddHeadsAndFlush(parentFn, masterHeads, nonMasterHeads, forceRewalk); err != nil {
		return err
	}
	if newFingerprint == "" {
		return nil
	}
	return d.index.SetMeta(metaKeyHistoryFingerprint, newFingerprint)
}

// SetCursor returns a new Dag at a different event cursor, reusing the same
// on-disk index without re-syncing.
func (d *Dag) SetCursor(effects Effects, repo Repo, replayer EventReplayer, cursor EventCursor) (*Dag, error) {
	snapshot, err := replayer.GetReferencesSnapshot(repo, cursor)
	if err != nil {
		return nil, dagerrors.WrapBackend(err, "open", "loading references snapshot")
	}
	return OpenWithoutSyncing(effects, repo, replayer, cursor, snapshot)
}

// GetOnlyParentOid returns oid's unique parent, failing with NoParents or
// MultipleParents if it doesn't have exactly one.
func (d *Dag) GetOnlyParentOid(oid NonZeroOid) (NonZeroOid, error) {
	parents, err := d.index.Parents(FromOid(oid))
	if err != nil {
		return NonZeroOid{}, err
	}
	oids, err := CommitSetToOids(parents)
	if err != nil {
		return NonZeroOid{}, err
	}
	switch len(oids) {
	case 1:
		return oids[0], nil
	case 0:
		return NonZeroOid{}, dagerrors.NewNoParents("get_only_parent_oid", "commit "+oid.String()+" has no parents")
	default:
		return NonZeroOid{}, dagerrors.NewMultipleParents("get_only_parent_oid", "commit "+oid.String()+" has more than one parent")
	}
}

// GetRange returns range(parentOid, childOid), topologically sorted, with
// any zero-oid vertex silently dropped.
func (d *Dag) GetRange(effects Effects, repo Repo, parentOid, childOid NonZeroOid) ([]NonZeroOid, error) {
	_, end := effects.StartOperation(OperationWalkCommits)
	defer end()

	roots := FromOid(parentOid)
	heads := FromOid(childOid)
	rng, err := d.index.Range(roots, heads)
	if err != nil {
		return nil, dagerrors.Wrap(err, dagerrors.BackendError, "range", "computing range")
	}
	sorted, err := d.index.Sort(rng)
	if err != nil {
		return nil, dagerrors.Wrap(err, dagerrors.BackendError, "range", "sorting range")
	}
	vs, err := sorted.Iter()
	if err != nil {
		return nil, err
	}

	var out []NonZeroOid
	for _, v := range vs {
		maybe, err := VertexToMaybeZeroOid(v)
		if err != nil {
			return nil, dagerrors.Wrapf(err, dagerrors.CodecError, "range", "decoding vertex in range result")
		}
		if maybe.IsZero() {
			continue
		}
		oid, _ := maybe.NonZero()
		out = append(out, oid)
	}
	return out, nil
}

// Query exposes the raw index for custom queries.
func (d *Dag) Query() *Index {
	return d.index
}

// Close releases the index handle.
func (d *Dag) Close() error {
	return d.index.Close()
}

// IsPublicCommit determines whether commitOid is an ancestor of the main
// branch. Prefer this over QueryPublicCommitsSlow for single-commit checks.
func (d *Dag) IsPublicCommit(commitOid NonZeroOid) (bool, error) {
	mainBranchOids, err := CommitSetToOids(d.MainBranchCommit)
	if err != nil {
		return false, err
	}
	for _, m := range mainBranchOids {
		ok, err := d.index.IsAncestor(commitOid, m)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// QueryPublicCommitsSlow returns the set of public commits: ancestors of
// the main branch. Prefer IsPublicCommit for single-commit checks.
func (d *Dag) QueryPublicCommitsSlow() (CommitSet, error) {
	return d.publicCommits.getOrTryInit(func() (CommitSet, error) {
		return d.index.Ancestors(d.MainBranchCommit)
	})
}

// QueryVisibleHeads returns the heads of the visible commit set: the
// non-obsolete observed commits, plus HEAD, plus the main branch, plus all
// local branches, reduced to their heads.
func (d *Dag) QueryVisibleHeads() (CommitSet, error) {
	return d.visibleHeads.getOrTryInit(func() (CommitSet, error) {
		candidates := Empty().
			Union(d.observedCommits.Difference(d.obsoleteCommits)).
			Union(d.HeadCommit).
			Union(d.MainBranchCommit).
			Union(d.BranchCommits)
		return d.index.Heads(candidates)
	})
}

// QueryVisibleCommitsSlow returns every visible commit: ancestors of the
// visible heads. Prefer QueryVisibleHeads where a head set suffices.
func (d *Dag) QueryVisibleCommitsSlow() (CommitSet, error) {
	return d.visibleCommits.getOrTryInit(func() (CommitSet, error) {
		heads, err := d.QueryVisibleHeads()
		if err != nil {
			return CommitSet{}, err
		}
		return d.index.Ancestors(heads)
	})
}

// FilterVisibleCommits keeps only the members of commits that are visible:
// commits ∩ range(commits, visible_heads).
func (d *Dag) FilterVisibleCommits(commits CommitSet) (CommitSet, error) {
	heads, err := d.QueryVisibleHeads()
	if err != nil {
		return CommitSet{}, err
	}
	rng, err := d.index.Range(commits, heads)
	if err != nil {
		return CommitSet{}, err
	}
	return commits.Intersection(rng), nil
}

// QueryObsoleteCommits returns the commits the event replayer has marked
// obsolete.
func (d *Dag) QueryObsoleteCommits() CommitSet {
	return d.obsoleteCommits
}

// QueryDraftCommits returns the visible commits that aren't public:
// only(visible_heads, main_branch_commit).
func (d *Dag) QueryDraftCommits() (CommitSet, error) {
	return d.draftCommits.getOrTryInit(func() (CommitSet, error) {
		heads, err := d.QueryVisibleHeads()
		if err != nil {
			return CommitSet{}, err
		}
		return d.index.Only(heads, d.MainBranchCommit)
	})
}
