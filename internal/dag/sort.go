package dag

import (
	"sort"

	"github.com/branchlessvcs/smartlog/internal/dagerrors"
	"github.com/sirupsen/logrus"
)

// SortedCommitSet resolves commitSet to the commits still present in repo
// (skipping any that were garbage collected) and sorts them with a
// comparator that prefers ancestry where it's known and falls back to
// (commit time, oid) for incomparable pairs.
//
// This comparator is not a total order on the ancestry relation: two
// commits that are each incomparable with a third may still be ordered
// inconsistently with transitivity (§9). It is only used to produce
// deterministic output, which in practice has not been a problem. A
// Kahn-style topological sort using (time, oid) only as a within-frontier
// tie-break would be a total order; that replacement is an open question
// this implementation has deliberately not taken, to match the reference
// behavior it's grounded on.
func SortedCommitSet(repo Repo, d *Dag, commitSet CommitSet) ([]*Commit, error) {
	oids, err := CommitSetToOids(commitSet)
	if err != nil {
		return nil, err
	}

	var commits []*Commit
	for _, oid := range oids {
		commit, found, err := repo.FindCommit(oid)
		if err != nil {
			return nil, dagerrors.WrapBackend(err, "sort", "resolving commit "+oid.String())
		}
		if found {
			commits = append(commits, commit)
		}
	}

	sort.SliceStable(commits, func(i, j int) bool {
		lhs, rhs := commits[i], commits[j]

		if isAncestorOrWarn(d, lhs.Oid, rhs.Oid) {
			return true
		}
		if isAncestorOrWarn(d, rhs.Oid, lhs.Oid) {
			return false
		}

		if !lhs.Time.Equal(rhs.Time) {
			return lhs.Time.Before(rhs.Time)
		}
		return lhs.Oid.Compare(rhs.Oid) < 0
	})

	return commits, nil
}

// isAncestorOrWarn degrades a comparison failure to false and logs a
// warning: the sort must never fail due to a single bad comparison (§4.8,
// §7).
func isAncestorOrWarn(d *Dag, a, b NonZeroOid) bool {
	ok, err := d.index.IsAncestor(a, b)
	if err != nil {
		logrus.WithFields(logrus.Fields{"lhs": a.String(), "rhs": b.String()}).
			Warn("could not calculate is_ancestor during sort, degrading to false")
		return false
	}
	return ok
}
