package vcs

import (
	"crypto/sha256"
	"fmt"
)

// HistoryFingerprint hashes every commit's parent relationship reachable
// from HEAD, so a caller can cheaply detect history rewrites (e.g. a force
// push) between two syncs without re-walking the whole graph. Adapted from
// the teacher's topological-order hashing: where the teacher hashed
// `git log --format=%H:%P` to decide whether a cached risk computation was
// stale, this instead guards the DAG index's sync protocol against
// resyncing against a rewritten history without noticing.
func (r *GitRepo) HistoryFingerprint() (string, error) {
	out, err := r.git("log", "--format=%H:%P", "HEAD")
	if err != nil {
		// An unborn HEAD (no commits yet) still fingerprints, as the hash
		// of nothing.
		out = nil
	}
	sum := sha256.Sum256(out)
	return fmt.Sprintf("%x", sum), nil
}

// DetectForcePush reports whether the repository's history fingerprint
// differs from a previously recorded one. Any change to the history
// reachable from HEAD is reported as rewritten, including a new commit on
// top of unchanged history, not only a force push. An empty previous
// fingerprint means "no prior sync", which is never reported as a rewrite.
func (r *GitRepo) DetectForcePush(previousFingerprint string) (rewritten bool, newFingerprint string, err error) {
	current, err := r.HistoryFingerprint()
	if err != nil {
		return false, "", err
	}
	if previousFingerprint == "" {
		return false, current, nil
	}
	return current != previousFingerprint, current, nil
}
