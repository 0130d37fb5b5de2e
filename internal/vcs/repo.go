// Package vcs adapts the system git binary into the dag.Repo collaborator
// interface, shelling out via os/exec in the style of the teacher's
// internal/git package rather than linking a Git implementation in process.
package vcs

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/branchlessvcs/smartlog/internal/dag"
)

// ErrMalformedOutput is returned when git produces output this adapter
// cannot parse. Parsing is defensive throughout: it never panics on
// unexpected git output, it reports this error instead.
var ErrMalformedOutput = errors.New("vcs: malformed git output")

// GitRepo drives the system git binary for a single working tree.
type GitRepo struct {
	path string
}

// Open verifies path is inside a git working tree and returns a GitRepo
// rooted there.
func Open(path string) (*GitRepo, error) {
	cmd := exec.Command("git", "-C", path, "rev-parse", "--is-inside-work-tree")
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s is not a git repository: %w", path, err)
	}
	return &GitRepo{path: path}, nil
}

func (r *GitRepo) git(args ...string) ([]byte, error) {
	cmd := exec.Command("git", append([]string{"-C", r.path}, args...)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// FindCommit looks up oid's parents and commit time. found is false, with a
// nil error, when git doesn't recognize oid as a commit (e.g. it was
// garbage collected).
func (r *GitRepo) FindCommit(oid dag.NonZeroOid) (*dag.Commit, bool, error) {
	out, err := r.git("log", "-1", "--format=%P%x00%ct", oid.String())
	if err != nil {
		// git exits non-zero for "unknown revision"; treat any failure here
		// as "not found" rather than propagating, per the sync protocol's
		// "absorb missing commits" contract.
		return nil, false, nil
	}

	fields := strings.SplitN(strings.TrimSpace(string(out)), "\x00", 2)
	if len(fields) != 2 {
		return nil, false, fmt.Errorf("%w: expected two null-separated fields from git log, got %q", ErrMalformedOutput, out)
	}

	parentOids, err := parseOidList(fields[0])
	if err != nil {
		return nil, false, err
	}
	unixSeconds, err := strconv.ParseInt(strings.TrimSpace(fields[1]), 10, 64)
	if err != nil {
		return nil, false, fmt.Errorf("%w: commit timestamp %q is not an integer", ErrMalformedOutput, fields[1])
	}

	return &dag.Commit{
		Oid:        oid,
		ParentOids: parentOids,
		Time:       time.Unix(unixSeconds, 0).UTC(),
	}, true, nil
}

func parseOidList(s string) ([]dag.NonZeroOid, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	fields := strings.Fields(s)
	oids := make([]dag.NonZeroOid, 0, len(fields))
	for _, f := range fields {
		o, err := dag.OidFromHex(f)
		if err != nil {
			return nil, fmt.Errorf("%w: parent oid %q: %v", ErrMalformedOutput, f, err)
		}
		nz, err := dag.NewNonZeroOid(o)
		if err != nil {
			return nil, fmt.Errorf("%w: parent oid %q is the zero oid", ErrMalformedOutput, f)
		}
		oids = append(oids, nz)
	}
	return oids, nil
}

// GetDagDir returns the directory the persistent DAG index should live
// under: a private subdirectory of the repository's .git directory.
func (r *GitRepo) GetDagDir() (string, error) {
	out, err := r.git("rev-parse", "--git-dir")
	if err != nil {
		return "", err
	}
	gitDir := strings.TrimSpace(string(out))
	if !filepath.IsAbs(gitDir) {
		gitDir = filepath.Join(r.path, gitDir)
	}
	return filepath.Join(gitDir, "branchless", "dag"), nil
}

// CurrentHeadOid returns HEAD's commit oid. found is false for an unborn
// HEAD (a repository with no commits yet).
func (r *GitRepo) CurrentHeadOid() (oid dag.NonZeroOid, found bool, err error) {
	out, gitErr := r.git("rev-parse", "--verify", "-q", "HEAD")
	if gitErr != nil {
		return dag.NonZeroOid{}, false, nil
	}
	o, parseErr := dag.OidFromHex(strings.TrimSpace(string(out)))
	if parseErr != nil {
		return dag.NonZeroOid{}, false, fmt.Errorf("%w: HEAD oid: %v", ErrMalformedOutput, parseErr)
	}
	nz, nzErr := dag.NewNonZeroOid(o)
	if nzErr != nil {
		return dag.NonZeroOid{}, false, nil
	}
	return nz, true, nil
}

// MainBranchOid resolves branchName (e.g. "main") to its commit oid.
func (r *GitRepo) MainBranchOid(branchName string) (dag.NonZeroOid, error) {
	out, err := r.git("rev-parse", "--verify", "refs/heads/"+branchName)
	if err != nil {
		return dag.NonZeroOid{}, fmt.Errorf("resolving main branch %q: %w", branchName, err)
	}
	o, parseErr := dag.OidFromHex(strings.TrimSpace(string(out)))
	if parseErr != nil {
		return dag.NonZeroOid{}, fmt.Errorf("%w: main branch oid: %v", ErrMalformedOutput, parseErr)
	}
	return dag.NewNonZeroOid(o)
}

// BranchOidToNames lists every local branch, grouped by the commit oid it
// points at.
func (r *GitRepo) BranchOidToNames() (map[dag.NonZeroOid][]string, error) {
	out, err := r.git("for-each-ref", "--format=%(objectname) %(refname:short)", "refs/heads")
	if err != nil {
		return nil, err
	}

	result := make(map[dag.NonZeroOid][]string)
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, " ", 2)
		if len(fields) != 2 {
			return nil, fmt.Errorf("%w: for-each-ref line %q", ErrMalformedOutput, line)
		}
		o, parseErr := dag.OidFromHex(fields[0])
		if parseErr != nil {
			return nil, fmt.Errorf("%w: branch oid %q: %v", ErrMalformedOutput, fields[0], parseErr)
		}
		nz, nzErr := dag.NewNonZeroOid(o)
		if nzErr != nil {
			continue
		}
		result[nz] = append(result[nz], fields[1])
	}
	return result, nil
}

// Snapshot builds the dag.ReferencesSnapshot the engine classifies commits
// against: HEAD, the main branch, and all local branches.
func (r *GitRepo) Snapshot(mainBranchName string) (*dag.ReferencesSnapshot, error) {
	mainOid, err := r.MainBranchOid(mainBranchName)
	if err != nil {
		return nil, err
	}
	branches, err := r.BranchOidToNames()
	if err != nil {
		return nil, err
	}

	snapshot := &dag.ReferencesSnapshot{
		MainBranchOid:    mainOid,
		BranchOidToNames: branches,
	}
	if headOid, found, err := r.CurrentHeadOid(); err != nil {
		return nil, err
	} else if found {
		snapshot.HeadOid = &headOid
	}
	return snapshot, nil
}
