package vcs

import (
	"os/exec"
	"testing"

	"github.com/branchlessvcs/smartlog/internal/dag"
)

func initTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := exec.Command("git", "-C", dir, "init", "-q", "-b", "main").Run(); err != nil {
		t.Skip("git not available")
	}
	exec.Command("git", "-C", dir, "config", "user.email", "test@example.com").Run()
	exec.Command("git", "-C", dir, "config", "user.name", "Test User").Run()
	return dir
}

func commitFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	if err := exec.Command("sh", "-c", "echo '"+content+"' > "+dir+"/"+name).Run(); err != nil {
		t.Fatal(err)
	}
	exec.Command("git", "-C", dir, "add", name).Run()
	if err := exec.Command("git", "-C", dir, "commit", "-q", "-m", "commit "+name).Run(); err != nil {
		t.Fatal(err)
	}
	out, err := exec.Command("git", "-C", dir, "rev-parse", "HEAD").Output()
	if err != nil {
		t.Fatal(err)
	}
	return string(out[:40])
}

func TestOpenRejectsNonGitDirectory(t *testing.T) {
	dir := t.TempDir()
	if _, err := Open(dir); err == nil {
		t.Error("Open() expected error for non-git directory")
	}
}

func TestFindCommitRoundTrip(t *testing.T) {
	dir := initTestRepo(t)
	sha := commitFile(t, dir, "a.txt", "hello")

	repo, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	oid, err := dag.OidFromHex(sha)
	if err != nil {
		t.Fatalf("OidFromHex() error = %v", err)
	}
	nz, err := dag.NewNonZeroOid(oid)
	if err != nil {
		t.Fatalf("NewNonZeroOid() error = %v", err)
	}

	commit, found, err := repo.FindCommit(nz)
	if err != nil {
		t.Fatalf("FindCommit() error = %v", err)
	}
	if !found {
		t.Fatal("FindCommit() expected commit to be found")
	}
	if len(commit.ParentOids) != 0 {
		t.Errorf("expected root commit to have no parents, got %d", len(commit.ParentOids))
	}
}

func TestFindCommitNotFound(t *testing.T) {
	dir := initTestRepo(t)
	repo, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	var zero [20]byte
	zero[19] = 0xff
	oid, err := dag.OidFromBytes(zero[:])
	if err != nil {
		t.Fatal(err)
	}
	nz, err := dag.NewNonZeroOid(oid)
	if err != nil {
		t.Fatal(err)
	}

	_, found, err := repo.FindCommit(nz)
	if err != nil {
		t.Fatalf("FindCommit() unexpected error = %v", err)
	}
	if found {
		t.Error("FindCommit() expected not found for unknown oid")
	}
}

func TestCurrentHeadOidUnborn(t *testing.T) {
	dir := initTestRepo(t)
	repo, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	_, found, err := repo.CurrentHeadOid()
	if err != nil {
		t.Fatalf("CurrentHeadOid() error = %v", err)
	}
	if found {
		t.Error("CurrentHeadOid() expected not found for unborn HEAD")
	}
}

func TestBranchOidToNamesAndMainBranchOid(t *testing.T) {
	dir := initTestRepo(t)
	sha := commitFile(t, dir, "a.txt", "hello")
	exec.Command("git", "-C", dir, "branch", "topic").Run()

	repo, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	mainOid, err := repo.MainBranchOid("main")
	if err != nil {
		t.Fatalf("MainBranchOid() error = %v", err)
	}
	if mainOid.String() != sha {
		t.Errorf("MainBranchOid() = %s, want %s", mainOid.String(), sha)
	}

	branches, err := repo.BranchOidToNames()
	if err != nil {
		t.Fatalf("BranchOidToNames() error = %v", err)
	}
	names := branches[mainOid]
	found := map[string]bool{}
	for _, n := range names {
		found[n] = true
	}
	if !found["main"] || !found["topic"] {
		t.Errorf("BranchOidToNames() = %v, want both main and topic", names)
	}
}

func TestHistoryFingerprintChangesAfterCommit(t *testing.T) {
	dir := initTestRepo(t)
	repo, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	before, err := repo.HistoryFingerprint()
	if err != nil {
		t.Fatalf("HistoryFingerprint() error = %v", err)
	}

	commitFile(t, dir, "a.txt", "hello")

	after, err := repo.HistoryFingerprint()
	if err != nil {
		t.Fatalf("HistoryFingerprint() error = %v", err)
	}
	if before == after {
		t.Error("expected fingerprint to change after a new commit")
	}

	rewritten, _, err := repo.DetectForcePush(after)
	if err != nil {
		t.Fatalf("DetectForcePush() error = %v", err)
	}
	if rewritten {
		t.Error("DetectForcePush() expected no rewrite against its own fingerprint")
	}
}

func TestGetDagDir(t *testing.T) {
	dir := initTestRepo(t)
	repo, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	dagDir, err := repo.GetDagDir()
	if err != nil {
		t.Fatalf("GetDagDir() error = %v", err)
	}
	if dagDir == "" {
		t.Error("GetDagDir() returned empty path")
	}
}
