package main

import (
	"fmt"
	"os"

	"github.com/branchlessvcs/smartlog/internal/dag"
	"github.com/branchlessvcs/smartlog/internal/effects"
	"github.com/branchlessvcs/smartlog/internal/eventlog"
	"github.com/branchlessvcs/smartlog/internal/vcs"
)

// openEngine wires up the vcs.GitRepo, eventlog.SQLiteReplayer, and
// effects.Effects collaborators and opens a synced Dag for the repository
// rooted at the current working directory.
func openEngine() (*dag.Dag, *vcs.GitRepo, func(), error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, nil, nil, err
	}

	repo, err := vcs.Open(wd)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening repository: %w", err)
	}

	replayer, err := eventlog.Open(cfg.EventLogPath, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening event log: %w", err)
	}

	snapshot, err := repo.Snapshot(cfg.MainBranchName)
	if err != nil {
		replayer.Close()
		return nil, nil, nil, fmt.Errorf("building references snapshot: %w", err)
	}
	cursor, err := replayer.AppendRefSnapshot(snapshot)
	if err != nil {
		replayer.Close()
		return nil, nil, nil, fmt.Errorf("recording references snapshot: %w", err)
	}

	eff := effects.New(logger)
	d, err := dag.OpenAndSync(eff, repo, replayer, cursor, snapshot)
	if err != nil {
		replayer.Close()
		return nil, nil, nil, fmt.Errorf("opening commit graph: %w", err)
	}

	cleanup := func() {
		d.Close()
		replayer.Close()
	}
	return d, repo, cleanup, nil
}
