// Package effects implements the engine's tracing/progress-reporting sink:
// it logs an operation's start and end with elapsed time at Info level via
// a *logrus.Entry, the structured-logging idiom used throughout this
// project (logger.WithField(...).Info(...)).
package effects

import (
	"time"

	"github.com/branchlessvcs/smartlog/internal/dag"
	"github.com/sirupsen/logrus"
)

func (k Kind) String() string {
	switch dag.OperationKind(k) {
	case dag.OperationUpdateCommitGraph:
		return "update_commit_graph"
	case dag.OperationWalkCommits:
		return "walk_commits"
	default:
		return "unknown"
	}
}

// Kind mirrors dag.OperationKind so that this package can give it a String
// method for log output.
type Kind dag.OperationKind

// Effects is a logrus-backed implementation of dag.Effects.
type Effects struct {
	logger *logrus.Entry
}

// New builds a root Effects sink from logger.
func New(logger *logrus.Logger) *Effects {
	return &Effects{logger: logrus.NewEntry(logger)}
}

// OperationHandle has the shape of the end function StartOperation returns
// (StartOperation itself returns it as a plain func()); it must be called
// exactly once, typically via defer.
type OperationHandle func()

// StartOperation logs the operation's start, and returns a scoped Effects
// (carrying the operation name as a structured field for any further
// nested logging) plus an end function that logs completion and elapsed
// time.
func (e *Effects) StartOperation(kind dag.OperationKind) (dag.Effects, func()) {
	start := time.Now()
	entry := e.logger.WithField("operation", Kind(kind).String())
	entry.Info("operation started")

	scoped := &Effects{logger: entry}
	end := func() {
		entry.WithField("elapsed_ms", time.Since(start).Milliseconds()).Info("operation completed")
	}
	return scoped, end
}
