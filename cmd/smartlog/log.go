package main

import (
	"fmt"

	"github.com/branchlessvcs/smartlog/internal/dag"
	"github.com/spf13/cobra"
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Print the visible commits in topological order",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, repo, cleanup, err := openEngine()
		if err != nil {
			return err
		}
		defer cleanup()

		visible, err := d.QueryVisibleCommitsSlow()
		if err != nil {
			return err
		}
		commits, err := dag.SortedCommitSet(repo, d, visible)
		if err != nil {
			return err
		}

		for _, c := range commits {
			isPublic, err := d.IsPublicCommit(c.Oid)
			if err != nil {
				return err
			}
			marker := "draft"
			if isPublic {
				marker = "public"
			}
			fmt.Printf("%s  %-7s  %s\n", c.Oid, marker, c.Time.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}
