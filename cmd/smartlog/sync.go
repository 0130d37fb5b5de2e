package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync the persistent DAG index against the repository's current references",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, _, cleanup, err := openEngine()
		if err != nil {
			return err
		}
		defer cleanup()

		visible, err := d.QueryVisibleCommitsSlow()
		if err != nil {
			return err
		}
		n, err := visible.Count()
		if err != nil {
			return err
		}
		fmt.Printf("synced; %d visible commits in the index\n", n)
		return nil
	},
}
