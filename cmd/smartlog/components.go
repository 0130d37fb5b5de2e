package main

import (
	"fmt"

	"github.com/branchlessvcs/smartlog/internal/dag"
	"github.com/spf13/cobra"
)

var componentsCmd = &cobra.Command{
	Use:   "components <oid...>",
	Short: "Partition the given commits into their connected components",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, _, cleanup, err := openEngine()
		if err != nil {
			return err
		}
		defer cleanup()

		oids := make([]dag.NonZeroOid, 0, len(args))
		for _, a := range args {
			oid, err := parseOidArg(a)
			if err != nil {
				return err
			}
			oids = append(oids, oid)
		}

		components, err := d.GetConnectedComponents(dag.FromOids(oids))
		if err != nil {
			return err
		}

		for i, comp := range components {
			members, err := dag.CommitSetToOids(comp)
			if err != nil {
				return err
			}
			fmt.Printf("component %d:\n", i)
			for _, oid := range members {
				fmt.Printf("  %s\n", oid)
			}
		}
		return nil
	},
}
