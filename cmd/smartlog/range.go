package main

import (
	"fmt"

	"github.com/branchlessvcs/smartlog/internal/dag"
	"github.com/branchlessvcs/smartlog/internal/effects"
	"github.com/spf13/cobra"
)

var rangeCmd = &cobra.Command{
	Use:   "range <parent> <child>",
	Short: "Print the commits that are descendants of parent and ancestors of child, topologically sorted",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, repo, cleanup, err := openEngine()
		if err != nil {
			return err
		}
		defer cleanup()

		parentOid, err := parseOidArg(args[0])
		if err != nil {
			return err
		}
		childOid, err := parseOidArg(args[1])
		if err != nil {
			return err
		}

		oids, err := d.GetRange(effects.New(logger), repo, parentOid, childOid)
		if err != nil {
			return err
		}
		for _, oid := range oids {
			fmt.Println(oid)
		}
		return nil
	},
}

func parseOidArg(s string) (dag.NonZeroOid, error) {
	o, err := dag.OidFromHex(s)
	if err != nil {
		return dag.NonZeroOid{}, fmt.Errorf("%q is not a valid commit oid: %w", s, err)
	}
	return dag.NewNonZeroOid(o)
}
