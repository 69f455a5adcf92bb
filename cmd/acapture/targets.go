package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"go2tv.app/acapture/env"
)

var targetsJSON bool

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "List capturable displays and windows",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, closeFn, err := openBackend()
		if err != nil {
			return err
		}
		defer closeFn()

		targets, err := env.ListTargets(b)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if targetsJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(targets)
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTITLE")
		for _, t := range targets {
			fmt.Fprintf(tw, "%d\t%s\n", t.ID, t.Title)
		}
		return tw.Flush()
	},
}

func init() {
	targetsCmd.Flags().BoolVar(&targetsJSON, "json", false, "print targets as JSON")
}
