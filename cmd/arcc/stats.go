package main

import (
	"github.com/spf13/cobra"

	"arcc/internal/driver"
)

var statsCmd = &cobra.Command{
	Use:   "stats [flags] <file.tir.yaml>",
	Short: "Print per-function RC insertion, elimination and reuse counts as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := compileFile(cmd, args[0], false)
		if err != nil {
			return err
		}
		if res.Module != nil {
			if err := driver.WriteStats(cmd.OutOrStdout(), res.Stats()); err != nil {
				return err
			}
		}
		return finish(cmd, res, cmd.ErrOrStderr(), args)
	},
}
