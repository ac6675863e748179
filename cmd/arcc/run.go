package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"arcc/internal/driver"
	"arcc/internal/interp"
)

var runCmd = &cobra.Command{
	Use:   "run [flags] <file.tir.yaml>",
	Short: "Execute the optimized ARC IR on the reference runtime",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

func init() {
	runCmd.Flags().String("entry", "main", "function to call")
	runCmd.Flags().Bool("conservative", false, "run the IR before elimination and reuse")
	runCmd.Flags().Bool("heap-stats", false, "print allocation and count statistics to stderr")
	runCmd.Flags().Int64("max-steps", 0, "abort after this many steps (0=default)")
}

func runRun(cmd *cobra.Command, args []string) error {
	entry, err := cmd.Flags().GetString("entry")
	if err != nil {
		return fmt.Errorf("failed to get entry flag: %w", err)
	}
	conservative, err := cmd.Flags().GetBool("conservative")
	if err != nil {
		return fmt.Errorf("failed to get conservative flag: %w", err)
	}
	heapStats, err := cmd.Flags().GetBool("heap-stats")
	if err != nil {
		return fmt.Errorf("failed to get heap-stats flag: %w", err)
	}
	maxSteps, err := cmd.Flags().GetInt64("max-steps")
	if err != nil {
		return fmt.Errorf("failed to get max-steps flag: %w", err)
	}

	s := settingsFrom(cmd.Context())
	res, err := compileFile(cmd, args[0], conservative)
	if err != nil {
		return err
	}
	if err := printDiagnostics(cmd.ErrOrStderr(), res, s, args); err != nil {
		return err
	}
	if res.Module == nil {
		return errReported
	}

	out, err := driver.Run(cmd.Context(), res, driver.RunOptions{
		Entry:    entry,
		Mode:     s.runtime,
		Stdout:   cmd.OutOrStdout(),
		MaxSteps: maxSteps,
	})
	var ierr *interp.Error
	if errors.As(err, &ierr) {
		fmt.Fprintln(cmd.ErrOrStderr(), ierr.Format(res.Files))
		return errReported
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out.Value)
	if heapStats {
		enc := json.NewEncoder(cmd.ErrOrStderr())
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return err
		}
	}
	if err := writeStats(cmd, res, s); err != nil {
		return err
	}
	if len(out.Leaks) > 0 {
		return fmt.Errorf("%d objects leaked, first: %s", len(out.Leaks), out.Leaks[0])
	}
	return nil
}
