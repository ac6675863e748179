package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"arcc/internal/driver"
)

var checkCmd = &cobra.Command{
	Use:   "check [flags] <file.tir.yaml>",
	Short: "Run the pipeline and report FBIP findings and internal errors",
	Long: `check runs the full pipeline and prints its diagnostics. With --dual it also
runs the entry function on the conservative and on the optimized IR and fails
when the two disagree, leak or the optimized one allocates more`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().Bool("warnings-as-errors", false, "treat warnings as errors")
	checkCmd.Flags().Bool("dual", false, "compare conservative and optimized execution")
	checkCmd.Flags().String("entry", "main", "entry function for --dual")
}

func runCheck(cmd *cobra.Command, args []string) error {
	warnAsErr, err := cmd.Flags().GetBool("warnings-as-errors")
	if err != nil {
		return fmt.Errorf("failed to get warnings-as-errors flag: %w", err)
	}
	dual, err := cmd.Flags().GetBool("dual")
	if err != nil {
		return fmt.Errorf("failed to get dual flag: %w", err)
	}
	entry, err := cmd.Flags().GetString("entry")
	if err != nil {
		return fmt.Errorf("failed to get entry flag: %w", err)
	}

	s := settingsFrom(cmd.Context())
	var res *driver.Result
	var ver *driver.Verification
	if dual {
		opts, err := s.driverOptions()
		if err != nil {
			return err
		}
		ver, res, err = driver.Verify(cmd.Context(), args[0], opts, driver.RunOptions{Entry: entry, Mode: s.runtime})
		if err != nil && res == nil {
			return err
		}
		if err != nil {
			// the diagnostics usually say why
			if perr := printDiagnostics(cmd.OutOrStdout(), res, s, args); perr != nil {
				return perr
			}
			return err
		}
	} else if res, err = compileFile(cmd, args[0], false); err != nil {
		return err
	}

	if err := finish(cmd, res, cmd.OutOrStdout(), args); err != nil {
		return err
	}
	if warnAsErr && res.Bag.HasWarnings() {
		return fmt.Errorf("warnings treated as errors")
	}
	if ver != nil {
		for _, p := range ver.Problems {
			fmt.Fprintf(cmd.ErrOrStderr(), "dual execution: %s\n", p)
		}
		if !ver.OK() {
			return errReported
		}
		fmt.Fprintf(cmd.OutOrStdout(), "dual execution agrees: %s (allocs %d -> %d)\n",
			ver.Optimized.Value, ver.Conservative.Stats.Allocs, ver.Optimized.Stats.Allocs)
	}
	return nil
}
