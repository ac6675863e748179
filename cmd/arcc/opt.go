package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"arcc/internal/arc"
	"arcc/internal/driver"
	"arcc/internal/drop"
)

var optCmd = &cobra.Command{
	Use:   "opt [flags] <file.tir.yaml>",
	Short: "Print the optimized ARC IR of a typed-IR document",
	Args:  cobra.ExactArgs(1),
	RunE:  runOpt,
}

func init() {
	optCmd.Flags().StringP("output", "o", "", "write the IR to this file instead of stdout")
	optCmd.Flags().Bool("conservative", false, "stop after RC insertion")
	optCmd.Flags().Bool("drops", false, "append the drop descriptors of every function")
}

func runOpt(cmd *cobra.Command, args []string) error {
	conservative, err := cmd.Flags().GetBool("conservative")
	if err != nil {
		return fmt.Errorf("failed to get conservative flag: %w", err)
	}
	withDrops, err := cmd.Flags().GetBool("drops")
	if err != nil {
		return fmt.Errorf("failed to get drops flag: %w", err)
	}
	output, err := cmd.Flags().GetString("output")
	if err != nil {
		return fmt.Errorf("failed to get output flag: %w", err)
	}

	res, err := compileFile(cmd, args[0], conservative)
	if err != nil {
		return err
	}
	if res.Module != nil {
		if err := writeIR(cmd.OutOrStdout(), output, res, withDrops); err != nil {
			return err
		}
	}
	return finish(cmd, res, cmd.ErrOrStderr(), args)
}

func writeIR(stdout io.Writer, output string, res *driver.Result, withDrops bool) (err error) {
	w := stdout
	if output != "" {
		f, ferr := os.Create(output)
		if ferr != nil {
			return ferr
		}
		defer func() {
			if cerr := f.Close(); err == nil {
				err = cerr
			}
		}()
		w = f
	}
	if err := arc.DumpModule(w, res.Module); err != nil {
		return err
	}
	if !withDrops {
		return nil
	}
	for _, fr := range res.Funcs {
		if len(fr.Drops) == 0 && len(fr.Closures) == 0 {
			continue
		}
		if _, err := fmt.Fprintf(w, "\n# %s\n", fr.Func.Name); err != nil {
			return err
		}
		for i := range fr.Drops {
			if _, err := fmt.Fprintln(w, drop.Format(&fr.Drops[i], res.Module.Types)); err != nil {
				return err
			}
		}
		for i := range fr.Closures {
			c := &fr.Closures[i]
			if _, err := fmt.Fprintf(w, "closure %s: %s\n", c.Func, drop.Format(&c.Info, res.Module.Types)); err != nil {
				return err
			}
		}
	}
	return nil
}
