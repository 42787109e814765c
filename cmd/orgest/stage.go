package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/eargollo/orgest/internal/stage"
)

const defaultPerFolder = 500

func newStageCommand(ctx *commandContext) *cobra.Command {
	var perFolder int

	cmd := &cobra.Command{
		Use:       "stage NAME [ROOT]",
		Short:     "Run a single stage on ROOT",
		Long:      "Run a single stage on ROOT. Stages: " + strings.Join(stage.Names(), ", ") + ".",
		Args:      cobra.RangeArgs(1, 2),
		ValidArgs: stage.Names(),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := stage.ByName(args[0], stage.Options{PerFolder: perFolder})
			if err != nil {
				return err
			}
			root, err := ctx.resolveRoot(args[1:])
			if err != nil {
				return err
			}
			return ctx.runForeground(cmd, root, []stage.Stage{st})
		},
	}
	cmd.Flags().IntVar(&perFolder, "per-folder", defaultPerFolder, fmt.Sprintf("Files per batch folder for the %q stage", "split"))
	return cmd
}
