package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eargollo/orgest/internal/disk"
	"github.com/eargollo/orgest/internal/mediatool"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check [ROOT]",
		Short: "Report media tool availability and free space",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.config
			rows := [][]string{}

			tool, err := mediatool.Resolve(cmd.Context(), cfg.MediaTool.BundledDir, cfg.MediaTool.Binary)
			if err != nil {
				rows = append(rows, []string{"ffmpeg", "missing", err.Error()})
			} else {
				rows = append(rows, []string{"ffmpeg", "ok", fmt.Sprintf("%s (%s) %s", tool.Path, tool.Source, tool.Version)})
			}
			rows = append(rows, []string{"image codec", "ok", fmt.Sprintf("max side %d px, jpeg quality %d", cfg.Optimize.MaxDimension, cfg.Optimize.JPEGQuality)})

			if root, err := ctx.resolveRoot(args); err == nil {
				rows = append(rows, spaceRow(root, cfg.MinFreeBytes))
			}
			rows = append(rows, []string{"job history", "-", cfg.DBPath})

			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]column{{title: "Check"}, {title: "Status"}, {title: "Detail", width: 80}}, rows, ""))
			return nil
		},
	}
}

func spaceRow(root string, floor uint64) []string {
	free, err := disk.Free(root)
	if err != nil {
		return []string{"free space", "unknown", err.Error()}
	}
	status := "ok"
	if free < floor {
		status = "low"
	}
	return []string{"free space", status, fmt.Sprintf("%s: %d MiB free, %d MiB required", root, free>>20, floor>>20)}
}
