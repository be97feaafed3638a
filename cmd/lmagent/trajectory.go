package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"lmagent/internal/logger"
	"lmagent/internal/trajectory"

	"github.com/spf13/cobra"
)

func newTrajectoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trajectory",
		Short: "Inspect persisted run trajectories",
	}
	var steps bool
	show := &cobra.Command{
		Use:   "show <id|path>",
		Short: "Print the narrative of a persisted run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := trajectory.Load(trajectoryPath(projectRoot, args[0]))
			if err != nil {
				return err
			}
			if steps {
				doc.Replay(logger.NewLogger(cmd.OutOrStdout(), logger.LevelDebug))
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), doc.Narrative())
			return nil
		},
	}
	show.Flags().BoolVar(&steps, "steps", false, "print each step as a console banner")
	cmd.AddCommand(show)
	return cmd
}

// trajectoryPath resolves a run id to <root>/trajectories/<id>.json. Existing
// files and anything ending in .json are taken as paths.
func trajectoryPath(root, ref string) string {
	if strings.HasSuffix(ref, ".json") {
		return ref
	}
	if info, err := os.Stat(ref); err == nil && !info.IsDir() {
		return ref
	}
	return filepath.Join(root, "trajectories", ref+".json")
}
