package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tmdbsync/internal/preflight"
)

func newPreflightCommand(ctx *commandContext) *cobra.Command {
	var dests []string
	var skipDestinations bool

	cmd := &cobra.Command{
		Use:   "preflight",
		Short: "Check directories, TMDB, storage and destinations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg, preflight.Options{
				SkipDestinations: skipDestinations,
				Destinations:     dests,
			})

			var block summaryBlock
			for _, r := range results {
				v := verdictPass
				if !r.Passed {
					v = verdictFail
				}
				block.add(r.Name, v, r.Detail)
			}
			out := cmd.OutOrStdout()
			block.write(out, colorEnabled(out))
			if failed := preflight.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d of %d checks failed", len(failed), len(results))
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&dests, "dest", nil, "Only check these destinations (name or URL)")
	cmd.Flags().BoolVar(&skipDestinations, "skip-destinations", false, "Do not contact destinations")
	return cmd
}
