package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tmdbsync/internal/config"
	"tmdbsync/internal/ledger"
	"tmdbsync/internal/logging"
	"tmdbsync/internal/media"
)

func newLedgerCommand(ctx *commandContext) *cobra.Command {
	ledgerCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the delivery ledger",
	}
	ledgerCmd.AddCommand(newLedgerShowCommand(ctx))
	return ledgerCmd
}

type ledgerRowView struct {
	Key       []string        `json:"key"`
	Delivered map[string]bool `json:"delivered"`
}

type ledgerView struct {
	Kind         media.Kind      `json:"kind"`
	Path         string          `json:"path"`
	Destinations []string        `json:"destinations"`
	Rows         []ledgerRowView `json:"rows"`
}

func newLedgerShowCommand(ctx *commandContext) *cobra.Command {
	var kindFlag string
	var missing string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show which items were delivered to which destinations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := media.ParseKind(kindFlag)
			if err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			missingDest := ""
			if missing != "" {
				dest, ok := cfg.FindDestination(missing)
				if !ok {
					return fmt.Errorf("unknown destination %q", missing)
				}
				missingDest = dest.URL
			}

			view, err := loadLedgerView(cmd, cfg, kind, missingDest)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, view)
			}

			out := cmd.OutOrStdout()
			if len(view.Rows) == 0 {
				fmt.Fprintf(out, "No %s in ledger %s\n", kind, view.Path)
				return nil
			}
			headers := append(kind.IndexColumns(), view.Destinations...)
			rows := make([][]string, 0, len(view.Rows))
			for _, row := range view.Rows {
				line := append([]string(nil), row.Key...)
				for _, dest := range view.Destinations {
					line = append(line, yesNo(row.Delivered[dest]))
				}
				rows = append(rows, line)
			}
			fmt.Fprintln(out, renderTable(view.Path, headers, rows, nil))
			return nil
		},
	}

	cmd.Flags().StringVar(&kindFlag, "kind", string(media.KindMovie), "Ledger to show: movies or tv")
	cmd.Flags().StringVar(&missing, "missing", "", "Only rows not yet delivered to this destination (name or URL)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the ledger as JSON")
	return cmd
}

func loadLedgerView(cmd *cobra.Command, cfg *config.Config, kind media.Kind, missingDest string) (ledgerView, error) {
	path := cfg.LedgerPath(string(kind))
	l, closeFn, err := ledger.Open(cmd.Context(), cfg.Ledger.Backend, path, kind, logging.NewNop())
	if err != nil {
		return ledgerView{}, err
	}
	defer func() { _ = closeFn() }()

	entries, dests, err := l.Entries(cmd.Context())
	if err != nil {
		return ledgerView{}, err
	}
	view := ledgerView{Kind: kind, Path: path, Destinations: dests, Rows: []ledgerRowView{}}
	for _, e := range entries {
		if missingDest != "" && e.DeliveredTo(missingDest) {
			continue
		}
		delivered := make(map[string]bool, len(dests))
		for _, dest := range dests {
			delivered[dest] = e.DeliveredTo(dest)
		}
		view.Rows = append(view.Rows, ledgerRowView{Key: e.Key.Parts(), Delivered: delivered})
	}
	return view, nil
}
