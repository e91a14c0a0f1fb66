package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sofatutor/imagegen-proxy/internal/config"
	"github.com/sofatutor/imagegen-proxy/internal/history"
	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect the generation history",
		Long:  `Read the configured history backend directly, without a running server.`,
	}

	var format, out string
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export every history record as JSON or CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			records, err := store.Records(cmd.Context())
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer func() { _ = f.Close() }()
				w = f
			}
			return writeExport(w, format, records)
		},
	}
	exportCmd.Flags().StringVar(&format, "format", "json", "Export format: json or csv")
	exportCmd.Flags().StringVarP(&out, "out", "o", "-", "Output file (- for stdout)")

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Print aggregate history statistics as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete history records by id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			for _, id := range args {
				if err := store.Delete(cmd.Context(), id); err != nil {
					return fmt.Errorf("delete %s: %w", id, err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d record(s)\n", len(args))
			return nil
		},
	}

	cmd.AddCommand(exportCmd, statsCmd, deleteCmd)
	return cmd
}

func openHistory(cmd *cobra.Command) (history.Store, error) {
	cfg := config.HistoryFromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return history.NewStore(cmd.Context(), cfg)
}

func writeExport(w io.Writer, format string, records []history.Record) error {
	switch strings.ToLower(format) {
	case "json":
		return history.WriteJSON(w, records)
	case "csv":
		return history.WriteCSV(w, records)
	default:
		return fmt.Errorf("unsupported export format %q (want json or csv)", format)
	}
}
