package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/parcel-report-pdf/internal/parcel"
	"github.com/JakeFAU/parcel-report-pdf/internal/pdf"
)

func newFetchCmd(rt *appState) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "fetch <ref>",
		Short: "Generates one report and writes it to disk",
		Long: `Runs the fetch, render and re-encode pipeline once for the given cadastral
reference. The PDF is written to --output, or to informe_<ref>.pdf in the
working directory.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rt.ready(); err != nil {
				return err
			}
			ref, err := parcel.Parse(args[0])
			if err != nil {
				return fmt.Errorf("parse reference: %w", err)
			}

			fetcher, closePipeline, err := newPipeline(rt.cfg, rt.logger)
			if err != nil {
				return err
			}
			defer closePipeline()

			doc, err := fetcher.Fetch(cmd.Context(), ref)
			if err != nil {
				return fmt.Errorf("generate report: %w", err)
			}

			path := output
			if path == "" {
				path = doc.Filename()
			}
			if err := os.WriteFile(path, doc.Data, 0o600); err != nil {
				return fmt.Errorf("write report: %w", err)
			}

			fields := []zap.Field{
				zap.String("ref", ref.String()),
				zap.String("path", path),
				zap.Int("bytes", len(doc.Data)),
			}
			if pages, err := pdf.NewEncoder().PageCount(doc.Data); err == nil {
				fields = append(fields, zap.Int("pages", pages))
			} else {
				rt.logger.Warn("could not count pages", zap.Error(err))
			}
			rt.logger.Info("report written", fields...)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default informe_<ref>.pdf)")
	return cmd
}
