package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"fieldtrial/domain/core"
	"fieldtrial/internal/migration"

	"github.com/spf13/cobra"
)

func newStatsCmd(opts *cliOptions) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "stats [study-id...]",
		Short: "Compute per-variable statistics of studies",
		Long: `Compute descriptive statistics for every measured variable observed under the
given studies and store them on the studies.

Example: fieldtrial stats 0190b2c4-3f1e-7c52-9a1d-6f0e2b7d8a11
         fieldtrial stats --all`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := opts.container
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			var ids []core.ID
			for _, arg := range args {
				id, err := core.ParseID(arg)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
			if all {
				studies, err := c.Studies.List(ctx)
				if err != nil {
					return err
				}
				for _, st := range studies {
					ids = append(ids, st.ID)
				}
			}
			if len(ids) == 0 {
				return fmt.Errorf("no study given; pass study ids or --all")
			}

			if len(ids) == 1 {
				result, err := c.Statistics.Run(ctx, ids[0])
				if result != nil {
					printResult(out, result.StudyID, result.Status, result.Processed, result.Failed, result.Elapsed.String())
					for _, f := range result.Failures {
						yellow.Fprintf(out, "  %s: %s\n", f.PhenotypeID, f.Error)
					}
				}
				return err
			}

			batch := c.Batch.Run(ctx, ids)
			for _, item := range batch.Items {
				if item.Result != nil {
					printResult(out, item.StudyID, item.Result.Status, item.Result.Processed, item.Result.Failed, item.Result.Elapsed.String())
				}
				if item.Error != "" {
					red.Fprintf(out, "  %s: %s\n", item.StudyID, item.Error)
				}
			}
			printStatus(out, "batch", batch.Status)
			if batch.Status == core.StatusFailed {
				return fmt.Errorf("statistics failed for every study")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Compute every stored study")
	return cmd
}

func printResult(w io.Writer, id core.ID, status core.OperationStatus, processed, failed int, elapsed string) {
	cyan.Fprintf(w, "%s ", id)
	fmt.Fprintf(w, "processed=%d failed=%d elapsed=%s ", processed, failed, elapsed)
	statusColor(status).Fprintln(w, status.String())
}

func newShowCmd(opts *cliOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show <study-id>",
		Short: "Print the stored statistics of a study as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := core.ParseViewFormat(format)
			if err != nil {
				return err
			}
			id, err := core.ParseID(args[0])
			if err != nil {
				return err
			}
			nodes, err := opts.container.Statistics.PhenotypeStatisticsJSON(cmd.Context(), id, view)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), nodes)
		},
	}

	cmd.Flags().StringVar(&format, "format", "client_minimal", "View format: storage, client_full or client_minimal")
	return cmd
}

func newImportCmd(opts *cliOptions) *cobra.Command {
	var sheet string

	cmd := &cobra.Command{
		Use:   "import <file.xlsx|file.csv>",
		Short: "Import observations from a spreadsheet",
		Long: `Import observations from a spreadsheet with the columns plot_id, row and
optionally date, end_date, index and notes. Every other column names a measured
variable; "<name> corrected" holds corrected values.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			result, err := opts.container.Imports.ImportFile(cmd.Context(), args[0], sheet, nil)
			if result != nil {
				fmt.Fprintf(out, "rows=%d stored=%d replaced=%d failed=%d plots=%d\n",
					result.Rows, result.Stored, result.Replaced, result.Failed, result.Plots)
				printFieldErrors(out, result.FieldErrors)
				printStatus(out, "import", result.Status)
			}
			if err != nil {
				return err
			}
			if result.Status == core.StatusFailed && result.Failed > 0 {
				return fmt.Errorf("no observation could be imported")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sheet, "sheet", "", "Worksheet to read (default: the first sheet)")
	return cmd
}

func newObservationCmd(opts *cliOptions) *cobra.Command {
	var in, out string

	cmd := &cobra.Command{
		Use:   "observation <file.json|->",
		Short: "Parse an observation document and print it in another view format",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inFormat, err := core.ParseViewFormat(in)
			if err != nil {
				return err
			}
			outFormat, err := core.ParseViewFormat(out)
			if err != nil {
				return err
			}
			doc, err := readDocument(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			svc := opts.container.Observations
			obs, fieldErrs, err := svc.Parse(cmd.Context(), doc, inFormat, nil)
			printFieldErrors(cmd.ErrOrStderr(), fieldErrs)
			if err != nil {
				return err
			}
			defer obs.Release()
			return printJSON(w, svc.Render(obs, outFormat))
		},
	}

	cmd.Flags().StringVar(&in, "in", "client_full", "View format of the input document")
	cmd.Flags().StringVar(&out, "out", "storage", "View format to print")
	return cmd
}

func readDocument(stdin io.Reader, path string) (core.Document, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	var doc core.Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return doc, nil
}

func newMigrateCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the document schema and list applied versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := opts.container
			out := cmd.OutOrStdout()
			if c.DB == nil {
				fmt.Fprintf(out, "driver %s keeps no SQL schema\n", c.Config.Store.Driver)
				return nil
			}
			// opening the store already applied pending migrations
			versions, err := migration.AppliedVersions(cmd.Context(), c.DB)
			if err != nil {
				return err
			}
			for _, v := range versions {
				green.Fprintf(out, "applied %s\n", v)
			}
			return nil
		},
	}
}
