package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewSourceCmd создаёт группу команд для управления sources.
func NewSourceCmd(clientFn func() *Client, outputFn func() *Output, projectFn func() (string, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "source",
		Short: "Manage sources",
	}

	cmd.AddCommand(
		newSourceListCmd(clientFn, outputFn, projectFn),
		newSourceCreateCmd(clientFn, outputFn, projectFn),
		newSourceInferCmd(clientFn, outputFn, projectFn),
	)

	return cmd
}

var sourceHeaders = []string{"ID", "NAME", "URI", "FORMAT", "CREATED"}

func sourceRow(s SourceResponse) []string {
	return []string{s.ID, s.Name, s.URI, orDash(s.Config.Format), s.CreatedAt}
}

func newSourceListCmd(clientFn func() *Client, outputFn func() *Output, projectFn func() (string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sources of the project",
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := projectFn()
			if err != nil {
				return err
			}
			out := outputFn()

			sources, err := clientFn().ListSources(cmd.Context(), project)
			if err != nil {
				return err
			}

			rows := make([][]string, len(sources))
			for i, s := range sources {
				rows[i] = sourceRow(s)
			}
			out.Print(sourceHeaders, rows, sources)
			return nil
		},
	}
}

func newSourceCreateCmd(clientFn func() *Client, outputFn func() *Output, projectFn func() (string, error)) *cobra.Command {
	var req SourceRequest
	var noHeader bool

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a source",
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := projectFn()
			if err != nil {
				return err
			}
			out := outputFn()

			if cmd.Flags().Changed("no-header") {
				hasHeader := !noHeader
				req.Config.HasHeader = &hasHeader
			}

			src, err := clientFn().CreateSource(cmd.Context(), project, req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Source created: %s", src.ID))
			out.Print(sourceHeaders, [][]string{sourceRow(*src)}, src)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Name, "name", "", "Source name (required)")
	cmd.Flags().StringVar(&req.URI, "uri", "", "Data location (required)")
	cmd.Flags().StringVar(&req.Config.Format, "format", "", "Data format: csv or parquet (default csv)")
	cmd.Flags().StringVar(&req.Config.Delimiter, "delimiter", "", "CSV field delimiter (default \",\")")
	cmd.Flags().StringVar(&req.Config.Encoding, "encoding", "", "CSV encoding (default utf-8)")
	cmd.Flags().BoolVar(&noHeader, "no-header", false, "CSV has no header row")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("uri")

	return cmd
}

func newSourceInferCmd(clientFn func() *Client, outputFn func() *Output, projectFn func() (string, error)) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "infer SOURCE_ID",
		Short: "Infer source schema and store it as the bronze dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := projectFn()
			if err != nil {
				return err
			}
			out := outputFn()

			bronze, err := clientFn().InferSchema(cmd.Context(), project, args[0], limit)
			if err != nil {
				return err
			}
			if bronze == nil {
				out.Success("Worker returned no schema; bronze dataset unchanged")
				if out.IsJSON() {
					out.JSON(nil)
				}
				return nil
			}

			out.Success(fmt.Sprintf("Bronze dataset %s: %d field(s)", bronze.Name, len(bronze.Schema)))
			rows := make([][]string, len(bronze.Schema))
			for i, f := range bronze.Schema {
				rows[i] = []string{f.Name, f.Type, strconv.FormatBool(f.Nullable)}
			}
			out.Print([]string{"FIELD", "TYPE", "NULLABLE"}, rows, bronze)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Rows to sample (server default 200, max 1000)")

	return cmd
}
