package cli

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewDatasetCmd создаёт группу команд для просмотра datasets.
func NewDatasetCmd(clientFn func() *Client, outputFn func() *Output, projectFn func() (string, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dataset",
		Short: "Inspect datasets",
	}

	cmd.AddCommand(newDatasetListCmd(clientFn, outputFn, projectFn))

	return cmd
}

func newDatasetListCmd(clientFn func() *Client, outputFn func() *Output, projectFn func() (string, error)) *cobra.Command {
	var layer string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List datasets of the project",
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := projectFn()
			if err != nil {
				return err
			}
			out := outputFn()

			datasets, err := clientFn().ListDatasets(cmd.Context(), project, layer)
			if err != nil {
				return err
			}

			headers := []string{"ID", "LAYER", "NAME", "FIELDS", "PRIMARY_KEY", "UPDATED"}
			rows := make([][]string, len(datasets))
			for i, d := range datasets {
				rows[i] = []string{d.ID, d.Layer, d.Name, strconv.Itoa(len(d.Schema)), orDash(strings.Join(d.PrimaryKey, ",")), d.UpdatedAt}
			}
			out.Print(headers, rows, datasets)
			return nil
		},
	}

	cmd.Flags().StringVar(&layer, "layer", "", "Filter by layer (bronze, silver, gold)")

	return cmd
}
