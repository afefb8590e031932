package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// NewMappingCmd создаёт группу команд для управления mappings.
func NewMappingCmd(clientFn func() *Client, outputFn func() *Output, projectFn func() (string, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mapping",
		Short: "Manage mappings",
	}

	cmd.AddCommand(
		newMappingListCmd(clientFn, outputFn, projectFn),
		newMappingCreateCmd(clientFn, outputFn, projectFn),
	)

	return cmd
}

var mappingHeaders = []string{"ID", "FROM", "TO", "UPDATED"}

func mappingRow(m MappingResponse) []string {
	return []string{m.ID, m.FromDatasetID, m.ToDatasetID, m.UpdatedAt}
}

func newMappingListCmd(clientFn func() *Client, outputFn func() *Output, projectFn func() (string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List mappings of the project",
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := projectFn()
			if err != nil {
				return err
			}
			out := outputFn()

			mappings, err := clientFn().ListMappings(cmd.Context(), project)
			if err != nil {
				return err
			}

			rows := make([][]string, len(mappings))
			for i, m := range mappings {
				rows[i] = mappingRow(m)
			}
			out.Print(mappingHeaders, rows, mappings)
			return nil
		},
	}
}

func newMappingCreateCmd(clientFn func() *Client, outputFn func() *Output, projectFn func() (string, error)) *cobra.Command {
	var req MappingRequest
	var transforms, dqRules string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create or update the mapping between two datasets",
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := projectFn()
			if err != nil {
				return err
			}
			out := outputFn()

			if req.Transforms, err = readJSON("transforms", transforms); err != nil {
				return err
			}
			if dqRules != "" {
				if req.DQRules, err = readJSON("dq-rules", dqRules); err != nil {
					return err
				}
			}

			m, err := clientFn().UpsertMapping(cmd.Context(), project, req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Mapping saved: %s", m.ID))
			out.Print(mappingHeaders, [][]string{mappingRow(*m)}, m)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.FromDatasetID, "from", "", "Source dataset ID (required)")
	cmd.Flags().StringVar(&req.ToDatasetID, "to", "", "Target dataset ID (required)")
	cmd.Flags().StringVar(&transforms, "transforms", "", "Transforms as JSON or @file (required)")
	cmd.Flags().StringVar(&dqRules, "dq-rules", "", "DQ rules as JSON array or @file")
	cmd.MarkFlagRequired("from")
	cmd.MarkFlagRequired("to")
	cmd.MarkFlagRequired("transforms")

	return cmd
}

// readJSON читает значение флага: JSON как есть или содержимое файла после "@".
func readJSON(flag, value string) (json.RawMessage, error) {
	data := []byte(value)
	if path, ok := strings.CutPrefix(value, "@"); ok {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("failed to read --%s file: %w", flag, err)
		}
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("--%s is not valid JSON", flag)
	}
	return json.RawMessage(data), nil
}
