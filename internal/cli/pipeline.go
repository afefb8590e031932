package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewPipelineCmd создаёт группу команд для управления pipelines.
func NewPipelineCmd(clientFn func() *Client, outputFn func() *Output, projectFn func() (string, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Manage pipelines",
	}

	cmd.AddCommand(
		newPipelineListCmd(clientFn, outputFn, projectFn),
		newPipelineCreateCmd(clientFn, outputFn, projectFn),
		newPipelineDeleteCmd(clientFn, outputFn, projectFn),
	)

	return cmd
}

var pipelineHeaders = []string{"ID", "NAME", "SILVER_MAPPING", "GOLD_MAPPING", "CREATED"}

func pipelineRow(p PipelineResponse) []string {
	return []string{p.ID, p.Name, orDash(p.SilverMappingID), orDash(p.GoldMappingID), p.CreatedAt}
}

func newPipelineListCmd(clientFn func() *Client, outputFn func() *Output, projectFn func() (string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pipelines of the project",
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := projectFn()
			if err != nil {
				return err
			}
			out := outputFn()

			pipelines, err := clientFn().ListPipelines(cmd.Context(), project)
			if err != nil {
				return err
			}

			rows := make([][]string, len(pipelines))
			for i, p := range pipelines {
				rows[i] = pipelineRow(p)
			}
			out.Print(pipelineHeaders, rows, pipelines)
			return nil
		},
	}
}

func newPipelineCreateCmd(clientFn func() *Client, outputFn func() *Output, projectFn func() (string, error)) *cobra.Command {
	var req CreatePipelineRequest

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := projectFn()
			if err != nil {
				return err
			}
			out := outputFn()

			p, err := clientFn().CreatePipeline(cmd.Context(), project, req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Pipeline created: %s", p.ID))
			out.Print(pipelineHeaders, [][]string{pipelineRow(*p)}, p)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Name, "name", "", "Pipeline name (required)")
	cmd.Flags().StringVar(&req.SilverMappingID, "silver", "", "Bronze -> silver mapping ID")
	cmd.Flags().StringVar(&req.GoldMappingID, "gold", "", "Silver -> gold mapping ID")
	cmd.MarkFlagRequired("name")

	return cmd
}

func newPipelineDeleteCmd(clientFn func() *Client, outputFn func() *Output, projectFn func() (string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "delete PIPELINE_ID",
		Short: "Delete a pipeline and its run history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := projectFn()
			if err != nil {
				return err
			}
			if err := clientFn().DeletePipeline(cmd.Context(), project, args[0]); err != nil {
				return err
			}
			outputFn().Success(fmt.Sprintf("Pipeline deleted: %s", args[0]))
			return nil
		},
	}
}
