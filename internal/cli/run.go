package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewRunCmd создаёт группу команд для управления runs.
func NewRunCmd(clientFn func() *Client, outputFn func() *Output, projectFn func() (string, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Manage runs",
	}

	cmd.AddCommand(
		newRunListCmd(clientFn, outputFn, projectFn),
		newRunStartCmd(clientFn, outputFn, projectFn),
		newRunShowCmd(clientFn, outputFn, projectFn),
		newRunErrorsCmd(clientFn, outputFn, projectFn),
	)

	return cmd
}

var runHeaders = []string{"ID", "PIPELINE_ID", "STATE", "STAGES", "ROWS_SOURCE", "ROWS_SILVER", "ROWS_GOLD", "CREATED"}

func runRow(r RunResponse) []string {
	return []string{
		r.ID,
		r.PipelineID,
		r.State,
		orDash(strings.Join(r.CompletedStages, ",")),
		count(r.RowsSource),
		count(r.RowsSilver),
		count(r.RowsGold),
		r.CreatedAt,
	}
}

func newRunListCmd(clientFn func() *Client, outputFn func() *Output, projectFn func() (string, error)) *cobra.Command {
	var opts ListRunsOpts

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := projectFn()
			if err != nil {
				return err
			}
			out := outputFn()

			runs, err := clientFn().ListRuns(cmd.Context(), project, opts)
			if err != nil {
				return err
			}

			rows := make([][]string, len(runs))
			for i, r := range runs {
				rows[i] = runRow(r)
			}
			out.Print(runHeaders, rows, runs)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.PipelineID, "pipeline", "", "Filter by pipeline ID")
	cmd.Flags().StringVar(&opts.State, "state", "", "Filter by state (queued, running, succeeded, failed)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newRunStartCmd(clientFn func() *Client, outputFn func() *Output, projectFn func() (string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "start PIPELINE_ID",
		Short: "Run a pipeline and wait for the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := projectFn()
			if err != nil {
				return err
			}
			out := outputFn()

			run, err := clientFn().StartRun(cmd.Context(), project, args[0])
			if err != nil {
				return err
			}

			if run.State == "failed" {
				out.Error(fmt.Sprintf("Run %s failed at %s stage (%s): %s",
					run.ID, orDash(run.FailedStage), orDash(run.FailureCode), run.StateReason))
			} else {
				out.Success(fmt.Sprintf("Run %s %s", run.ID, run.State))
			}
			out.Print(runHeaders, [][]string{runRow(*run)}, run)
			return nil
		},
	}
}

func newRunShowCmd(clientFn func() *Client, outputFn func() *Output, projectFn func() (string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show run details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := projectFn()
			if err != nil {
				return err
			}
			out := outputFn()

			run, err := clientFn().GetRun(cmd.Context(), project, args[0])
			if err != nil {
				return err
			}

			if out.IsJSON() {
				out.JSON(run)
				return nil
			}
			out.Table([]string{"FIELD", "VALUE"}, [][]string{
				{"id", run.ID},
				{"pipeline_id", run.PipelineID},
				{"state", run.State},
				{"failed_stage", orDash(run.FailedStage)},
				{"failure_code", orDash(run.FailureCode)},
				{"state_reason", orDash(run.StateReason)},
				{"completed_stages", orDash(strings.Join(run.CompletedStages, ","))},
				{"rows_source", count(run.RowsSource)},
				{"rows_source_rejected", count(run.RowsSourceRejected)},
				{"rows_silver", count(run.RowsSilver)},
				{"rows_silver_rejected", count(run.RowsSilverRejected)},
				{"rows_gold", count(run.RowsGold)},
				{"duration_ms", count(run.DurationMS)},
				{"created_at", run.CreatedAt},
			})
			for _, line := range run.Logs {
				out.Line(line)
			}
			return nil
		},
	}
}

func newRunErrorsCmd(clientFn func() *Client, outputFn func() *Output, projectFn func() (string, error)) *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "errors RUN_ID",
		Short: "List error samples of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := projectFn()
			if err != nil {
				return err
			}
			out := outputFn()

			samples, total, err := clientFn().ListRunErrors(cmd.Context(), project, args[0], limit, offset)
			if err != nil {
				return err
			}

			headers := []string{"STAGE", "ROW", "REASON", "MESSAGE"}
			rows := make([][]string, len(samples))
			for i, s := range samples {
				rows[i] = []string{s.Stage, count(s.RowNo), s.ReasonCode, s.Message}
			}
			out.Print(headers, rows, samples)
			if !out.IsJSON() {
				out.Success(fmt.Sprintf("%d of %d sample(s), offset %d", len(samples), total, offset))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Page size (server default 100)")
	cmd.Flags().IntVar(&offset, "offset", 0, "Page offset")

	return cmd
}
