package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewProjectCmd создаёт группу команд для управления проектами.
func NewProjectCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage projects",
	}

	cmd.AddCommand(
		newProjectListCmd(clientFn, outputFn),
		newProjectCreateCmd(clientFn, outputFn),
		newProjectShowCmd(clientFn, outputFn),
		newProjectDeleteCmd(clientFn, outputFn),
	)

	return cmd
}

var projectHeaders = []string{"ID", "SLUG", "NAMESPACE", "WAREHOUSE", "CREATED"}

func projectRow(p ProjectResponse) []string {
	return []string{p.ID, p.Slug, p.Namespace, p.WarehouseURI, p.CreatedAt}
}

func newProjectListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			projects, err := clientFn().ListProjects(cmd.Context())
			if err != nil {
				return err
			}

			rows := make([][]string, len(projects))
			for i, p := range projects {
				rows[i] = projectRow(p)
			}
			out.Print(projectHeaders, rows, projects)
			return nil
		},
	}
}

func newProjectCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var req CreateProjectRequest

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new project",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			p, err := clientFn().CreateProject(cmd.Context(), req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Project created: %s", p.Slug))
			out.Print(projectHeaders, [][]string{projectRow(*p)}, p)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Slug, "slug", "", "Project slug (required)")
	cmd.Flags().StringVar(&req.Namespace, "namespace", "", "Warehouse namespace (required)")
	cmd.Flags().StringVar(&req.WarehouseURI, "warehouse-uri", "", "Warehouse location (server default if empty)")
	cmd.MarkFlagRequired("slug")
	cmd.MarkFlagRequired("namespace")

	return cmd
}

func newProjectShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show PROJECT",
		Short: "Show project by ID or slug",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			p, err := clientFn().GetProject(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out.Print(projectHeaders, [][]string{projectRow(*p)}, p)
			return nil
		},
	}
}

func newProjectDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete PROJECT",
		Short: "Delete project with all its sources, datasets, pipelines and runs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := clientFn().DeleteProject(cmd.Context(), args[0]); err != nil {
				return err
			}
			outputFn().Success(fmt.Sprintf("Project deleted: %s", args[0]))
			return nil
		},
	}
}
