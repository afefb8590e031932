// medallion — инструмент командной строки для управления проектами,
// sources, mappings, pipelines и runs через HTTP API.
//
// Использование:
//
//	medallion [--api-url URL] [--project PROJECT] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	project   Управление проектами
//	source    Управление sources
//	dataset   Просмотр datasets
//	mapping   Управление mappings
//	pipeline  Управление pipelines
//	run       Управление runs
//	events    Чтение событий run из RabbitMQ
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shaiso/medallion/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL, project string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "medallion",
		Short:         "medallion CLI — bronze/silver/gold pipeline control plane",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", envOr("MEDALLION_API_URL", "http://localhost:8080"), "API server URL")
	rootCmd.PersistentFlags().StringVarP(&project, "project", "p", os.Getenv("MEDALLION_PROJECT"), "Project ID or slug")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }
	projectFn := cli.ProjectFrom(&project)

	rootCmd.AddCommand(
		cli.NewProjectCmd(clientFn, outputFn),
		cli.NewSourceCmd(clientFn, outputFn, projectFn),
		cli.NewDatasetCmd(clientFn, outputFn, projectFn),
		cli.NewMappingCmd(clientFn, outputFn, projectFn),
		cli.NewPipelineCmd(clientFn, outputFn, projectFn),
		cli.NewRunCmd(clientFn, outputFn, projectFn),
		cli.NewEventsCmd(outputFn),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
