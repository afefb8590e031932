package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shaiso/medallion/internal/mq"
)

// NewEventsCmd создаёт группу команд для чтения событий run из RabbitMQ.
func NewEventsCmd(outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Watch run lifecycle events",
	}

	cmd.AddCommand(newEventsTailCmd(outputFn))

	return cmd
}

func newEventsTailCmd(outputFn func() *Output) *cobra.Command {
	var rabbitURL, pipelineID string

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print run events until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			if rabbitURL == "" {
				return errors.New("--rabbitmq-url is required (or MEDALLION_RABBITMQ_URL)")
			}
			out := outputFn()
			ctx := cmd.Context()

			conn, err := mq.NewConnection(rabbitURL, "medallion-cli", zap.NewNop())
			if err != nil {
				return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
			}
			defer conn.Close()

			queue, err := mq.DeclareTailQueue(ctx, conn)
			if err != nil {
				return err
			}

			consumer := mq.NewConsumer(conn, nil, mq.ConsumerConfig{
				Queue:   queue,
				Handler: printRunEvent(out, pipelineID),
			})

			out.Success("Waiting for run events, press Ctrl+C to stop")
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&rabbitURL, "rabbitmq-url", os.Getenv("MEDALLION_RABBITMQ_URL"), "RabbitMQ URL")
	cmd.Flags().StringVar(&pipelineID, "pipeline", "", "Only events of this pipeline")

	return cmd
}

func printRunEvent(out *Output, pipelineID string) mq.Handler {
	return func(_ context.Context, msg *mq.Message) error {
		ev, err := mq.ParseRunEvent(msg)
		if err != nil {
			return err
		}
		if pipelineID != "" && ev.PipelineID.String() != pipelineID {
			return nil
		}

		if out.IsJSON() {
			out.JSON(msg)
			return nil
		}

		line := fmt.Sprintf("%s  %-14s run=%s pipeline=%s",
			msg.Timestamp.Format("15:04:05"), msg.Type, ev.RunID, ev.PipelineID)
		if ev.FailureCode != "" {
			line += fmt.Sprintf(" stage=%s code=%s reason=%q", ev.FailedStage, ev.FailureCode, ev.StateReason)
		}
		out.Line(line)
		return nil
	}
}
