package cmd

import (
	"context"
	"log"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Re-dispatch applications stuck in pending or evaluating",
	Long: `Re-dispatch applications left unfinished by a crash or a missing API key.
With the in-process driver the evaluations run here and the command waits for them.
With the amqp driver the ids are published and a running server picks them up.`,
	Run: func(_ *cobra.Command, _ []string) {
		recoverEvaluations()
	},
}

func init() {
	rootCmd.AddCommand(recoverCmd)
}

func recoverEvaluations() {
	ctx := context.Background()

	c, err := setup(ctx)
	if err != nil {
		log.Fatal(err)
	}
	defer c.close()

	dispatcher, err := newDispatcher(c.config, c.orchestrator.Run, c.logger)
	if err != nil {
		c.logger.Fatal("creating the dispatcher", zap.Error(err))
	}

	count, err := c.orchestrator.Recover(ctx, dispatcher)
	if err != nil {
		c.logger.Error("recovering evaluations", zap.Error(err))
	}

	if err := dispatcher.Shutdown(ctx); err != nil {
		c.logger.Error("waiting for evaluations", zap.Error(err))
	}

	c.logger.Info("recovery finished", zap.Int("dispatched", count))
}
