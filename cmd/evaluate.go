package cmd

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/jobboard/internal/ai"
	"github.com/spigell/jobboard/internal/board"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate --job <id> <resume>",
	Short: "Score a resume against a job without storing anything",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		jobID, _ := cmd.Flags().GetInt64("job")
		evaluate(jobID, args[0])
	},
}

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().Int64("job", 0, "job id to evaluate against")
	evaluateCmd.MarkFlagRequired("job")
}

func evaluate(jobID int64, resumePath string) {
	ctx := context.Background()

	c, err := setup(ctx)
	if err != nil {
		log.Fatal(err)
	}
	defer c.close()

	if !ai.SupportedExtension(extOf(resumePath)) {
		c.logger.Fatal("unsupported resume format, use pdf, doc or docx", zap.String("resume", resumePath))
	}

	if !c.evaluator.Available() {
		c.logger.Fatal("ai service is not configured",
			zap.String("hint", "set GEMINI_API_KEY or ai.gemini.api-key-file"),
		)
	}

	job, err := c.store.GetJob(ctx, jobID)
	if err != nil {
		c.logger.Fatal("loading the job", zap.Int64("job_id", jobID), zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.AI.Timeout)
	defer cancel()

	result, err := c.evaluator.Evaluate(ctx, resumePath, job)
	if err != nil {
		c.logger.Fatal("evaluation failed", zap.String("kind", ai.Kind(err)), zap.Error(err))
	}

	decision := board.StatusRejected
	if result.Score >= c.orchestrator.Threshold() {
		decision = board.StatusUnderReview
	}

	fmt.Printf("job:       %s (#%d)\n", job.Title, job.ID)
	fmt.Printf("score:     %d/%d (threshold %d)\n", result.Score, board.MaxScore, c.orchestrator.Threshold())
	fmt.Printf("decision:  %s\n", decision)
	fmt.Printf("feedback:  %s\n", result.Feedback)
}

func extOf(path string) string {
	return strings.ToLower(filepath.Ext(path))
}
