package cmd

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/jobboard/internal/board"
)

const (
	PromptAccept = "Accept"
	PromptReject = "Reject"
	PromptSkip   = "Skip"
	PromptExit   = "Exit"
)

var errExit = errors.New("exit requested")

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Walk through applications waiting for an HR decision",
	Run: func(cmd *cobra.Command, _ []string) {
		jobID, _ := cmd.Flags().GetInt64("job")
		review(jobID)
	},
}

func init() {
	rootCmd.AddCommand(reviewCmd)

	reviewCmd.Flags().Int64("job", 0, "only review applications for this job id")
}

func review(jobID int64) {
	ctx := context.Background()

	c, err := setup(ctx)
	if err != nil {
		log.Fatal(err)
	}
	defer c.close()

	apps, err := c.store.ListApplications(ctx, board.ApplicationFilter{Status: board.StatusUnderReview, JobID: jobID})
	if err != nil {
		c.logger.Fatal("listing applications", zap.Error(err))
	}

	if len(apps) == 0 {
		c.logger.Info("exiting", zap.String("reason", "no applications under review"))
		return
	}

	c.logger.Info("applications under review", zap.Int("count", len(apps)))

	for i := range apps {
		app := &apps[i]
		fmt.Println(describe(app))

		prompt := promptui.Select{
			Label: fmt.Sprintf("Decision for %s (%d of %d)", app.FullName, i+1, len(apps)),
			Items: []string{PromptAccept, PromptReject, PromptSkip, PromptExit},
		}
		_, action, err := prompt.Run()
		if err != nil {
			c.logger.Fatal("exiting", zap.Error(err))
		}

		if err := decide(ctx, c, app, action); err != nil {
			if errors.Is(err, errExit) {
				return
			}
			c.logger.Error("recording the decision", zap.Int64("application_id", app.ID), zap.Error(err))
		}
	}
}

func decide(ctx context.Context, c *components, app *board.Application, action string) error {
	var to board.Status
	switch action {
	case PromptAccept:
		to = board.StatusAccepted
	case PromptReject:
		to = board.StatusRejected
	case PromptSkip:
		return nil
	case PromptExit:
		c.logger.Info("exiting", zap.String("reason", "got exit from prompt"))
		return errExit
	default:
		return errors.Newf("invalid action: %s", action)
	}

	updated, err := c.store.UpdateStatus(ctx, app.ID, to, board.ActorHR)
	if err != nil {
		return err
	}
	c.logger.Info("decision recorded", zap.Int64("application_id", updated.ID), zap.String("status", updated.Status.String()))
	return nil
}

func describe(app *board.Application) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n#%d %s <%s>", app.ID, app.FullName, app.Email)
	if app.Phone != "" {
		fmt.Fprintf(&b, " %s", app.Phone)
	}
	fmt.Fprintf(&b, "\n  job:      %s", app.JobTitle)
	if app.AIScore != nil {
		fmt.Fprintf(&b, "\n  score:    %d/%d", *app.AIScore, board.MaxScore)
	} else {
		b.WriteString("\n  score:    not scored")
	}
	if app.AIFeedback != nil {
		fmt.Fprintf(&b, "\n  feedback: %s", *app.AIFeedback)
	}
	fmt.Fprintf(&b, "\n  resume:   %s", app.ResumePath)
	return b.String()
}
