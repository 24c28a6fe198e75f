package retention

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/migralert/migralert-backend/internal/services"
)

// maxRounds bounds one cron run; leftovers wait for the next tick.
const maxRounds = 10

func Workflow(ctx workflow.Context) (Summary, error) {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    10 * time.Second,
			BackoffCoefficient: 2,
			MaximumAttempts:    3,
		},
	})

	var total Summary
	for round := 0; round < maxRounds; round++ {
		var res services.SweepResult
		if err := workflow.ExecuteActivity(ctx, ActivitySweep).Get(ctx, &res); err != nil {
			return total, err
		}
		total.add(res)
		if !res.MoreRemaining {
			break
		}
	}
	workflow.GetLogger(ctx).Info("Retention workflow finished",
		"rounds", total.Rounds, "reports_purged", total.ReportsPurged, "more_remaining", total.MoreRemaining)
	return total, nil
}
