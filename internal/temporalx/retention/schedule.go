package retention

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/api/serviceerror"
	temporalsdkclient "go.temporal.io/sdk/client"
)

// CronSpec renders interval in the @every form Temporal's cron parser accepts.
func CronSpec(interval time.Duration) string {
	if interval < time.Minute {
		interval = time.Minute
	}
	return fmt.Sprintf("@every %s", interval.Truncate(time.Minute))
}

// EnsureSchedule starts the cron execution unless one is already running.
func EnsureSchedule(ctx context.Context, tc temporalsdkclient.Client, taskQueue string, interval time.Duration) error {
	if tc == nil {
		return fmt.Errorf("retention: temporal client is not configured")
	}
	_, err := tc.ExecuteWorkflow(ctx, temporalsdkclient.StartWorkflowOptions{
		ID:                                       ScheduleWorkflowID,
		TaskQueue:                                taskQueue,
		CronSchedule:                             CronSpec(interval),
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, WorkflowName)
	var started *serviceerror.WorkflowExecutionAlreadyStarted
	if errors.As(err, &started) {
		return nil
	}
	return err
}
