package retention

import (
	"context"
	"fmt"

	"github.com/migralert/migralert-backend/internal/platform/logger"
	"github.com/migralert/migralert-backend/internal/services"
)

type Activities struct {
	Log     *logger.Logger
	Sweeper services.RetentionService
}

func (a *Activities) Sweep(ctx context.Context) (services.SweepResult, error) {
	if a == nil || a.Sweeper == nil {
		return services.SweepResult{}, fmt.Errorf("retention: activity not configured")
	}
	res, err := a.Sweeper.Sweep(ctx)
	if err != nil && a.Log != nil {
		a.Log.Warn("Retention sweep activity failed", "error", err, "reports_purged", res.ReportsPurged)
	}
	return res, err
}
