// Package retention runs the report purge as a Temporal cron workflow so only
// one replica sweeps at a time.
package retention

import "github.com/migralert/migralert-backend/internal/services"

const (
	WorkflowName  = "migralert.retention.sweep"
	ActivitySweep = "migralert.retention.sweep_batch"

	// ScheduleWorkflowID is the single cron execution shared by all replicas.
	ScheduleWorkflowID = "migralert-retention-cron"
)

type Summary struct {
	Rounds        int   `json:"rounds"`
	ReportsPurged int   `json:"reports_purged"`
	PhotosDeleted int   `json:"photos_deleted"`
	TokensPurged  int64 `json:"tokens_purged"`
	HistoryPurged int64 `json:"history_purged"`
	MoreRemaining bool  `json:"more_remaining"`
}

func (s *Summary) add(r services.SweepResult) {
	s.Rounds++
	s.ReportsPurged += r.ReportsPurged
	s.PhotosDeleted += r.PhotosDeleted
	s.TokensPurged += r.TokensPurged
	s.HistoryPurged += r.HistoryPurged
	s.MoreRemaining = r.MoreRemaining
}
