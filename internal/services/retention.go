package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/migralert/migralert-backend/internal/data/repos"
	"github.com/migralert/migralert-backend/internal/observability"
	"github.com/migralert/migralert-backend/internal/platform/dbctx"
	"github.com/migralert/migralert-backend/internal/platform/envutil"
	"github.com/migralert/migralert-backend/internal/platform/gcp"
	"github.com/migralert/migralert-backend/internal/platform/logger"
)

const (
	retentionBatchSize  = 200
	retentionMaxBatches = 50
)

type RetentionConfig struct {
	// Reports whose expiry is older than this are hard-deleted.
	Retention     time.Duration
	PurgeRemoved  bool
	Interval      time.Duration
	HistoryMaxAge time.Duration
}

func RetentionConfigFromEnv() RetentionConfig {
	return RetentionConfig{
		Retention:     time.Duration(envutil.Int("RETENTION_DAYS", 30)) * 24 * time.Hour,
		PurgeRemoved:  envutil.Bool("RETENTION_PURGE_REMOVED", false),
		Interval:      time.Duration(envutil.Int("RETENTION_INTERVAL_MINUTES", 60)) * time.Minute,
		HistoryMaxAge: time.Duration(envutil.Int("ALERT_HISTORY_RETENTION_DAYS", 0)) * 24 * time.Hour,
	}
}

type SweepResult struct {
	ReportsPurged int   `json:"reports_purged"`
	PhotosDeleted int   `json:"photos_deleted"`
	TokensPurged  int64 `json:"tokens_purged"`
	HistoryPurged int64 `json:"history_purged"`
	MoreRemaining bool  `json:"more_remaining"`
}

type RetentionService interface {
	Sweep(ctx context.Context) (SweepResult, error)
	// Run sweeps every interval until ctx is done.
	Run(ctx context.Context)
}

type retentionService struct {
	log           *logger.Logger
	reportRepo    repos.ReportRepo
	userTokenRepo repos.UserTokenRepo
	historyRepo   repos.AlertHistoryRepo
	bucket        gcp.BucketService
	metrics       *observability.Metrics
	cfg           RetentionConfig
	now           func() time.Time
}

func NewRetentionService(
	log *logger.Logger,
	reportRepo repos.ReportRepo,
	userTokenRepo repos.UserTokenRepo,
	historyRepo repos.AlertHistoryRepo,
	bucket gcp.BucketService,
	metrics *observability.Metrics,
	cfg RetentionConfig,
) RetentionService {
	if cfg.Retention <= 0 {
		cfg.Retention = 30 * 24 * time.Hour
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	return &retentionService{
		log:           log.With("service", "RetentionService"),
		reportRepo:    reportRepo,
		userTokenRepo: userTokenRepo,
		historyRepo:   historyRepo,
		bucket:        bucket,
		metrics:       metrics,
		cfg:           cfg,
		now:           time.Now,
	}
}

func (rs *retentionService) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := rs.now()
	cutoff := now.Add(-rs.cfg.Retention)
	dbc := dbctx.Context{Ctx: ctx}

	for batch := 0; ; batch++ {
		if batch == retentionMaxBatches {
			res.MoreRemaining = true
			break
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		rows, err := rs.reportRepo.ListPurgeable(dbc, cutoff, rs.cfg.PurgeRemoved, retentionBatchSize)
		if err != nil {
			return res, fmt.Errorf("list purgeable reports: %w", err)
		}
		if len(rows) == 0 {
			break
		}
		ids := make([]uuid.UUID, 0, len(rows))
		for _, r := range rows {
			ids = append(ids, r.ID)
			if r.ImageKey == "" || rs.bucket == nil {
				continue
			}
			if err := rs.bucket.DeleteFile(ctx, gcp.BucketCategoryReportPhoto, r.ImageKey); err != nil {
				rs.log.Warn("Delete report photo failed", "report_id", r.ID, "key", r.ImageKey, "error", err)
				continue
			}
			res.PhotosDeleted++
		}
		if err := rs.reportRepo.FullDeleteByIDs(dbc, ids); err != nil {
			return res, fmt.Errorf("purge reports: %w", err)
		}
		res.ReportsPurged += len(ids)
		rs.metrics.RetentionPurged(len(ids))
		if len(rows) < retentionBatchSize {
			break
		}
	}

	if rs.userTokenRepo != nil {
		n, err := rs.userTokenRepo.FullDeleteExpired(dbc, now)
		if err != nil {
			return res, fmt.Errorf("purge expired sessions: %w", err)
		}
		res.TokensPurged = n
	}
	if rs.historyRepo != nil && rs.cfg.HistoryMaxAge > 0 {
		n, err := rs.historyRepo.DeleteOlderThan(dbc, now.Add(-rs.cfg.HistoryMaxAge))
		if err != nil {
			return res, fmt.Errorf("purge alert history: %w", err)
		}
		res.HistoryPurged = n
	}

	rs.log.Info("Retention sweep finished",
		"reports_purged", res.ReportsPurged,
		"photos_deleted", res.PhotosDeleted,
		"tokens_purged", res.TokensPurged,
		"history_purged", res.HistoryPurged,
	)
	return res, nil
}

func (rs *retentionService) Run(ctx context.Context) {
	ticker := time.NewTicker(rs.cfg.Interval)
	defer ticker.Stop()
	for {
		if _, err := rs.Sweep(ctx); err != nil && ctx.Err() == nil {
			rs.log.Warn("Retention sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
