package reports

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/migralert/migralert-backend/internal/domain"
	"github.com/migralert/migralert-backend/internal/geo"
	"github.com/migralert/migralert-backend/internal/platform/dbctx"
	"github.com/migralert/migralert-backend/internal/platform/logger"
)

// ScoreUpdate is applied atomically by CompareAndSwapScore. Deltas are added
// to the stored tallies.
type ScoreUpdate struct {
	Score         int
	Status        types.ReportStatus
	ConfirmDelta  int
	InactiveDelta int
	FalseDelta    int
	Now           time.Time
}

// ReportCursor marks the last row of a page ordered by (created_at, id)
// descending. The zero value starts at the newest row.
type ReportCursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

func (c ReportCursor) IsZero() bool { return c.CreatedAt.IsZero() && c.ID == uuid.Nil }

// CursorAfter returns the cursor that resumes after r.
func CursorAfter(r *types.Report) ReportCursor {
	return ReportCursor{CreatedAt: r.CreatedAt, ID: r.ID}
}

type ReportRepo interface {
	Create(dbc dbctx.Context, reports []*types.Report) ([]*types.Report, error)
	GetByIDs(dbc dbctx.Context, reportIDs []uuid.UUID) ([]*types.Report, error)
	GetByID(dbc dbctx.Context, reportID uuid.UUID) (*types.Report, error)
	CompareAndSwapScore(dbc dbctx.Context, reportID uuid.UUID, expectedVersion int, upd ScoreUpdate) (bool, error)
	UpdateStatus(dbc dbctx.Context, reportID uuid.UUID, status types.ReportStatus, now time.Time) (bool, error)
	QueryWithinBounds(dbc dbctx.Context, b geo.Bounds, now time.Time, after ReportCursor, limit int) ([]*types.Report, error)
	ListActive(dbc dbctx.Context, now time.Time, limit int) ([]*types.Report, error)
	ListPurgeable(dbc dbctx.Context, expiredBefore time.Time, includeRemoved bool, limit int) ([]*types.Report, error)
	FullDeleteByIDs(dbc dbctx.Context, reportIDs []uuid.UUID) error
}

type reportRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewReportRepo(db *gorm.DB, baseLog *logger.Logger) ReportRepo {
	repoLog := baseLog.With("repo", "ReportRepo")
	return &reportRepo{db: db, log: repoLog}
}

func (rr *reportRepo) Create(dbc dbctx.Context, reports []*types.Report) ([]*types.Report, error) {
	if len(reports) == 0 {
		return []*types.Report{}, nil
	}
	if err := dbc.Resolve(rr.db).Create(&reports).Error; err != nil {
		return nil, err
	}
	return reports, nil
}

func (rr *reportRepo) GetByIDs(dbc dbctx.Context, reportIDs []uuid.UUID) ([]*types.Report, error) {
	var results []*types.Report
	if len(reportIDs) == 0 {
		return results, nil
	}
	if err := dbc.Resolve(rr.db).
		Where("id IN ?", reportIDs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// GetByID returns nil without error when the report does not exist.
func (rr *reportRepo) GetByID(dbc dbctx.Context, reportID uuid.UUID) (*types.Report, error) {
	rows, err := rr.GetByIDs(dbc, []uuid.UUID{reportID})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (rr *reportRepo) CompareAndSwapScore(dbc dbctx.Context, reportID uuid.UUID, expectedVersion int, upd ScoreUpdate) (bool, error) {
	updates := map[string]interface{}{
		"confidence_score": upd.Score,
		"version":          gorm.Expr("version + 1"),
		"updated_at":       upd.Now,
	}
	if upd.Status != "" {
		updates["status"] = upd.Status
	}
	if upd.ConfirmDelta != 0 {
		updates["confirm_count"] = gorm.Expr("confirm_count + ?", upd.ConfirmDelta)
	}
	if upd.InactiveDelta != 0 {
		updates["inactive_count"] = gorm.Expr("inactive_count + ?", upd.InactiveDelta)
	}
	if upd.FalseDelta != 0 {
		updates["false_count"] = gorm.Expr("false_count + ?", upd.FalseDelta)
	}
	res := dbc.Resolve(rr.db).
		Model(&types.Report{}).
		Where("id = ? AND version = ?", reportID, expectedVersion).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (rr *reportRepo) UpdateStatus(dbc dbctx.Context, reportID uuid.UUID, status types.ReportStatus, now time.Time) (bool, error) {
	res := dbc.Resolve(rr.db).
		Model(&types.Report{}).
		Where("id = ?", reportID).
		Updates(map[string]interface{}{
			"status":     status,
			"version":    gorm.Expr("version + 1"),
			"updated_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (rr *reportRepo) activeScope(dbc dbctx.Context, now time.Time) *gorm.DB {
	return dbc.Resolve(rr.db).
		Where("status <> ?", types.ReportStatusRemoved).
		Where("expires_at > ?", now)
}

// QueryWithinBounds returns one page of visible reports inside the box,
// newest first, starting after the cursor. Callers apply the exact
// great-circle filter.
func (rr *reportRepo) QueryWithinBounds(dbc dbctx.Context, b geo.Bounds, now time.Time, after ReportCursor, limit int) ([]*types.Report, error) {
	q := rr.activeScope(dbc, now).
		Where("latitude BETWEEN ? AND ?", b.MinLat, b.MaxLat)
	switch {
	case b.FullLng:
	case b.WrapsLng:
		q = q.Where("(longitude >= ? OR longitude <= ?)", b.MinLng, b.MaxLng)
	default:
		q = q.Where("longitude BETWEEN ? AND ?", b.MinLng, b.MaxLng)
	}
	if !after.IsZero() {
		q = q.Where("(created_at < ? OR (created_at = ? AND id < ?))", after.CreatedAt, after.CreatedAt, after.ID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var results []*types.Report
	if err := q.Order("created_at DESC").Order("id DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (rr *reportRepo) ListActive(dbc dbctx.Context, now time.Time, limit int) ([]*types.Report, error) {
	q := rr.activeScope(dbc, now).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var results []*types.Report
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (rr *reportRepo) ListPurgeable(dbc dbctx.Context, expiredBefore time.Time, includeRemoved bool, limit int) ([]*types.Report, error) {
	q := dbc.Resolve(rr.db).Unscoped().Where("expires_at <= ?", expiredBefore)
	if !includeRemoved {
		q = q.Where("status <> ?", types.ReportStatusRemoved)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var results []*types.Report
	if err := q.Order("expires_at ASC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// FullDeleteByIDs hard-deletes reports together with their interactions.
func (rr *reportRepo) FullDeleteByIDs(dbc dbctx.Context, reportIDs []uuid.UUID) error {
	if len(reportIDs) == 0 {
		return nil
	}
	return dbc.Resolve(rr.db).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("report_id IN ?", reportIDs).Delete(&types.ReportInteraction{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Where("id IN ?", reportIDs).Delete(&types.Report{}).Error
	})
}
