package alerts

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/migralert/migralert-backend/internal/domain"
	"github.com/migralert/migralert-backend/internal/platform/dbctx"
	"github.com/migralert/migralert-backend/internal/platform/logger"
)

type AlertConfigRepo interface {
	// GetByUserID returns nil when the user never saved a config.
	GetByUserID(dbc dbctx.Context, userID uuid.UUID) (*types.AlertConfig, error)
	Upsert(dbc dbctx.Context, cfg *types.AlertConfig) (*types.AlertConfig, error)
}

type alertConfigRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAlertConfigRepo(db *gorm.DB, baseLog *logger.Logger) AlertConfigRepo {
	repoLog := baseLog.With("repo", "AlertConfigRepo")
	return &alertConfigRepo{db: db, log: repoLog}
}

func (r *alertConfigRepo) GetByUserID(dbc dbctx.Context, userID uuid.UUID) (*types.AlertConfig, error) {
	var results []*types.AlertConfig
	if err := dbc.Resolve(r.db).
		Where("user_id = ?", userID).
		Limit(1).
		Find(&results).Error; err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results[0], nil
}

func (r *alertConfigRepo) Upsert(dbc dbctx.Context, cfg *types.AlertConfig) (*types.AlertConfig, error) {
	tx := dbc.Resolve(r.db)
	cfg.UpdatedAt = time.Now().UTC()
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"message", "share_location", "updated_at"}),
	}).Create(cfg).Error; err != nil {
		return nil, err
	}
	return r.GetByUserID(dbc, cfg.UserID)
}

type AlertHistoryRepo interface {
	Create(dbc dbctx.Context, entry *types.AlertHistory) error
	ListByUserID(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*types.AlertHistory, error)
	DeleteByUserID(dbc dbctx.Context, userID uuid.UUID) (int64, error)
	DeleteOlderThan(dbc dbctx.Context, cutoff time.Time) (int64, error)
}

type alertHistoryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAlertHistoryRepo(db *gorm.DB, baseLog *logger.Logger) AlertHistoryRepo {
	repoLog := baseLog.With("repo", "AlertHistoryRepo")
	return &alertHistoryRepo{db: db, log: repoLog}
}

func (r *alertHistoryRepo) Create(dbc dbctx.Context, entry *types.AlertHistory) error {
	return dbc.Resolve(r.db).Create(entry).Error
}

func (r *alertHistoryRepo) ListByUserID(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*types.AlertHistory, error) {
	q := dbc.Resolve(r.db).
		Where("user_id = ?", userID).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var results []*types.AlertHistory
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *alertHistoryRepo) DeleteByUserID(dbc dbctx.Context, userID uuid.UUID) (int64, error) {
	res := dbc.Resolve(r.db).Where("user_id = ?", userID).Delete(&types.AlertHistory{})
	return res.RowsAffected, res.Error
}

func (r *alertHistoryRepo) DeleteOlderThan(dbc dbctx.Context, cutoff time.Time) (int64, error) {
	res := dbc.Resolve(r.db).Where("created_at < ?", cutoff).Delete(&types.AlertHistory{})
	return res.RowsAffected, res.Error
}
