package reports

import (
	"gorm.io/gorm"

	"github.com/migralert/migralert-backend/internal/data/dberr"
	types "github.com/migralert/migralert-backend/internal/domain"
	"github.com/migralert/migralert-backend/internal/platform/dbctx"
	"github.com/migralert/migralert-backend/internal/platform/logger"
)

type ReportInteractionRepo interface {
	// Create returns types.ErrDuplicateInteraction when the actor already
	// interacted with the report.
	Create(dbc dbctx.Context, interaction *types.ReportInteraction) error
}

type reportInteractionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewReportInteractionRepo(db *gorm.DB, baseLog *logger.Logger) ReportInteractionRepo {
	repoLog := baseLog.With("repo", "ReportInteractionRepo")
	return &reportInteractionRepo{db: db, log: repoLog}
}

func (rir *reportInteractionRepo) Create(dbc dbctx.Context, interaction *types.ReportInteraction) error {
	if interaction == nil {
		return nil
	}
	if err := dbc.Resolve(rir.db).Create(interaction).Error; err != nil {
		if dberr.IsUniqueViolation(err) {
			return types.ErrDuplicateInteraction
		}
		return err
	}
	return nil
}
