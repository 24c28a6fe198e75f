package feedback

import (
	"gorm.io/gorm"

	types "github.com/migralert/migralert-backend/internal/domain"
	"github.com/migralert/migralert-backend/internal/platform/dbctx"
	"github.com/migralert/migralert-backend/internal/platform/logger"
)

type FeedbackRepo interface {
	Create(dbc dbctx.Context, fb *types.Feedback) error
	ListRecent(dbc dbctx.Context, limit int) ([]*types.Feedback, error)
}

type feedbackRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFeedbackRepo(db *gorm.DB, baseLog *logger.Logger) FeedbackRepo {
	return &feedbackRepo{db: db, log: baseLog.With("repo", "FeedbackRepo")}
}

func (r *feedbackRepo) Create(dbc dbctx.Context, fb *types.Feedback) error {
	if fb.Status == "" {
		fb.Status = "new"
	}
	return dbc.Resolve(r.db).Create(fb).Error
}

func (r *feedbackRepo) ListRecent(dbc dbctx.Context, limit int) ([]*types.Feedback, error) {
	q := dbc.Resolve(r.db).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var results []*types.Feedback
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
