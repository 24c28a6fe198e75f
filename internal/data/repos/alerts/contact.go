package alerts

import (
	"database/sql"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/migralert/migralert-backend/internal/domain"
	"github.com/migralert/migralert-backend/internal/platform/dbctx"
	"github.com/migralert/migralert-backend/internal/platform/logger"
)

type EmergencyContactRepo interface {
	Create(dbc dbctx.Context, contact *types.EmergencyContact) error
	ListByUserID(dbc dbctx.Context, userID uuid.UUID) ([]*types.EmergencyContact, error)
	GetByID(dbc dbctx.Context, userID, contactID uuid.UUID) (*types.EmergencyContact, error)
	CountByUserID(dbc dbctx.Context, userID uuid.UUID) (int, error)
	MaxOrder(dbc dbctx.Context, userID uuid.UUID) (int, error)
	Update(dbc dbctx.Context, userID, contactID uuid.UUID, updates map[string]interface{}) (bool, error)
	SetOrder(dbc dbctx.Context, userID, contactID uuid.UUID, order int) error
	SoftDelete(dbc dbctx.Context, userID, contactID uuid.UUID) (bool, error)
	// LockOwner serializes contact mutations for one user. It is a no-op on
	// drivers without row locks.
	LockOwner(dbc dbctx.Context, userID uuid.UUID) error
}

type emergencyContactRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEmergencyContactRepo(db *gorm.DB, baseLog *logger.Logger) EmergencyContactRepo {
	repoLog := baseLog.With("repo", "EmergencyContactRepo")
	return &emergencyContactRepo{db: db, log: repoLog}
}

func (r *emergencyContactRepo) Create(dbc dbctx.Context, contact *types.EmergencyContact) error {
	return dbc.Resolve(r.db).Create(contact).Error
}

func (r *emergencyContactRepo) ListByUserID(dbc dbctx.Context, userID uuid.UUID) ([]*types.EmergencyContact, error) {
	var results []*types.EmergencyContact
	if err := dbc.Resolve(r.db).
		Where("user_id = ?", userID).
		Order("contact_order ASC").
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *emergencyContactRepo) GetByID(dbc dbctx.Context, userID, contactID uuid.UUID) (*types.EmergencyContact, error) {
	var results []*types.EmergencyContact
	if err := dbc.Resolve(r.db).
		Where("id = ? AND user_id = ?", contactID, userID).
		Limit(1).
		Find(&results).Error; err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results[0], nil
}

func (r *emergencyContactRepo) CountByUserID(dbc dbctx.Context, userID uuid.UUID) (int, error) {
	var count int64
	if err := dbc.Resolve(r.db).
		Model(&types.EmergencyContact{}).
		Where("user_id = ?", userID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// MaxOrder returns 0 when the user has no contacts.
func (r *emergencyContactRepo) MaxOrder(dbc dbctx.Context, userID uuid.UUID) (int, error) {
	var max sql.NullInt64
	if err := dbc.Resolve(r.db).
		Model(&types.EmergencyContact{}).
		Where("user_id = ?", userID).
		Select("MAX(contact_order)").
		Row().Scan(&max); err != nil {
		return 0, err
	}
	if !max.Valid {
		return 0, nil
	}
	return int(max.Int64), nil
}

func (r *emergencyContactRepo) Update(dbc dbctx.Context, userID, contactID uuid.UUID, updates map[string]interface{}) (bool, error) {
	if len(updates) == 0 {
		return true, nil
	}
	res := dbc.Resolve(r.db).
		Model(&types.EmergencyContact{}).
		Where("id = ? AND user_id = ?", contactID, userID).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *emergencyContactRepo) SetOrder(dbc dbctx.Context, userID, contactID uuid.UUID, order int) error {
	return dbc.Resolve(r.db).
		Model(&types.EmergencyContact{}).
		Where("id = ? AND user_id = ?", contactID, userID).
		Update("contact_order", order).Error
}

func (r *emergencyContactRepo) SoftDelete(dbc dbctx.Context, userID, contactID uuid.UUID) (bool, error) {
	res := dbc.Resolve(r.db).
		Where("id = ? AND user_id = ?", contactID, userID).
		Delete(&types.EmergencyContact{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *emergencyContactRepo) LockOwner(dbc dbctx.Context, userID uuid.UUID) error {
	tx := dbc.Resolve(r.db)
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	var u types.User
	return tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		Where("id = ?", userID).
		Take(&u).Error
}
