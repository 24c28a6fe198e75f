package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/migralert/migralert-backend/internal/data/repos"
	types "github.com/migralert/migralert-backend/internal/domain"
	"github.com/migralert/migralert-backend/internal/platform/apierr"
	"github.com/migralert/migralert-backend/internal/platform/dbctx"
	"github.com/migralert/migralert-backend/internal/platform/logger"
	"github.com/migralert/migralert-backend/internal/realtime"
)

const (
	maxContactNameLength         = 100
	maxContactRelationshipLength = 50
	DefaultHistoryLimit          = 10
	MaxHistoryLimit              = 100
)

type ContactInput struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Relationship string `json:"relationship"`
}

// ContactPatch carries the fields to change; nil leaves a field as is.
type ContactPatch struct {
	Name         *string `json:"name"`
	Phone        *string `json:"phone"`
	Relationship *string `json:"relationship"`
}

type ContactService interface {
	Add(ctx context.Context, userID uuid.UUID, in ContactInput) (*types.EmergencyContact, error)
	Update(ctx context.Context, userID, contactID uuid.UUID, patch ContactPatch) (*types.EmergencyContact, error)
	Remove(ctx context.Context, userID, contactID uuid.UUID) error
	List(ctx context.Context, userID uuid.UUID) ([]*types.EmergencyContact, error)
	Reorder(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) ([]*types.EmergencyContact, error)
	HasContacts(ctx context.Context, userID uuid.UUID) (bool, error)

	GetAlertConfig(ctx context.Context, userID uuid.UUID) (*types.AlertConfig, error)
	SetAlertConfig(ctx context.Context, userID uuid.UUID, message string, shareLocation bool) (*types.AlertConfig, error)

	ListHistory(ctx context.Context, userID uuid.UUID, limit int) ([]*types.AlertHistory, error)
	ClearHistory(ctx context.Context, userID uuid.UUID) (int64, error)
}

type contactService struct {
	db          *gorm.DB
	log         *logger.Logger
	contactRepo repos.EmergencyContactRepo
	configRepo  repos.AlertConfigRepo
	historyRepo repos.AlertHistoryRepo
	cache       *SessionCache
	publisher   realtime.Publisher
	now         func() time.Time
}

func NewContactService(
	db *gorm.DB,
	log *logger.Logger,
	contactRepo repos.EmergencyContactRepo,
	configRepo repos.AlertConfigRepo,
	historyRepo repos.AlertHistoryRepo,
	cache *SessionCache,
	publisher realtime.Publisher,
) ContactService {
	return &contactService{
		db:          db,
		log:         log.With("service", "ContactService"),
		contactRepo: contactRepo,
		configRepo:  configRepo,
		historyRepo: historyRepo,
		cache:       cache,
		publisher:   publisher,
		now:         time.Now,
	}
}

func cleanContactName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", validationErr("contact name is required")
	}
	if utf8.RuneCountInString(name) > maxContactNameLength {
		return "", validationErr("contact name exceeds %d characters", maxContactNameLength)
	}
	return name, nil
}

func cleanRelationship(rel string) (string, error) {
	rel = strings.TrimSpace(rel)
	if utf8.RuneCountInString(rel) > maxContactRelationshipLength {
		return "", validationErr("relationship exceeds %d characters", maxContactRelationshipLength)
	}
	return rel, nil
}

func cleanPhone(raw string) (string, error) {
	phone, ok := NormalizePhone(raw)
	if !ok {
		return "", validationErr("phone number %q is not a valid E.164 or US number", strings.TrimSpace(raw))
	}
	return phone, nil
}

func (cs *contactService) Add(ctx context.Context, userID uuid.UUID, in ContactInput) (*types.EmergencyContact, error) {
	name, err := cleanContactName(in.Name)
	if err != nil {
		return nil, err
	}
	phone, err := cleanPhone(in.Phone)
	if err != nil {
		return nil, err
	}
	rel, err := cleanRelationship(in.Relationship)
	if err != nil {
		return nil, err
	}

	contact := &types.EmergencyContact{
		UserID:       userID,
		Name:         name,
		Phone:        phone,
		Relationship: rel,
	}
	err = cs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if err := cs.contactRepo.LockOwner(dbc, userID); err != nil {
			return fmt.Errorf("lock owner: %w", err)
		}
		n, err := cs.contactRepo.CountByUserID(dbc, userID)
		if err != nil {
			return fmt.Errorf("count contacts: %w", err)
		}
		if n >= types.MaxEmergencyContacts {
			return apierr.New(http.StatusConflict, apierr.CodeCapacityExceeded,
				fmt.Errorf("%w: at most %d contacts", types.ErrCapacityExceeded, types.MaxEmergencyContacts))
		}
		maxOrder, err := cs.contactRepo.MaxOrder(dbc, userID)
		if err != nil {
			return fmt.Errorf("max order: %w", err)
		}
		contact.ContactOrder = maxOrder + 1
		return cs.contactRepo.Create(dbc, contact)
	})
	if err != nil {
		return nil, err
	}
	cs.changed(ctx, userID, realtime.SSEEventContactsChanged)
	return contact, nil
}

func (cs *contactService) Update(ctx context.Context, userID, contactID uuid.UUID, patch ContactPatch) (*types.EmergencyContact, error) {
	updates := map[string]interface{}{}
	if patch.Name != nil {
		name, err := cleanContactName(*patch.Name)
		if err != nil {
			return nil, err
		}
		updates["name"] = name
	}
	if patch.Phone != nil {
		phone, err := cleanPhone(*patch.Phone)
		if err != nil {
			return nil, err
		}
		updates["phone"] = phone
	}
	if patch.Relationship != nil {
		rel, err := cleanRelationship(*patch.Relationship)
		if err != nil {
			return nil, err
		}
		updates["relationship"] = rel
	}

	dbc := dbctx.Context{Ctx: ctx}
	existing, err := cs.contactRepo.GetByID(dbc, userID, contactID)
	if err != nil {
		return nil, fmt.Errorf("load contact: %w", err)
	}
	if existing == nil {
		return nil, notFoundErr("contact")
	}
	if len(updates) == 0 {
		return existing, nil
	}
	updates["updated_at"] = cs.now()
	ok, err := cs.contactRepo.Update(dbc, userID, contactID, updates)
	if err != nil {
		return nil, fmt.Errorf("update contact: %w", err)
	}
	if !ok {
		return nil, notFoundErr("contact")
	}
	updated, err := cs.contactRepo.GetByID(dbc, userID, contactID)
	if err != nil {
		return nil, fmt.Errorf("reload contact: %w", err)
	}
	if updated == nil {
		return nil, notFoundErr("contact")
	}
	cs.changed(ctx, userID, realtime.SSEEventContactsChanged)
	return updated, nil
}

func (cs *contactService) Remove(ctx context.Context, userID, contactID uuid.UUID) error {
	ok, err := cs.contactRepo.SoftDelete(dbctx.Context{Ctx: ctx}, userID, contactID)
	if err != nil {
		return fmt.Errorf("remove contact: %w", err)
	}
	if !ok {
		return notFoundErr("contact")
	}
	cs.changed(ctx, userID, realtime.SSEEventContactsChanged)
	return nil
}

func (cs *contactService) List(ctx context.Context, userID uuid.UUID) ([]*types.EmergencyContact, error) {
	if cached, ok := cs.cache.Contacts(ctx, userID); ok {
		return cached, nil
	}
	contacts, err := cs.contactRepo.ListByUserID(dbctx.Context{Ctx: ctx}, userID)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	cs.cache.StoreContacts(ctx, userID, contacts)
	return contacts, nil
}

func (cs *contactService) HasContacts(ctx context.Context, userID uuid.UUID) (bool, error) {
	contacts, err := cs.List(ctx, userID)
	if err != nil {
		return false, err
	}
	return len(contacts) > 0, nil
}

// Reorder assigns orders 1..N following ids, which must name exactly the
// user's contacts.
func (cs *contactService) Reorder(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) ([]*types.EmergencyContact, error) {
	var out []*types.EmergencyContact
	err := cs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if err := cs.contactRepo.LockOwner(dbc, userID); err != nil {
			return fmt.Errorf("lock owner: %w", err)
		}
		current, err := cs.contactRepo.ListByUserID(dbc, userID)
		if err != nil {
			return fmt.Errorf("list contacts: %w", err)
		}
		if len(ids) != len(current) {
			return validationErr("order must list all %d contacts", len(current))
		}
		owned := make(map[uuid.UUID]bool, len(current))
		for _, c := range current {
			owned[c.ID] = true
		}
		seen := make(map[uuid.UUID]bool, len(ids))
		for _, id := range ids {
			if !owned[id] || seen[id] {
				return validationErr("order must list each of your contacts exactly once")
			}
			seen[id] = true
		}
		for i, id := range ids {
			if err := cs.contactRepo.SetOrder(dbc, userID, id, i+1); err != nil {
				return fmt.Errorf("set order: %w", err)
			}
		}
		out, err = cs.contactRepo.ListByUserID(dbc, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	cs.changed(ctx, userID, realtime.SSEEventContactsChanged)
	return out, nil
}

func (cs *contactService) GetAlertConfig(ctx context.Context, userID uuid.UUID) (*types.AlertConfig, error) {
	if cached, ok := cs.cache.AlertConfig(ctx, userID); ok {
		return cached, nil
	}
	cfg, err := cs.configRepo.GetByUserID(dbctx.Context{Ctx: ctx}, userID)
	if err != nil {
		return nil, fmt.Errorf("load alert config: %w", err)
	}
	if cfg == nil {
		cfg = types.DefaultAlertConfig(userID)
	}
	cs.cache.StoreAlertConfig(ctx, userID, cfg)
	return cfg, nil
}

func (cs *contactService) SetAlertConfig(ctx context.Context, userID uuid.UUID, message string, shareLocation bool) (*types.AlertConfig, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, validationErr("alert message is required")
	}
	if utf8.RuneCountInString(message) > types.MaxAlertMessageLength {
		return nil, validationErr("alert message exceeds %d characters", types.MaxAlertMessageLength)
	}
	now := cs.now()
	saved, err := cs.configRepo.Upsert(dbctx.Context{Ctx: ctx}, &types.AlertConfig{
		UserID:        userID,
		Message:       message,
		ShareLocation: shareLocation,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		return nil, fmt.Errorf("save alert config: %w", err)
	}
	cs.changed(ctx, userID, realtime.SSEEventAlertConfigChanged)
	return saved, nil
}

func clampHistoryLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return limit
}

func (cs *contactService) ListHistory(ctx context.Context, userID uuid.UUID, limit int) ([]*types.AlertHistory, error) {
	limit = clampHistoryLimit(limit)
	if cached, ok := cs.cache.History(ctx, userID, limit); ok {
		return cached, nil
	}
	rows, err := cs.historyRepo.ListByUserID(dbctx.Context{Ctx: ctx}, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list alert history: %w", err)
	}
	cs.cache.StoreHistory(ctx, userID, limit, rows)
	return rows, nil
}

func (cs *contactService) ClearHistory(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := cs.historyRepo.DeleteByUserID(dbctx.Context{Ctx: ctx}, userID)
	if err != nil {
		return 0, fmt.Errorf("clear alert history: %w", err)
	}
	cs.cache.InvalidateUser(userID)
	return n, nil
}

func (cs *contactService) changed(ctx context.Context, userID uuid.UUID, event realtime.SSEEvent) {
	cs.cache.InvalidateUser(userID)
	if cs.publisher == nil {
		return
	}
	msg := realtime.SSEMessage{Channel: realtime.UserChannel(userID), Event: event}
	if err := cs.publisher.Publish(context.WithoutCancel(ctx), msg); err != nil {
		cs.log.Warn("Publish user change failed", "error", err, "event", event)
	}
}
