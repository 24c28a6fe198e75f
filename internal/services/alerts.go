package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/migralert/migralert-backend/internal/clients/twilio"
	"github.com/migralert/migralert-backend/internal/data/repos"
	types "github.com/migralert/migralert-backend/internal/domain"
	"github.com/migralert/migralert-backend/internal/geo"
	"github.com/migralert/migralert-backend/internal/observability"
	"github.com/migralert/migralert-backend/internal/platform/apierr"
	"github.com/migralert/migralert-backend/internal/platform/dbctx"
	"github.com/migralert/migralert-backend/internal/platform/envutil"
	"github.com/migralert/migralert-backend/internal/platform/httpx"
	"github.com/migralert/migralert-backend/internal/platform/logger"
	"github.com/migralert/migralert-backend/internal/realtime"
)

const (
	emergencyPrefix = "EMERGENCY ALERT from MigrAlert:\n\n"
	locationPrefix  = "\n\nLast known location:\n"
	testPrefix      = "[TEST] MigrAlert:\n\n"
	testSuffix      = "\n\nThis is a test. Your alert setup is working!"
)

type DispatchConfig struct {
	FanoutLimit     int
	DispatchTimeout time.Duration
}

func DispatchConfigFromEnv() DispatchConfig {
	return DispatchConfig{
		FanoutLimit:     envutil.Int("ALERT_FANOUT_LIMIT", 5),
		DispatchTimeout: envutil.Seconds("ALERT_DISPATCH_TIMEOUT_SECONDS", 30),
	}
}

type EmergencyAlertInput struct {
	Message string `json:"message"`
	// ShareLocation overrides the saved preference when set.
	ShareLocation *bool      `json:"share_location"`
	Coords        *geo.Point `json:"coords"`
}

type SendFailure struct {
	ContactID uuid.UUID `json:"contact_id,omitempty"`
	Name      string    `json:"name,omitempty"`
	Error     string    `json:"error"`
	Retryable bool      `json:"retryable"`
}

type DispatchResult struct {
	Attempted        int           `json:"attempted"`
	SuccessCount     int           `json:"success_count"`
	FailedCount      int           `json:"failed_count"`
	PartialFailure   bool          `json:"partial_failure"`
	Failures         []SendFailure `json:"failures,omitempty"`
	IncludedLocation bool          `json:"included_location"`
	HistoryID        *uuid.UUID    `json:"history_id,omitempty"`
}

// DispatchError reports an alert where no send succeeded.
type DispatchError struct {
	Failures []SendFailure
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("%s (%d attempted)", types.ErrAllSendsFailed.Error(), len(e.Failures))
}

func (e *DispatchError) Unwrap() error { return types.ErrAllSendsFailed }

func (e *DispatchError) ErrorDetails() any {
	return map[string]any{"failures": e.Failures}
}

// EmergencyBody renders the SMS body for a real alert.
func EmergencyBody(message string, loc *geo.Point) string {
	body := emergencyPrefix + message
	if loc != nil {
		body += locationPrefix + geo.MapsLink(*loc)
	}
	return body
}

func TestBody(message string) string {
	return testPrefix + message + testSuffix
}

type AlertService interface {
	SendEmergencyAlert(ctx context.Context, userID uuid.UUID, in EmergencyAlertInput) (*DispatchResult, error)
	SendTestAlert(ctx context.Context, userID uuid.UUID, message string) (*DispatchResult, error)
}

type alertService struct {
	log         *logger.Logger
	contacts    ContactService
	userRepo    repos.UserRepo
	historyRepo repos.AlertHistoryRepo
	sms         twilio.Client
	cache       *SessionCache
	publisher   realtime.Publisher
	metrics     *observability.Metrics
	cfg         DispatchConfig
}

func NewAlertService(
	log *logger.Logger,
	contacts ContactService,
	userRepo repos.UserRepo,
	historyRepo repos.AlertHistoryRepo,
	sms twilio.Client,
	cache *SessionCache,
	publisher realtime.Publisher,
	metrics *observability.Metrics,
	cfg DispatchConfig,
) AlertService {
	if cfg.FanoutLimit <= 0 {
		cfg.FanoutLimit = 5
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = 30 * time.Second
	}
	return &alertService{
		log:         log.With("service", "AlertService"),
		contacts:    contacts,
		userRepo:    userRepo,
		historyRepo: historyRepo,
		sms:         sms,
		cache:       cache,
		publisher:   publisher,
		metrics:     metrics,
		cfg:         cfg,
	}
}

type recipient struct {
	contactID uuid.UUID
	name      string
	phone     string
}

func (as *alertService) SendEmergencyAlert(ctx context.Context, userID uuid.UUID, in EmergencyAlertInput) (*DispatchResult, error) {
	// The send must survive the caller hanging up.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), as.cfg.DispatchTimeout)
	defer cancel()
	ctx, span := observability.StartSpan(ctx, "AlertService.SendEmergencyAlert")
	defer span.End()
	started := time.Now()

	contacts, err := as.contacts.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(contacts) == 0 {
		as.metrics.AlertDispatch("emergency", "no_contacts", time.Since(started))
		return nil, apierr.New(http.StatusUnprocessableEntity, apierr.CodeNoContacts, types.ErrNoContactsConfigured)
	}

	cfg, err := as.contacts.GetAlertConfig(ctx, userID)
	if err != nil {
		return nil, err
	}
	message := strings.TrimSpace(in.Message)
	if message == "" {
		message = strings.TrimSpace(cfg.Message)
	}
	if message == "" {
		return nil, validationErr("alert message is empty")
	}
	if utf8.RuneCountInString(message) > types.MaxAlertMessageLength {
		return nil, validationErr("alert message exceeds %d characters", types.MaxAlertMessageLength)
	}
	share := cfg.ShareLocation
	if in.ShareLocation != nil {
		share = *in.ShareLocation
	}
	var loc *geo.Point
	if share && in.Coords != nil && in.Coords.Valid() {
		p := *in.Coords
		loc = &p
	}

	recipients := make([]recipient, 0, len(contacts))
	for _, c := range contacts {
		recipients = append(recipients, recipient{contactID: c.ID, name: c.Name, phone: c.Phone})
	}
	span.SetAttributes(attribute.Int("recipients", len(recipients)), attribute.Bool("location", loc != nil))

	res := as.fanOut(ctx, recipients, EmergencyBody(message, loc))
	res.IncludedLocation = loc != nil
	if res.SuccessCount == 0 {
		as.metrics.AlertDispatch("emergency", "all_failed", time.Since(started))
		as.log.Error("Emergency alert failed for every contact", "user_id", userID, "attempted", res.Attempted)
		return nil, as.allFailed(res)
	}

	entry := &types.AlertHistory{
		UserID:           userID,
		Message:          message,
		IsTest:           false,
		ContactsNotified: res.SuccessCount,
		CreatedAt:        time.Now().UTC(),
	}
	if loc != nil {
		entry.Latitude, entry.Longitude = &loc.Lat, &loc.Lng
	}
	if len(res.Failures) > 0 {
		if raw, err := json.Marshal(res.Failures); err == nil {
			entry.Failures = datatypes.JSON(raw)
		}
	}
	as.recordHistory(ctx, entry, res)

	result := "ok"
	if res.PartialFailure {
		result = "partial"
		as.log.Warn("Emergency alert partially delivered", "user_id", userID, "ok", res.SuccessCount, "failed", len(res.Failures))
	}
	as.metrics.AlertDispatch("emergency", result, time.Since(started))
	return res, nil
}

func (as *alertService) SendTestAlert(ctx context.Context, userID uuid.UUID, message string) (*DispatchResult, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), as.cfg.DispatchTimeout)
	defer cancel()
	started := time.Now()

	users, err := as.userRepo.GetByIDs(dbctx.Context{Ctx: ctx}, []uuid.UUID{userID})
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if len(users) == 0 || users[0] == nil {
		return nil, notFoundErr("user")
	}
	phone := strings.TrimSpace(users[0].Phone)
	if phone == "" {
		return nil, apierr.New(http.StatusUnprocessableEntity, apierr.CodeNoPhone, types.ErrNoPhoneOnAccount)
	}

	message = strings.TrimSpace(message)
	if message == "" {
		cfg, err := as.contacts.GetAlertConfig(ctx, userID)
		if err != nil {
			return nil, err
		}
		message = strings.TrimSpace(cfg.Message)
	}
	if message == "" {
		return nil, validationErr("alert message is empty")
	}

	res := as.fanOut(ctx, []recipient{{name: users[0].DisplayName, phone: phone}}, TestBody(message))
	if res.SuccessCount == 0 {
		as.metrics.AlertDispatch("test", "all_failed", time.Since(started))
		return nil, as.allFailed(res)
	}
	as.recordHistory(ctx, &types.AlertHistory{
		UserID:           userID,
		Message:          message,
		IsTest:           true,
		ContactsNotified: 0,
		CreatedAt:        time.Now().UTC(),
	}, res)
	as.metrics.AlertDispatch("test", "ok", time.Since(started))
	return res, nil
}

// fanOut attempts every recipient; one failure never cancels the others.
func (as *alertService) fanOut(ctx context.Context, recipients []recipient, body string) *DispatchResult {
	errs := make([]error, len(recipients))
	var g errgroup.Group
	g.SetLimit(as.cfg.FanoutLimit)
	for i, r := range recipients {
		i, r := i, r
		g.Go(func() error {
			_, err := as.sms.SendSMS(ctx, r.phone, body)
			errs[i] = err
			as.metrics.AlertSend(err == nil)
			return nil
		})
	}
	_ = g.Wait()

	res := &DispatchResult{Attempted: len(recipients)}
	for i, err := range errs {
		if err == nil {
			res.SuccessCount++
			continue
		}
		as.log.Warn("Alert SMS send failed", "contact_id", recipients[i].contactID, "phone", recipients[i].phone, "error", err)
		res.Failures = append(res.Failures, SendFailure{
			ContactID: recipients[i].contactID,
			Name:      recipients[i].name,
			Error:     err.Error(),
			Retryable: httpx.IsRetryableError(err) || errors.Is(err, context.DeadlineExceeded),
		})
	}
	res.FailedCount = len(res.Failures)
	res.PartialFailure = res.SuccessCount > 0 && res.FailedCount > 0
	return res
}

func (as *alertService) allFailed(res *DispatchResult) error {
	dErr := &DispatchError{Failures: res.Failures}
	return &apierr.Error{
		Status:    http.StatusBadGateway,
		Code:      apierr.CodeAllSendsFailed,
		Err:       dErr,
		Retryable: true,
	}
}

// recordHistory is written only after at least one successful send. A write
// failure is logged; the alert already went out.
func (as *alertService) recordHistory(ctx context.Context, entry *types.AlertHistory, res *DispatchResult) {
	if err := as.historyRepo.Create(dbctx.Context{Ctx: ctx}, entry); err != nil {
		as.log.Error("Write alert history failed", "error", err, "user_id", entry.UserID)
		return
	}
	id := entry.ID
	res.HistoryID = &id
	as.cache.InvalidateUser(entry.UserID)
	if as.publisher == nil {
		return
	}
	msg := realtime.SSEMessage{Channel: realtime.UserChannel(entry.UserID), Event: realtime.SSEEventAlertHistoryAdded, Data: entry}
	if err := as.publisher.Publish(ctx, msg); err != nil {
		as.log.Warn("Publish alert history failed", "error", err)
	}
}
