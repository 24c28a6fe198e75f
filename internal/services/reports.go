package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/migralert/migralert-backend/internal/clients/mapbox"
	"github.com/migralert/migralert-backend/internal/data/repos"
	types "github.com/migralert/migralert-backend/internal/domain"
	"github.com/migralert/migralert-backend/internal/geo"
	"github.com/migralert/migralert-backend/internal/media"
	"github.com/migralert/migralert-backend/internal/observability"
	"github.com/migralert/migralert-backend/internal/platform/apierr"
	"github.com/migralert/migralert-backend/internal/platform/dbctx"
	"github.com/migralert/migralert-backend/internal/platform/envutil"
	"github.com/migralert/migralert-backend/internal/platform/gcp"
	"github.com/migralert/migralert-backend/internal/platform/logger"
	"github.com/migralert/migralert-backend/internal/realtime"
	"github.com/migralert/migralert-backend/internal/scoring"
)

const (
	DefaultQueryRadiusMiles = 25.0
	MaxQueryRadiusMiles     = 500.0
	DefaultActiveLimit      = 100
	maxActiveLimit          = 500
	defaultQueryPageRows    = 500
	maxScoreCASAttempts     = 5
	MaxPhotoBytes           = 15 << 20
)

type ReportConfig struct {
	TTL             time.Duration
	GeocodeTimeout  time.Duration
	CompressTimeout time.Duration
	ActorSalt       string
	QueryPageRows   int
}

func ReportConfigFromEnv() ReportConfig {
	return ReportConfig{
		TTL:             time.Duration(envutil.Int("REPORT_TTL_HOURS", 12)) * time.Hour,
		GeocodeTimeout:  envutil.Millis("GEOCODE_TIMEOUT_MS", 3000),
		CompressTimeout: envutil.Millis("IMAGE_COMPRESS_TIMEOUT_MS", 5000),
		ActorSalt:       envutil.String("ANON_ACTOR_SALT", ""),
		QueryPageRows:   envutil.Int("REPORT_QUERY_PAGE_ROWS", defaultQueryPageRows),
	}
}

type SubmitReportInput struct {
	Latitude     float64
	Longitude    float64
	ActivityType string
	Description  string
	Photo        []byte
}

// ReportView is a report as shown to viewers.
type ReportView struct {
	*types.Report
	DistanceMiles   *float64                `json:"distance_miles,omitempty"`
	ConfidenceLevel scoring.ConfidenceLevel `json:"confidence_level"`
}

type ReportService interface {
	Submit(ctx context.Context, in SubmitReportInput) (*types.Report, error)
	RecordInteraction(ctx context.Context, reportID uuid.UUID, t types.InteractionType, actor Actor) (*types.Report, error)
	Query(ctx context.Context, center geo.Point, radiusMiles float64) ([]ReportView, error)
	ListActive(ctx context.Context, limit int) ([]ReportView, error)
	Get(ctx context.Context, id uuid.UUID) (*ReportView, error)
	Moderate(ctx context.Context, id uuid.UUID, status types.ReportStatus, actor Actor) (*types.Report, error)
}

type reportService struct {
	db              *gorm.DB
	log             *logger.Logger
	reportRepo      repos.ReportRepo
	interactionRepo repos.ReportInteractionRepo
	scorer          *scoring.Scorer
	geocoder        mapbox.Geocoder
	bucket          gcp.BucketService
	screener        gcp.PhotoScreener
	publisher       realtime.Publisher
	metrics         *observability.Metrics
	cfg             ReportConfig
	now             func() time.Time
}

func NewReportService(
	db *gorm.DB,
	log *logger.Logger,
	reportRepo repos.ReportRepo,
	interactionRepo repos.ReportInteractionRepo,
	scorer *scoring.Scorer,
	geocoder mapbox.Geocoder,
	bucket gcp.BucketService,
	screener gcp.PhotoScreener,
	publisher realtime.Publisher,
	metrics *observability.Metrics,
	cfg ReportConfig,
) ReportService {
	if cfg.TTL <= 0 {
		cfg.TTL = 12 * time.Hour
	}
	if cfg.QueryPageRows <= 0 {
		cfg.QueryPageRows = defaultQueryPageRows
	}
	if scorer == nil {
		scorer = scoring.Default()
	}
	if geocoder == nil {
		geocoder = mapbox.NewNoop()
	}
	return &reportService{
		db:              db,
		log:             log.With("service", "ReportService"),
		reportRepo:      reportRepo,
		interactionRepo: interactionRepo,
		scorer:          scorer,
		geocoder:        geocoder,
		bucket:          bucket,
		screener:        screener,
		publisher:       publisher,
		metrics:         metrics,
		cfg:             cfg,
		now:             time.Now,
	}
}

func (rs *reportService) Submit(ctx context.Context, in SubmitReportInput) (*types.Report, error) {
	ctx, span := observability.StartSpan(ctx, "ReportService.Submit")
	defer span.End()

	actor := ActorFromContext(ctx)
	if !actor.Authenticated() {
		return nil, unauthorizedErr("sign in to submit a report")
	}
	activity, ok := types.ParseActivityType(in.ActivityType)
	if !ok {
		return nil, validationErr("unknown activity type %q", in.ActivityType)
	}
	loc := geo.Point{Lat: in.Latitude, Lng: in.Longitude}
	if !loc.Valid() {
		return nil, validationErr("location out of range")
	}
	desc := strings.TrimSpace(in.Description)
	if utf8.RuneCountInString(desc) > types.MaxDescriptionLength {
		return nil, validationErr("description exceeds %d characters", types.MaxDescriptionLength)
	}
	if len(in.Photo) > MaxPhotoBytes {
		return nil, validationErr("photo exceeds %d bytes", MaxPhotoBytes)
	}
	hasPhoto := len(in.Photo) > 0
	if hasPhoto && !media.IsImageContentType(media.DetectContentType(in.Photo)) {
		return nil, validationErr("photo must be a JPEG, PNG, WebP or GIF image")
	}
	span.SetAttributes(attribute.String("activity_type", string(activity)), attribute.Bool("has_photo", hasPhoto))

	if hasPhoto && rs.screener != nil {
		verdict, err := rs.screener.Screen(ctx, in.Photo)
		switch {
		case err != nil:
			rs.log.Warn("Photo screening failed, accepting photo", "error", err)
		case !verdict.Allowed:
			return nil, validationErr("photo rejected: %s", strings.Join(verdict.Reasons, ", "))
		}
	}

	place := rs.reverseGeocode(ctx, loc)
	now := rs.now()
	report := &types.Report{
		ID:              uuid.New(),
		UserID:          &actor.UserID,
		Latitude:        loc.Lat,
		Longitude:       loc.Lng,
		City:            place.City,
		Region:          place.Region,
		ActivityType:    activity,
		Description:     desc,
		Status:          types.ReportStatusPending,
		ConfidenceScore: rs.scorer.InitialScore(hasPhoto),
		ExpiresAt:       now.Add(rs.cfg.TTL),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if hasPhoto {
		key, err := rs.uploadPhoto(ctx, report.ID, in.Photo)
		if err != nil {
			return nil, err
		}
		report.ImageKey = key
		report.ImageURL = rs.bucket.GetPublicURL(gcp.BucketCategoryReportPhoto, key)
	}

	if _, err := rs.reportRepo.Create(dbctx.Context{Ctx: ctx}, []*types.Report{report}); err != nil {
		rs.log.Error("Create report failed", "error", err)
		if report.ImageKey != "" {
			if delErr := rs.bucket.DeleteFile(context.WithoutCancel(ctx), gcp.BucketCategoryReportPhoto, report.ImageKey); delErr != nil {
				rs.log.Warn("Orphaned report photo", "key", report.ImageKey, "error", delErr)
			}
		}
		return nil, fmt.Errorf("create report: %w", err)
	}

	rs.metrics.ReportCreated(string(activity), hasPhoto)
	rs.publish(ctx, realtime.SSEEventReportCreated, report)
	return report, nil
}

func (rs *reportService) reverseGeocode(ctx context.Context, loc geo.Point) mapbox.Place {
	gctx, cancel := context.WithTimeout(ctx, rs.cfg.GeocodeTimeout)
	defer cancel()
	place, err := rs.geocoder.Reverse(gctx, loc.Lat, loc.Lng)
	if err != nil {
		rs.log.Warn("Reverse geocode failed, using placeholders", "error", err)
		rs.metrics.GeocodeFailure()
		place = mapbox.Place{}
	}
	if strings.TrimSpace(place.City) == "" {
		place.City = types.UnknownPlace
	}
	if strings.TrimSpace(place.Region) == "" {
		place.Region = types.UnknownPlace
	}
	return place
}

func (rs *reportService) uploadPhoto(ctx context.Context, reportID uuid.UUID, photo []byte) (string, error) {
	if rs.bucket == nil {
		return "", errors.New("photo storage not configured")
	}
	data := photo
	contentType := media.DetectContentType(photo)
	res, err := media.CompressWithTimeout(ctx, photo, media.Options{}, rs.cfg.CompressTimeout)
	if err != nil {
		rs.log.Warn("Photo compression failed, uploading original", "error", err)
		rs.metrics.PhotoCompressFailure()
	} else {
		data = res.Data
		contentType = res.ContentType
	}
	key := fmt.Sprintf("reports/%s/%s%s", reportID, uuid.NewString(), gcp.ExtensionForContentType(contentType))
	if err := rs.bucket.UploadFile(ctx, gcp.BucketCategoryReportPhoto, key, bytes.NewReader(data), contentType); err != nil {
		rs.log.Error("Upload report photo failed", "error", err, "key", key)
		return "", fmt.Errorf("upload photo: %w", err)
	}
	return key, nil
}

func (rs *reportService) RecordInteraction(ctx context.Context, reportID uuid.UUID, t types.InteractionType, actor Actor) (*types.Report, error) {
	ctx, span := observability.StartSpan(ctx, "ReportService.RecordInteraction",
		attribute.String("interaction_type", string(t)))
	defer span.End()

	if _, ok := types.ParseInteractionType(string(t)); !ok {
		return nil, validationErr("unknown interaction type %q", t)
	}
	now := rs.now()
	existing, err := rs.reportRepo.GetByID(dbctx.Context{Ctx: ctx}, reportID)
	if err != nil {
		return nil, fmt.Errorf("load report: %w", err)
	}
	if !existing.Visible(now) {
		return nil, notFoundErr("report")
	}

	interaction := &types.ReportInteraction{
		ReportID:        reportID,
		ActorKey:        InteractionActorKey(actor, reportID, rs.cfg.ActorSalt),
		InteractionType: t,
		CreatedAt:       now,
	}
	if actor.Authenticated() {
		uid := actor.UserID
		interaction.UserID = &uid
	}

	var updated *types.Report
	err = rs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if err := rs.interactionRepo.Create(dbc, interaction); err != nil {
			return err
		}
		for attempt := 0; attempt < maxScoreCASAttempts; attempt++ {
			cur, err := rs.reportRepo.GetByID(dbc, reportID)
			if err != nil {
				return fmt.Errorf("reload report: %w", err)
			}
			if !cur.Visible(now) {
				return notFoundErr("report")
			}
			upd := rs.scoreUpdate(cur, t, now)
			ok, err := rs.reportRepo.CompareAndSwapScore(dbc, reportID, cur.Version, upd)
			if err != nil {
				return fmt.Errorf("update score: %w", err)
			}
			if ok {
				cur.ConfidenceScore = upd.Score
				cur.Status = upd.Status
				cur.ConfirmCount += upd.ConfirmDelta
				cur.InactiveCount += upd.InactiveDelta
				cur.FalseCount += upd.FalseDelta
				cur.Version++
				cur.UpdatedAt = now
				updated = cur
				return nil
			}
			rs.metrics.ScoreCASRetry()
		}
		return apierr.NewRetryable(http.StatusServiceUnavailable, apierr.CodeInternal,
			errors.New("report is being updated concurrently, try again"))
	})
	if err != nil {
		if errors.Is(err, types.ErrDuplicateInteraction) {
			rs.metrics.Interaction(string(t), "duplicate")
			return nil, apierr.New(http.StatusConflict, apierr.CodeDuplicateInteraction, types.ErrDuplicateInteraction)
		}
		rs.metrics.Interaction(string(t), "error")
		return nil, err
	}

	rs.metrics.Interaction(string(t), "ok")
	event := realtime.SSEEventReportUpdated
	if updated.Status == types.ReportStatusRemoved {
		event = realtime.SSEEventReportRemoved
		rs.log.Info("Report removed by score collapse", "report_id", reportID, "score", updated.ConfidenceScore)
	}
	rs.publish(ctx, event, updated)
	return updated, nil
}

func (rs *reportService) scoreUpdate(cur *types.Report, t types.InteractionType, now time.Time) repos.ScoreUpdate {
	upd := repos.ScoreUpdate{Score: rs.scorer.Apply(cur.ConfidenceScore, t), Now: now}
	switch t {
	case types.InteractionConfirm:
		upd.ConfirmDelta = 1
	case types.InteractionNoLongerActive:
		upd.InactiveDelta = 1
	case types.InteractionFalse:
		upd.FalseDelta = 1
	}
	upd.Status = rs.scorer.NextStatus(cur.Status, upd.Score, cur.ConfirmCount+upd.ConfirmDelta, cur.FalseCount+upd.FalseDelta)
	return upd
}

// Query pages through every visible report in the radius's bounding box,
// newest first, and keeps those within the exact distance.
func (rs *reportService) Query(ctx context.Context, center geo.Point, radiusMiles float64) ([]ReportView, error) {
	if !center.Valid() {
		return nil, validationErr("location out of range")
	}
	if radiusMiles < 0 {
		return nil, validationErr("radius must not be negative")
	}
	if radiusMiles > MaxQueryRadiusMiles {
		radiusMiles = MaxQueryRadiusMiles
	}
	now := rs.now()
	bounds := geo.BoundsForRadius(center, radiusMiles)
	dbc := dbctx.Context{Ctx: ctx}
	out := []ReportView{}
	var cursor repos.ReportCursor
	for {
		rows, err := rs.reportRepo.QueryWithinBounds(dbc, bounds, now, cursor, rs.cfg.QueryPageRows)
		if err != nil {
			return nil, fmt.Errorf("query reports: %w", err)
		}
		for _, r := range rows {
			d := geo.DistanceMiles(center, geo.Point{Lat: r.Latitude, Lng: r.Longitude})
			if d > radiusMiles+1e-9 {
				continue
			}
			dist := d
			out = append(out, ReportView{Report: r, DistanceMiles: &dist, ConfidenceLevel: rs.scorer.Level(r.ConfidenceScore)})
		}
		if len(rows) < rs.cfg.QueryPageRows {
			return out, nil
		}
		cursor = repos.CursorAfter(rows[len(rows)-1])
	}
}

func (rs *reportService) ListActive(ctx context.Context, limit int) ([]ReportView, error) {
	if limit <= 0 {
		limit = DefaultActiveLimit
	}
	if limit > maxActiveLimit {
		limit = maxActiveLimit
	}
	rows, err := rs.reportRepo.ListActive(dbctx.Context{Ctx: ctx}, rs.now(), limit)
	if err != nil {
		return nil, fmt.Errorf("list active reports: %w", err)
	}
	out := make([]ReportView, 0, len(rows))
	for _, r := range rows {
		out = append(out, rs.view(r))
	}
	return out, nil
}

func (rs *reportService) Get(ctx context.Context, id uuid.UUID) (*ReportView, error) {
	r, err := rs.reportRepo.GetByID(dbctx.Context{Ctx: ctx}, id)
	if err != nil {
		return nil, fmt.Errorf("load report: %w", err)
	}
	if r == nil || r.Status == types.ReportStatusRemoved {
		return nil, notFoundErr("report")
	}
	v := rs.view(r)
	return &v, nil
}

func (rs *reportService) Moderate(ctx context.Context, id uuid.UUID, status types.ReportStatus, actor Actor) (*types.Report, error) {
	if !actor.Authenticated() {
		return nil, unauthorizedErr("sign in to moderate reports")
	}
	if !actor.Role.CanModerate() {
		return nil, forbiddenErr("moderator role required")
	}
	if status != types.ReportStatusVerified && status != types.ReportStatusRemoved {
		return nil, validationErr("status must be verified or removed")
	}
	dbc := dbctx.Context{Ctx: ctx}
	r, err := rs.reportRepo.GetByID(dbc, id)
	if err != nil {
		return nil, fmt.Errorf("load report: %w", err)
	}
	if r == nil || r.Status == types.ReportStatusRemoved {
		return nil, notFoundErr("report")
	}
	if r.Status == status {
		return r, nil
	}
	now := rs.now()
	ok, err := rs.reportRepo.UpdateStatus(dbc, id, status, now)
	if err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	if !ok {
		return nil, notFoundErr("report")
	}
	r.Status = status
	r.UpdatedAt = now
	r.Version++
	rs.log.Info("Report moderated", "report_id", id, "status", status, "user_id", actor.UserID)

	event := realtime.SSEEventReportUpdated
	if status == types.ReportStatusRemoved {
		event = realtime.SSEEventReportRemoved
	}
	rs.publish(ctx, event, r)
	return r, nil
}

func (rs *reportService) view(r *types.Report) ReportView {
	return ReportView{Report: r, ConfidenceLevel: rs.scorer.Level(r.ConfidenceScore)}
}

// publish is best effort; viewers reconcile by report id.
func (rs *reportService) publish(ctx context.Context, event realtime.SSEEvent, r *types.Report) {
	if rs.publisher == nil || r == nil {
		return
	}
	var data any = rs.view(r)
	if event == realtime.SSEEventReportRemoved {
		data = map[string]any{"id": r.ID, "status": r.Status}
	}
	msg := realtime.SSEMessage{Channel: realtime.ReportsChannel, Event: event, Data: data}
	if err := rs.publisher.Publish(context.WithoutCancel(ctx), msg); err != nil {
		rs.log.Warn("Publish report change failed", "error", err, "event", event, "report_id", r.ID)
	}
}
