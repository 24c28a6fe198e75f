package services

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/migralert/migralert-backend/internal/clients/mapbox"
	"github.com/migralert/migralert-backend/internal/data/repos"
	"github.com/migralert/migralert-backend/internal/data/repos/testutil"
	types "github.com/migralert/migralert-backend/internal/domain"
	"github.com/migralert/migralert-backend/internal/geo"
	"github.com/migralert/migralert-backend/internal/platform/apierr"
	"github.com/migralert/migralert-backend/internal/platform/dbctx"
	"github.com/migralert/migralert-backend/internal/realtime"
	"github.com/migralert/migralert-backend/internal/scoring"
)

func okGeocoder() mapbox.Geocoder {
	return geocoderFunc(func(context.Context, float64, float64) (mapbox.Place, error) {
		return mapbox.Place{City: "Los Angeles", Region: "CA"}, nil
	})
}

func pngPhoto(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 12))
	for x := 0; x < 16; x++ {
		for y := 0; y < 12; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 10), G: uint8(y * 10), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestSubmitRequiresSignedInActor(t *testing.T) {
	f := newFixture(t)
	svc := f.reportService(okGeocoder())
	_, err := svc.Submit(context.Background(), SubmitReportInput{Latitude: 34, Longitude: -118, ActivityType: "raid"})
	wantCode(t, err, apierr.CodeUnauthorized)
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t)
	svc := f.reportService(okGeocoder())
	ctx := sessionCtx(uuid.New(), "user")

	cases := []struct {
		name string
		in   SubmitReportInput
	}{
		{"unknown activity", SubmitReportInput{Latitude: 34, Longitude: -118, ActivityType: "parade"}},
		{"latitude out of range", SubmitReportInput{Latitude: 91, Longitude: -118, ActivityType: "raid"}},
		{"longitude out of range", SubmitReportInput{Latitude: 34, Longitude: 181, ActivityType: "raid"}},
		{"description too long", SubmitReportInput{Latitude: 34, Longitude: -118, ActivityType: "raid", Description: strings.Repeat("é", 501)}},
		{"photo not an image", SubmitReportInput{Latitude: 34, Longitude: -118, ActivityType: "raid", Photo: []byte("plain text, not a photo")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Submit(ctx, tc.in)
			wantCode(t, err, apierr.CodeValidation)
			if !errors.Is(err, types.ErrValidation) {
				t.Fatalf("want ErrValidation in chain, got %v", err)
			}
		})
	}
	if len(f.pub.events(realtime.ReportsChannel)) != 0 {
		t.Fatalf("rejected submissions must not publish")
	}
}

func TestSubmitWithoutPhotoUsesPlaceholdersOnGeocodeFailure(t *testing.T) {
	f := newFixture(t)
	failing := geocoderFunc(func(context.Context, float64, float64) (mapbox.Place, error) {
		return mapbox.Place{}, errors.New("mapbox down")
	})
	svc := f.reportService(failing)
	uid := uuid.New()

	before := time.Now()
	r, err := svc.Submit(sessionCtx(uid, "user"), SubmitReportInput{
		Latitude: 34.05, Longitude: -118.24, ActivityType: " Checkpoint ", Description: "  two vans  ",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if r.City != types.UnknownPlace || r.Region != types.UnknownPlace {
		t.Fatalf("place: want placeholders got=%q/%q", r.City, r.Region)
	}
	if r.ConfidenceScore != 40 || r.Status != types.ReportStatusPending {
		t.Fatalf("initial state: want 40/pending got=%d/%s", r.ConfidenceScore, r.Status)
	}
	if r.ActivityType != types.ActivityCheckpoint || r.Description != "two vans" {
		t.Fatalf("normalization: got activity=%q desc=%q", r.ActivityType, r.Description)
	}
	if r.UserID == nil || *r.UserID != uid {
		t.Fatalf("submitter: want=%s got=%v", uid, r.UserID)
	}
	if ttl := r.ExpiresAt.Sub(r.CreatedAt); ttl != 12*time.Hour {
		t.Fatalf("ttl: want=12h got=%s", ttl)
	}
	if r.CreatedAt.Before(before) {
		t.Fatalf("created_at before submit")
	}

	stored, err := f.reportRepo.GetByID(dbctx.Context{Ctx: context.Background()}, r.ID)
	if err != nil || stored == nil {
		t.Fatalf("stored report: %v %v", stored, err)
	}
	if got := f.pub.events(realtime.ReportsChannel); len(got) != 1 || got[0] != realtime.SSEEventReportCreated {
		t.Fatalf("events: want=[report_created] got=%v", got)
	}
}

func TestSubmitWithPhotoUploadsCompressedImage(t *testing.T) {
	f := newFixture(t)
	svc := f.reportService(okGeocoder())

	r, err := svc.Submit(sessionCtx(uuid.New(), "user"), SubmitReportInput{
		Latitude: 34.05, Longitude: -118.24, ActivityType: "patrol", Photo: pngPhoto(t),
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if r.ConfidenceScore != 70 {
		t.Fatalf("score with photo: want=70 got=%d", r.ConfidenceScore)
	}
	if r.City != "Los Angeles" || r.Region != "CA" {
		t.Fatalf("place: got=%q/%q", r.City, r.Region)
	}
	if r.ImageKey == "" || !strings.HasSuffix(r.ImageKey, ".jpg") {
		t.Fatalf("image key: got=%q", r.ImageKey)
	}
	if !strings.HasPrefix(r.ImageURL, "http://media.test/") {
		t.Fatalf("image url: got=%q", r.ImageURL)
	}
	if f.bucket.Len() != 1 {
		t.Fatalf("bucket objects: want=1 got=%d", f.bucket.Len())
	}
}

type failingCreateRepo struct {
	repos.ReportRepo
	err error
}

func (r failingCreateRepo) Create(dbctx.Context, []*types.Report) ([]*types.Report, error) {
	return nil, r.err
}

func TestSubmitDeletesUploadedPhotoWhenInsertFails(t *testing.T) {
	f := newFixture(t)
	errDown := errors.New("db down")
	f.reportRepo = failingCreateRepo{ReportRepo: f.reportRepo, err: errDown}
	svc := f.reportService(okGeocoder())

	_, err := svc.Submit(sessionCtx(uuid.New(), "user"), SubmitReportInput{
		Latitude: 34.05, Longitude: -118.24, ActivityType: "patrol", Photo: pngPhoto(t),
	})
	if !errors.Is(err, errDown) {
		t.Fatalf("Submit: want wrapped insert error got=%v", err)
	}
	if f.bucket.Len() != 0 {
		t.Fatalf("bucket objects after failed insert: want=0 got=%d", f.bucket.Len())
	}
	if got := f.pub.events(realtime.ReportsChannel); len(got) != 0 {
		t.Fatalf("failed submit must not publish: got=%v", got)
	}
}

func TestRecordInteractionScoresAndRejectsDuplicates(t *testing.T) {
	f := newFixture(t)
	svc := f.reportService(okGeocoder())
	ctx := context.Background()
	r := testutil.SeedReport(t, ctx, f.db, 34, -118, time.Now().Add(-time.Hour))

	actor := Actor{UserID: uuid.New(), Role: types.RoleUser}
	updated, err := svc.RecordInteraction(ctx, r.ID, types.InteractionConfirm, actor)
	if err != nil {
		t.Fatalf("RecordInteraction: %v", err)
	}
	if updated.ConfidenceScore != 52 || updated.ConfirmCount != 1 {
		t.Fatalf("after confirm: want score=52 confirms=1 got=%d/%d", updated.ConfidenceScore, updated.ConfirmCount)
	}

	_, err = svc.RecordInteraction(ctx, r.ID, types.InteractionFalse, actor)
	wantCode(t, err, apierr.CodeDuplicateInteraction)
	if !errors.Is(err, types.ErrDuplicateInteraction) {
		t.Fatalf("want ErrDuplicateInteraction, got %v", err)
	}

	stored, _ := f.reportRepo.GetByID(dbctx.Context{Ctx: ctx}, r.ID)
	if stored.ConfidenceScore != 52 || stored.FalseCount != 0 {
		t.Fatalf("duplicate must not change the score: got=%d false=%d", stored.ConfidenceScore, stored.FalseCount)
	}

	// Anonymous actors are told apart by client IP.
	anonA := Actor{ClientIP: "198.51.100.1"}
	anonB := Actor{ClientIP: "198.51.100.2"}
	if _, err := svc.RecordInteraction(ctx, r.ID, types.InteractionNoLongerActive, anonA); err != nil {
		t.Fatalf("anon A: %v", err)
	}
	if _, err := svc.RecordInteraction(ctx, r.ID, types.InteractionNoLongerActive, anonB); err != nil {
		t.Fatalf("anon B: %v", err)
	}
	_, err = svc.RecordInteraction(ctx, r.ID, types.InteractionConfirm, anonA)
	wantCode(t, err, apierr.CodeDuplicateInteraction)

	if got := f.pub.events(realtime.ReportsChannel); len(got) != 3 {
		t.Fatalf("events: want 3 report_updated got=%v", got)
	}
}

func TestRecordInteractionUnknownOrExpiredReport(t *testing.T) {
	f := newFixture(t)
	svc := f.reportService(okGeocoder())
	ctx := context.Background()

	_, err := svc.RecordInteraction(ctx, uuid.New(), types.InteractionConfirm, Actor{UserID: uuid.New()})
	wantCode(t, err, apierr.CodeNotFound)

	expired := testutil.SeedReport(t, ctx, f.db, 34, -118, time.Now().Add(-13*time.Hour))
	_, err = svc.RecordInteraction(ctx, expired.ID, types.InteractionConfirm, Actor{UserID: uuid.New()})
	wantCode(t, err, apierr.CodeNotFound)
}

func TestFalseReportsCollapseRemovesReport(t *testing.T) {
	f := newFixture(t)
	svc := f.reportService(okGeocoder())
	ctx := context.Background()
	r := testutil.SeedReport(t, ctx, f.db, 34, -118, time.Now().Add(-time.Hour))

	wantScores := []int{26, 16, 10}
	var last *types.Report
	for i, want := range wantScores {
		var err error
		last, err = svc.RecordInteraction(ctx, r.ID, types.InteractionFalse, Actor{UserID: uuid.New()})
		if err != nil {
			t.Fatalf("false #%d: %v", i+1, err)
		}
		if last.ConfidenceScore != want {
			t.Fatalf("false #%d: want score=%d got=%d", i+1, want, last.ConfidenceScore)
		}
	}
	if last.Status != types.ReportStatusRemoved {
		t.Fatalf("status: want removed got=%s", last.Status)
	}
	events := f.pub.events(realtime.ReportsChannel)
	if events[len(events)-1] != realtime.SSEEventReportRemoved {
		t.Fatalf("last event: want report_removed got=%v", events)
	}

	views, err := svc.Query(ctx, geo.Point{Lat: 34, Lng: -118}, 5)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(views) != 0 {
		t.Fatalf("removed report must not be listed, got %d", len(views))
	}
	_, err = svc.RecordInteraction(ctx, r.ID, types.InteractionConfirm, Actor{UserID: uuid.New()})
	wantCode(t, err, apierr.CodeNotFound)
}

func TestConfirmationsVerifyReport(t *testing.T) {
	f := newFixture(t)
	svc := f.reportService(okGeocoder())
	ctx := context.Background()
	r := testutil.SeedReport(t, ctx, f.db, 34, -118, time.Now().Add(-time.Hour))

	scores := []int{52, 62, 70, 76, 81, 85}
	var last *types.Report
	for i, want := range scores {
		var err error
		last, err = svc.RecordInteraction(ctx, r.ID, types.InteractionConfirm, Actor{UserID: uuid.New()})
		if err != nil {
			t.Fatalf("confirm #%d: %v", i+1, err)
		}
		if last.ConfidenceScore != want {
			t.Fatalf("confirm #%d: want=%d got=%d", i+1, want, last.ConfidenceScore)
		}
		if i < len(scores)-1 && last.Status != types.ReportStatusPending {
			t.Fatalf("confirm #%d: verified too early (score %d)", i+1, last.ConfidenceScore)
		}
	}
	if last.Status != types.ReportStatusVerified {
		t.Fatalf("status: want verified got=%s", last.Status)
	}
}

func TestQueryRadiusFiltersAndOrders(t *testing.T) {
	f := newFixture(t)
	svc := f.reportService(okGeocoder())
	ctx := context.Background()
	now := time.Now()
	center := geo.Point{Lat: 34.0, Lng: -118.0}

	older := testutil.SeedReport(t, ctx, f.db, 34.0, -118.0, now.Add(-2*time.Hour))
	newer := testutil.SeedReport(t, ctx, f.db, 34.0+10.0/69.09, -118.0, now.Add(-time.Hour))
	testutil.SeedReport(t, ctx, f.db, 34.0+40.0/69.09, -118.0, now.Add(-30*time.Minute))
	testutil.SeedReport(t, ctx, f.db, 34.0, -118.0, now.Add(-13*time.Hour))
	removed := testutil.SeedReport(t, ctx, f.db, 34.0, -118.0, now.Add(-10*time.Minute))
	if err := f.db.Model(&types.Report{}).Where("id = ?", removed.ID).Update("status", types.ReportStatusRemoved).Error; err != nil {
		t.Fatalf("mark removed: %v", err)
	}

	views, err := svc.Query(ctx, center, DefaultQueryRadiusMiles)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("results: want=2 got=%d", len(views))
	}
	if views[0].ID != newer.ID || views[1].ID != older.ID {
		t.Fatalf("order: want newest first")
	}
	if d := *views[0].DistanceMiles; d < 9.9 || d > 10.1 {
		t.Fatalf("distance: want ~10 got=%f", d)
	}
	if *views[1].DistanceMiles > 1e-6 {
		t.Fatalf("distance at center: got=%f", *views[1].DistanceMiles)
	}
	if views[0].ConfidenceLevel != scoring.LevelMedium {
		t.Fatalf("level for score 40: want medium got=%s", views[0].ConfidenceLevel)
	}

	wide, err := svc.Query(ctx, center, 100)
	if err != nil || len(wide) != 3 {
		t.Fatalf("wide query: want 3 got=%d err=%v", len(wide), err)
	}

	_, err = svc.Query(ctx, center, -1)
	wantCode(t, err, apierr.CodeValidation)
}

func TestQueryReadsPastFirstPageOfBoxCandidates(t *testing.T) {
	f := newFixture(t)
	svc := NewReportService(f.db, f.log, f.reportRepo, f.interactionRepo, scoring.Default(),
		okGeocoder(), f.bucket, nil, f.pub, nil, ReportConfig{TTL: 12 * time.Hour, GeocodeTimeout: time.Second, CompressTimeout: 5 * time.Second, ActorSalt: "salt", QueryPageRows: 2})
	ctx := context.Background()
	now := time.Now()
	center := geo.Point{Lat: 34.0, Lng: -118.0}
	dLat := 8.0 / 69.09
	dLng := 8.0 / (69.09 * math.Cos(34.0*math.Pi/180))

	// Box corners are about 11.3 miles out, so they fill pages without matching.
	for i := 0; i < 4; i++ {
		lat, lng := 34.0+dLat, -118.0+dLng
		if i%2 == 1 {
			lat, lng = 34.0-dLat, -118.0-dLng
		}
		testutil.SeedReport(t, ctx, f.db, lat, lng, now.Add(-time.Duration(i+1)*time.Minute))
	}
	old := testutil.SeedReport(t, ctx, f.db, 34.0, -118.0, now.Add(-3*time.Hour))

	views, err := svc.Query(ctx, center, 10)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(views) != 1 || views[0].ID != old.ID {
		t.Fatalf("Query: want only the older in-radius report, got %d results", len(views))
	}
}

func TestModerateRequiresModerator(t *testing.T) {
	f := newFixture(t)
	svc := f.reportService(okGeocoder())
	ctx := context.Background()
	r := testutil.SeedReport(t, ctx, f.db, 34, -118, time.Now().Add(-time.Hour))

	_, err := svc.Moderate(ctx, r.ID, types.ReportStatusRemoved, Actor{})
	wantCode(t, err, apierr.CodeUnauthorized)
	_, err = svc.Moderate(ctx, r.ID, types.ReportStatusRemoved, Actor{UserID: uuid.New(), Role: types.RoleUser})
	wantCode(t, err, apierr.CodeForbidden)

	mod := Actor{UserID: uuid.New(), Role: types.RoleModerator}
	_, err = svc.Moderate(ctx, r.ID, types.ReportStatusPending, mod)
	wantCode(t, err, apierr.CodeValidation)

	got, err := svc.Moderate(ctx, r.ID, types.ReportStatusRemoved, mod)
	if err != nil {
		t.Fatalf("Moderate: %v", err)
	}
	if got.Status != types.ReportStatusRemoved {
		t.Fatalf("status: want removed got=%s", got.Status)
	}
	_, err = svc.Get(ctx, r.ID)
	wantCode(t, err, apierr.CodeNotFound)
	_, err = svc.Moderate(ctx, r.ID, types.ReportStatusVerified, mod)
	wantCode(t, err, apierr.CodeNotFound)
}

func TestListActiveAndGet(t *testing.T) {
	f := newFixture(t)
	svc := f.reportService(okGeocoder())
	ctx := context.Background()
	now := time.Now()
	a := testutil.SeedReport(t, ctx, f.db, 10, 10, now.Add(-3*time.Hour))
	b := testutil.SeedReport(t, ctx, f.db, -33, 151, now.Add(-time.Hour))
	testutil.SeedReport(t, ctx, f.db, 0, 0, now.Add(-20*time.Hour))

	views, err := svc.ListActive(ctx, 0)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(views) != 2 || views[0].ID != b.ID || views[1].ID != a.ID {
		t.Fatalf("ListActive: want [b a], got %d rows", len(views))
	}
	if views[0].DistanceMiles != nil {
		t.Fatalf("ListActive views carry no distance")
	}

	v, err := svc.Get(ctx, a.ID)
	if err != nil || v.ID != a.ID {
		t.Fatalf("Get: %v", err)
	}
	_, err = svc.Get(ctx, uuid.New())
	wantCode(t, err, apierr.CodeNotFound)
}
