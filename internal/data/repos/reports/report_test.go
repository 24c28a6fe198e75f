package reports

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/migralert/migralert-backend/internal/data/repos/testutil"
	types "github.com/migralert/migralert-backend/internal/domain"
	"github.com/migralert/migralert-backend/internal/geo"
	"github.com/migralert/migralert-backend/internal/platform/dbctx"
)

func TestReportRepoCreateAndGet(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewReportRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	now := time.Now().UTC()
	created, err := repo.Create(dbc, []*types.Report{{
		Latitude:        34.05,
		Longitude:       -118.24,
		City:            "Los Angeles",
		Region:          "CA",
		ActivityType:    types.ActivityPatrol,
		Status:          types.ReportStatusPending,
		ConfidenceScore: 70,
		ExpiresAt:       now.Add(12 * time.Hour),
	}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created[0].ID == uuid.Nil {
		t.Fatalf("Create: expected id to be assigned")
	}

	got, err := repo.GetByID(dbc, created[0].ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID: err=%v got=%v", err, got)
	}
	if got.City != "Los Angeles" || got.ConfidenceScore != 70 {
		t.Fatalf("GetByID: unexpected row %+v", got)
	}

	missing, err := repo.GetByID(dbc, uuid.New())
	if err != nil || missing != nil {
		t.Fatalf("GetByID(missing): err=%v got=%v", err, missing)
	}
}

func TestReportRepoCompareAndSwapScore(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewReportRepo(db, testutil.Logger(t))
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	now := time.Now().UTC()
	r := testutil.SeedReport(t, ctx, tx, 10, 10, now)

	ok, err := repo.CompareAndSwapScore(dbc, r.ID, r.Version, ScoreUpdate{Score: 52, ConfirmDelta: 1, Now: now})
	if err != nil || !ok {
		t.Fatalf("CAS: err=%v ok=%v", err, ok)
	}

	// Stale version must not apply.
	ok, err = repo.CompareAndSwapScore(dbc, r.ID, r.Version, ScoreUpdate{Score: 1, FalseDelta: 1, Now: now})
	if err != nil {
		t.Fatalf("CAS(stale): %v", err)
	}
	if ok {
		t.Fatalf("CAS(stale): want=false got=true")
	}

	got, _ := repo.GetByID(dbc, r.ID)
	if got.ConfidenceScore != 52 || got.ConfirmCount != 1 || got.FalseCount != 0 {
		t.Fatalf("CAS: unexpected row score=%d confirm=%d false=%d", got.ConfidenceScore, got.ConfirmCount, got.FalseCount)
	}
	if got.Version != r.Version+1 {
		t.Fatalf("CAS: want version=%d got=%d", r.Version+1, got.Version)
	}

	ok, err = repo.UpdateStatus(dbc, r.ID, types.ReportStatusRemoved, now)
	if err != nil || !ok {
		t.Fatalf("UpdateStatus: err=%v ok=%v", err, ok)
	}
	got, _ = repo.GetByID(dbc, r.ID)
	if got.Status != types.ReportStatusRemoved {
		t.Fatalf("UpdateStatus: want=%s got=%s", types.ReportStatusRemoved, got.Status)
	}
}

func TestReportRepoQueryWithinBounds(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewReportRepo(db, testutil.Logger(t))
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	now := time.Now().UTC()
	older := testutil.SeedReport(t, ctx, tx, 40.0, -100.0, now.Add(-2*time.Hour))
	newer := testutil.SeedReport(t, ctx, tx, 40.01, -100.01, now.Add(-1*time.Hour))
	far := testutil.SeedReport(t, ctx, tx, 10.0, 50.0, now)
	expired := testutil.SeedReport(t, ctx, tx, 40.0, -100.0, now.Add(-13*time.Hour))
	removed := testutil.SeedReport(t, ctx, tx, 40.0, -100.0, now)
	if _, err := repo.UpdateStatus(dbc, removed.ID, types.ReportStatusRemoved, now); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	b := geo.BoundsForRadius(geo.Point{Lat: 40.0, Lng: -100.0}, 5)
	rows, err := repo.QueryWithinBounds(dbc, b, now, ReportCursor{}, 0)
	if err != nil {
		t.Fatalf("QueryWithinBounds: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("QueryWithinBounds: want=2 got=%d", len(rows))
	}
	if rows[0].ID != newer.ID || rows[1].ID != older.ID {
		t.Fatalf("QueryWithinBounds: expected newest first")
	}
	for _, r := range rows {
		if r.ID == far.ID || r.ID == expired.ID || r.ID == removed.ID {
			t.Fatalf("QueryWithinBounds: unexpected report %s", r.ID)
		}
	}

	active, err := repo.ListActive(dbc, now, 0)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(active) != 3 {
		t.Fatalf("ListActive: want=3 got=%d", len(active))
	}
}

func TestReportRepoQueryAcrossAntimeridian(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewReportRepo(db, testutil.Logger(t))
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	now := time.Now().UTC()
	east := testutil.SeedReport(t, ctx, tx, 0, 179.99, now)
	west := testutil.SeedReport(t, ctx, tx, 0, -179.99, now.Add(-time.Minute))

	b := geo.BoundsForRadius(geo.Point{Lat: 0, Lng: 179.995}, 10)
	rows, err := repo.QueryWithinBounds(dbc, b, now, ReportCursor{}, 0)
	if err != nil {
		t.Fatalf("QueryWithinBounds: %v", err)
	}
	if len(rows) != 2 || rows[0].ID != east.ID || rows[1].ID != west.ID {
		t.Fatalf("QueryWithinBounds: want both sides of the antimeridian, got %d rows", len(rows))
	}
}

func TestReportRepoQueryWithinBoundsPages(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewReportRepo(db, testutil.Logger(t))
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	now := time.Now().UTC().Truncate(time.Second)
	seeded := map[uuid.UUID]bool{}
	for i := 0; i < 5; i++ {
		// Pairs share a timestamp so the id tiebreak is exercised.
		r := testutil.SeedReport(t, ctx, tx, 40.0, -100.0, now.Add(-time.Duration(i/2)*time.Minute))
		seeded[r.ID] = true
	}

	b := geo.BoundsForRadius(geo.Point{Lat: 40.0, Lng: -100.0}, 5)
	seen := map[uuid.UUID]bool{}
	var cursor ReportCursor
	pages := 0
	for {
		rows, err := repo.QueryWithinBounds(dbc, b, now, cursor, 2)
		if err != nil {
			t.Fatalf("QueryWithinBounds: %v", err)
		}
		pages++
		for _, r := range rows {
			if seen[r.ID] {
				t.Fatalf("QueryWithinBounds: report %s returned twice", r.ID)
			}
			seen[r.ID] = true
		}
		if len(rows) < 2 {
			break
		}
		cursor = CursorAfter(rows[len(rows)-1])
		if pages > 5 {
			t.Fatalf("QueryWithinBounds: paging did not terminate")
		}
	}
	if len(seen) != len(seeded) {
		t.Fatalf("QueryWithinBounds pages: want=%d got=%d", len(seeded), len(seen))
	}
	if pages != 3 {
		t.Fatalf("QueryWithinBounds pages: want=3 got=%d", pages)
	}
}

func TestReportRepoPurge(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewReportRepo(db, testutil.Logger(t))
	irepo := NewReportInteractionRepo(db, testutil.Logger(t))
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	now := time.Now().UTC()
	old := testutil.SeedReport(t, ctx, tx, 1, 1, now.Add(-40*24*time.Hour))
	fresh := testutil.SeedReport(t, ctx, tx, 1, 1, now)
	if err := irepo.Create(dbc, &types.ReportInteraction{
		ReportID:        old.ID,
		ActorKey:        "anon:x",
		InteractionType: types.InteractionConfirm,
	}); err != nil {
		t.Fatalf("interaction Create: %v", err)
	}

	cutoff := now.Add(-30 * 24 * time.Hour)
	purge, err := repo.ListPurgeable(dbc, cutoff, true, 100)
	if err != nil {
		t.Fatalf("ListPurgeable: %v", err)
	}
	if len(purge) != 1 || purge[0].ID != old.ID {
		t.Fatalf("ListPurgeable: want only the old report, got %d", len(purge))
	}

	if err := repo.FullDeleteByIDs(dbc, []uuid.UUID{old.ID}); err != nil {
		t.Fatalf("FullDeleteByIDs: %v", err)
	}
	if got, _ := repo.GetByID(dbc, old.ID); got != nil {
		t.Fatalf("FullDeleteByIDs: report still present")
	}
	if got, _ := repo.GetByID(dbc, fresh.ID); got == nil {
		t.Fatalf("FullDeleteByIDs: fresh report deleted")
	}
	var left int64
	if err := tx.Model(&types.ReportInteraction{}).Where("report_id = ?", old.ID).Count(&left).Error; err != nil {
		t.Fatalf("count interactions: %v", err)
	}
	if left != 0 {
		t.Fatalf("FullDeleteByIDs: want interactions removed, got %d", left)
	}
}

func TestReportInteractionRepoDuplicate(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	irepo := NewReportInteractionRepo(db, testutil.Logger(t))
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	r := testutil.SeedReport(t, ctx, tx, 5, 5, time.Now().UTC())
	first := &types.ReportInteraction{ReportID: r.ID, ActorKey: "user:1", InteractionType: types.InteractionConfirm}
	if err := irepo.Create(dbc, first); err != nil {
		t.Fatalf("Create: %v", err)
	}
	dup := &types.ReportInteraction{ReportID: r.ID, ActorKey: "user:1", InteractionType: types.InteractionFalse}
	err := irepo.Create(dbc, dup)
	if !errors.Is(err, types.ErrDuplicateInteraction) {
		t.Fatalf("Create(dup): want ErrDuplicateInteraction got=%v", err)
	}
}
