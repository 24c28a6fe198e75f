package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/migralert/migralert-backend/internal/domain"
)

func SeedUser(tb testing.TB, ctx context.Context, tx *gorm.DB, email string) *types.User {
	tb.Helper()
	u := &types.User{
		ID:          uuid.New(),
		Email:       email,
		Password:    "pw",
		DisplayName: "Tester",
		Role:        types.RoleUser,
	}
	if err := tx.WithContext(ctx).Create(u).Error; err != nil {
		tb.Fatalf("seed user: %v", err)
	}
	return u
}

func SeedReport(tb testing.TB, ctx context.Context, tx *gorm.DB, lat, lng float64, createdAt time.Time) *types.Report {
	tb.Helper()
	r := &types.Report{
		ID:              uuid.New(),
		Latitude:        lat,
		Longitude:       lng,
		City:            "Testville",
		Region:          "TS",
		ActivityType:    types.ActivityCheckpoint,
		Status:          types.ReportStatusPending,
		ConfidenceScore: 40,
		ExpiresAt:       createdAt.Add(12 * time.Hour),
		CreatedAt:       createdAt,
		UpdatedAt:       createdAt,
	}
	if err := tx.WithContext(ctx).Create(r).Error; err != nil {
		tb.Fatalf("seed report: %v", err)
	}
	return r
}

func SeedContact(tb testing.TB, ctx context.Context, tx *gorm.DB, userID uuid.UUID, order int, phone string) *types.EmergencyContact {
	tb.Helper()
	c := &types.EmergencyContact{
		ID:           uuid.New(),
		UserID:       userID,
		Name:         "Contact",
		Phone:        phone,
		ContactOrder: order,
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed contact: %v", err)
	}
	return c
}
