package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	types "github.com/migralert/migralert-backend/internal/domain"
)

func TestSessionCacheScopesBySessionAndExpires(t *testing.T) {
	c := NewSessionCache(time.Minute)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	uid := uuid.New()
	ctx := sessionCtx(uid, "user")
	contacts := []*types.EmergencyContact{{ID: uuid.New(), UserID: uid}}
	c.StoreContacts(ctx, uid, contacts)

	if got, ok := c.Contacts(ctx, uid); !ok || len(got) != 1 {
		t.Fatalf("hit: ok=%v len=%d", ok, len(got))
	}
	if _, ok := c.Contacts(sessionCtx(uid, "user"), uid); ok {
		t.Fatalf("another session of the same user must miss")
	}
	if _, ok := c.Contacts(ctx, uuid.New()); ok {
		t.Fatalf("a different user id must miss")
	}
	if _, ok := c.Contacts(context.Background(), uid); ok {
		t.Fatalf("a context without a session must miss")
	}

	now = now.Add(2 * time.Minute)
	if _, ok := c.Contacts(ctx, uid); ok {
		t.Fatalf("stale entry must miss")
	}
}

func TestSessionCacheHistoryLimit(t *testing.T) {
	c := NewSessionCache(time.Minute)
	uid := uuid.New()
	ctx := sessionCtx(uid, "user")
	rows := make([]*types.AlertHistory, 5)
	for i := range rows {
		rows[i] = &types.AlertHistory{ID: uuid.New(), UserID: uid}
	}
	c.StoreHistory(ctx, uid, 10, rows)

	if got, ok := c.History(ctx, uid, 3); !ok || len(got) != 3 {
		t.Fatalf("smaller page: ok=%v len=%d", ok, len(got))
	}
	if _, ok := c.History(ctx, uid, 20); ok {
		t.Fatalf("larger page than cached must miss")
	}
}

func TestSessionCacheInvalidateAndDrop(t *testing.T) {
	c := NewSessionCache(time.Minute)
	uid := uuid.New()
	a, b := sessionCtx(uid, "user"), sessionCtx(uid, "user")
	c.StoreAlertConfig(a, uid, types.DefaultAlertConfig(uid))
	c.StoreAlertConfig(b, uid, types.DefaultAlertConfig(uid))
	other := uuid.New()
	oc := sessionCtx(other, "user")
	c.StoreAlertConfig(oc, other, types.DefaultAlertConfig(other))
	if c.Len() != 3 {
		t.Fatalf("sessions: want=3 got=%d", c.Len())
	}

	c.InvalidateUser(uid)
	if c.Len() != 1 {
		t.Fatalf("after invalidate: want=1 got=%d", c.Len())
	}
	c.Drop(sessionIDOf(oc))
	if c.Len() != 0 {
		t.Fatalf("after drop: want=0 got=%d", c.Len())
	}

	var nilCache *SessionCache
	nilCache.InvalidateUser(uid)
	if _, ok := nilCache.AlertConfig(a, uid); ok {
		t.Fatalf("nil cache must miss")
	}
}
