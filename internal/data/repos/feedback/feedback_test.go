package feedback

import (
	"context"
	"testing"

	"github.com/migralert/migralert-backend/internal/data/repos/testutil"
	types "github.com/migralert/migralert-backend/internal/domain"
	"github.com/migralert/migralert-backend/internal/platform/dbctx"
)

func TestFeedbackRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewFeedbackRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	fb := &types.Feedback{Category: types.FeedbackBug, Title: "Map blank", Description: "Nothing renders"}
	if err := repo.Create(dbc, fb); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if fb.Status != "new" {
		t.Fatalf("Create: want status=new got=%q", fb.Status)
	}
	list, err := repo.ListRecent(dbc, 10)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	found := false
	for _, row := range list {
		if row.ID == fb.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("ListRecent: created feedback missing")
	}
}
