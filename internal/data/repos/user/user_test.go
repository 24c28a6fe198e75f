package user

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/migralert/migralert-backend/internal/data/repos/testutil"
	types "github.com/migralert/migralert-backend/internal/domain"
	"github.com/migralert/migralert-backend/internal/platform/dbctx"
)

func TestUserRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	repo := NewUserRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	email := "UserRepo-" + uuid.NewString() + "@Example.com"
	created, err := repo.Create(dbc, []*types.User{{Email: email, Password: "pw", DisplayName: "A"}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(created) != 1 || created[0].Role != types.RoleUser {
		t.Fatalf("Create: unexpected result: %+v", created)
	}

	gotByIDs, err := repo.GetByIDs(dbc, []uuid.UUID{created[0].ID})
	if err != nil || len(gotByIDs) != 1 {
		t.Fatalf("GetByIDs: err=%v len=%d", err, len(gotByIDs))
	}

	gotByEmails, err := repo.GetByEmails(dbc, []string{email})
	if err != nil || len(gotByEmails) != 1 || gotByEmails[0].Email != strings.ToLower(email) {
		t.Fatalf("GetByEmails: err=%v result=%+v", err, gotByEmails)
	}

	exists, err := repo.EmailExists(dbc, email)
	if err != nil || !exists {
		t.Fatalf("EmailExists: err=%v exists=%v", err, exists)
	}

	if err := repo.UpdateProfile(dbc, created[0].ID, map[string]interface{}{"phone": "+15555550100"}); err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	gotByIDs, _ = repo.GetByIDs(dbc, []uuid.UUID{created[0].ID})
	if gotByIDs[0].Phone != "+15555550100" {
		t.Fatalf("UpdateProfile: want phone=+15555550100 got=%q", gotByIDs[0].Phone)
	}
}
