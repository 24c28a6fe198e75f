package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"

	types "github.com/migralert/migralert-backend/internal/domain"
	"github.com/migralert/migralert-backend/internal/platform/ctxutil"
)

// Actor is whoever is acting on a request. UserID is uuid.Nil for anonymous
// callers, who are identified only by client IP.
type Actor struct {
	UserID   uuid.UUID
	Role     types.Role
	ClientIP string
}

func (a Actor) Authenticated() bool { return a.UserID != uuid.Nil }

// ActorFromContext reads the actor attached by the auth and request-context
// middleware.
func ActorFromContext(ctx context.Context) Actor {
	a := Actor{ClientIP: ctxutil.GetClientIP(ctx)}
	if rd := ctxutil.GetRequestData(ctx); rd != nil {
		a.UserID = rd.UserID
		a.Role = types.Role(rd.Role)
		if rd.ClientIP != "" {
			a.ClientIP = rd.ClientIP
		}
	}
	return a
}

// InteractionActorKey is the dedup identity for report interactions. Anonymous
// keys hash the salted client IP together with the report id so they cannot
// be correlated across reports.
func InteractionActorKey(a Actor, reportID uuid.UUID, salt string) string {
	if a.Authenticated() {
		return "user:" + a.UserID.String()
	}
	sum := sha256.Sum256([]byte(salt + "|" + a.ClientIP + "|" + reportID.String()))
	return "anon:" + hex.EncodeToString(sum[:])
}
