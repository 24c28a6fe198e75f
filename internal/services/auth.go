package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/migralert/migralert-backend/internal/data/dberr"
	"github.com/migralert/migralert-backend/internal/data/repos"
	types "github.com/migralert/migralert-backend/internal/domain"
	"github.com/migralert/migralert-backend/internal/platform/ctxutil"
	"github.com/migralert/migralert-backend/internal/platform/dbctx"
	"github.com/migralert/migralert-backend/internal/platform/logger"
)

const minPasswordLength = 8

type AuthService interface {
	RegisterUser(ctx context.Context, email, password, displayName string) (*types.User, error)
	LoginUser(ctx context.Context, email, password string) (string, string, error)
	RefreshUser(ctx context.Context, refreshToken string) (string, string, error)
	LogoutUser(ctx context.Context) (uuid.UUID, error)
	SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error)
	GetAccessTTL() time.Duration
}

type accessClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type authService struct {
	db            *gorm.DB
	log           *logger.Logger
	userRepo      repos.UserRepo
	userTokenRepo repos.UserTokenRepo
	jwtSecretKey  []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

func NewAuthService(
	db *gorm.DB,
	log *logger.Logger,
	userRepo repos.UserRepo,
	userTokenRepo repos.UserTokenRepo,
	jwtSecretKey string,
	accessTTL time.Duration,
	refreshTTL time.Duration,
) AuthService {
	serviceLog := log.With("service", "AuthService")
	return &authService{
		db:            db,
		log:           serviceLog,
		userRepo:      userRepo,
		userTokenRepo: userTokenRepo,
		jwtSecretKey:  []byte(jwtSecretKey),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}
}

func (as *authService) GetAccessTTL() time.Duration { return as.accessTTL }

func (as *authService) RegisterUser(ctx context.Context, email, password, displayName string) (*types.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	displayName = strings.TrimSpace(displayName)
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return nil, validationErr("invalid email")
	}
	if len(password) < minPasswordLength {
		return nil, validationErr("password must be at least %d characters", minPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &types.User{
		Email:       email,
		Password:    string(hash),
		DisplayName: displayName,
		Role:        types.RoleUser,
	}
	dbc := dbctx.Context{Ctx: ctx}
	exists, err := as.userRepo.EmailExists(dbc, email)
	if err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if exists {
		return nil, validationErr("email already registered")
	}
	if _, err := as.userRepo.Create(dbc, []*types.User{user}); err != nil {
		if dberr.IsUniqueViolation(err) {
			return nil, validationErr("email already registered")
		}
		as.log.Warn("Create user failed", "error", err)
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func (as *authService) LoginUser(ctx context.Context, email, password string) (string, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return "", "", validationErr("email and password are required")
	}
	users, err := as.userRepo.GetByEmails(dbctx.Context{Ctx: ctx}, []string{email})
	if err != nil {
		return "", "", fmt.Errorf("load user: %w", err)
	}
	if len(users) == 0 || users[0] == nil {
		return "", "", unauthorizedErr("invalid credentials")
	}
	user := users[0]
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return "", "", unauthorizedErr("invalid credentials")
	}
	return as.issueSession(ctx, user, nil)
}

func (as *authService) RefreshUser(ctx context.Context, refreshToken string) (string, string, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return "", "", unauthorizedErr("missing refresh token")
	}
	found, err := as.userTokenRepo.GetByRefreshTokens(dbctx.Context{Ctx: ctx}, []string{refreshToken})
	if err != nil {
		return "", "", fmt.Errorf("load refresh token: %w", err)
	}
	if len(found) == 0 || found[0] == nil {
		return "", "", unauthorizedErr("invalid refresh token")
	}
	existing := found[0]
	if !existing.ExpiresAt.After(as.now()) {
		if err := as.userTokenRepo.FullDeleteByIDs(dbctx.Context{Ctx: ctx}, []uuid.UUID{existing.ID}); err != nil {
			as.log.Warn("Delete expired token failed", "error", err)
		}
		return "", "", unauthorizedErr("refresh token expired")
	}
	users, err := as.userRepo.GetByIDs(dbctx.Context{Ctx: ctx}, []uuid.UUID{existing.UserID})
	if err != nil {
		return "", "", fmt.Errorf("load user: %w", err)
	}
	if len(users) == 0 || users[0] == nil {
		return "", "", unauthorizedErr("user no longer exists")
	}
	return as.issueSession(ctx, users[0], existing)
}

// issueSession writes a new token row, replacing prev when rotating.
func (as *authService) issueSession(ctx context.Context, user *types.User, prev *types.UserToken) (string, string, error) {
	var accessToken, refreshToken string
	err := as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		sessionID := uuid.New()
		tok, err := as.generateAccessToken(user, sessionID)
		if err != nil {
			return fmt.Errorf("generate access token: %w", err)
		}
		accessToken = tok
		refreshToken = uuid.NewString()
		row := &types.UserToken{
			ID:           sessionID,
			UserID:       user.ID,
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
			ExpiresAt:    as.now().Add(as.refreshTTL),
		}
		if _, err := as.userTokenRepo.Create(dbc, []*types.UserToken{row}); err != nil {
			return fmt.Errorf("create user token: %w", err)
		}
		if prev != nil {
			if err := as.userTokenRepo.FullDeleteByIDs(dbc, []uuid.UUID{prev.ID}); err != nil {
				return fmt.Errorf("remove old token: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		as.log.Warn("Issue session failed", "error", err, "user_id", user.ID)
		return "", "", err
	}
	return accessToken, refreshToken, nil
}

func (as *authService) generateAccessToken(user *types.User, sessionID uuid.UUID) (string, error) {
	now := as.now()
	claims := accessClaims{
		Role: string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			ID:        sessionID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(as.accessTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(as.jwtSecretKey)
}

// LogoutUser deletes the caller's session row and returns its id.
func (as *authService) LogoutUser(ctx context.Context) (uuid.UUID, error) {
	rd := ctxutil.GetRequestData(ctx)
	if rd == nil || rd.SessionID == uuid.Nil {
		return uuid.Nil, unauthorizedErr("no session")
	}
	if err := as.userTokenRepo.FullDeleteByIDs(dbctx.Context{Ctx: ctx}, []uuid.UUID{rd.SessionID}); err != nil {
		as.log.Warn("Delete user token failed", "error", err, "session_id", rd.SessionID)
		return uuid.Nil, fmt.Errorf("delete session: %w", err)
	}
	return rd.SessionID, nil
}

// SetContextFromToken validates an access token against its session row and
// attaches the caller to ctx.
func (as *authService) SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error) {
	claims := &accessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return as.jwtSecretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(as.now))
	if err != nil || !token.Valid {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ctx, unauthorizedErr("token expired")
		}
		return ctx, unauthorizedErr("invalid token")
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return ctx, unauthorizedErr("invalid token subject")
	}
	sessionID, err := uuid.Parse(claims.ID)
	if err != nil {
		return ctx, unauthorizedErr("invalid token id")
	}
	rows, err := as.userTokenRepo.GetByIDs(dbctx.Context{Ctx: ctx}, []uuid.UUID{sessionID})
	if err != nil {
		return ctx, fmt.Errorf("load session: %w", err)
	}
	if len(rows) == 0 || rows[0] == nil || rows[0].AccessToken != tokenString {
		return ctx, unauthorizedErr("session revoked")
	}

	rd := &ctxutil.RequestData{
		TokenString: tokenString,
		UserID:      userID,
		SessionID:   sessionID,
		Role:        claims.Role,
	}
	if prev := ctxutil.GetRequestData(ctx); prev != nil {
		rd.ClientIP = prev.ClientIP
	}
	if rd.ClientIP == "" {
		rd.ClientIP = ctxutil.GetClientIP(ctx)
	}
	return ctxutil.WithRequestData(ctx, rd), nil
}
