package services

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/migralert/migralert-backend/internal/data/repos"
	types "github.com/migralert/migralert-backend/internal/domain"
	"github.com/migralert/migralert-backend/internal/platform/dbctx"
	"github.com/migralert/migralert-backend/internal/platform/logger"
)

const maxDisplayNameLength = 80

type ProfilePatch struct {
	DisplayName *string `json:"display_name"`
	// Phone is the number test alerts go to; an empty string clears it.
	Phone *string `json:"phone"`
}

type UserService interface {
	GetMe(ctx context.Context, userID uuid.UUID) (*types.User, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, patch ProfilePatch) (*types.User, error)
}

type userService struct {
	log      *logger.Logger
	userRepo repos.UserRepo
}

func NewUserService(log *logger.Logger, userRepo repos.UserRepo) UserService {
	return &userService{log: log.With("service", "UserService"), userRepo: userRepo}
}

func (us *userService) GetMe(ctx context.Context, userID uuid.UUID) (*types.User, error) {
	found, err := us.userRepo.GetByIDs(dbctx.Context{Ctx: ctx}, []uuid.UUID{userID})
	if err != nil {
		return nil, fmt.Errorf("error fetching user: %w", err)
	}
	if len(found) == 0 || found[0] == nil {
		return nil, notFoundErr("user")
	}
	return found[0], nil
}

func (us *userService) UpdateProfile(ctx context.Context, userID uuid.UUID, patch ProfilePatch) (*types.User, error) {
	updates := map[string]interface{}{}
	if patch.DisplayName != nil {
		name := strings.TrimSpace(*patch.DisplayName)
		if utf8.RuneCountInString(name) > maxDisplayNameLength {
			return nil, validationErr("display name exceeds %d characters", maxDisplayNameLength)
		}
		updates["display_name"] = name
	}
	if patch.Phone != nil {
		if strings.TrimSpace(*patch.Phone) == "" {
			updates["phone"] = ""
		} else {
			phone, err := cleanPhone(*patch.Phone)
			if err != nil {
				return nil, err
			}
			updates["phone"] = phone
		}
	}
	if len(updates) > 0 {
		if err := us.userRepo.UpdateProfile(dbctx.Context{Ctx: ctx}, userID, updates); err != nil {
			us.log.Warn("Update profile failed", "error", err, "user_id", userID)
			return nil, fmt.Errorf("update profile: %w", err)
		}
	}
	return us.GetMe(ctx, userID)
}
