package services

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/migralert/migralert-backend/internal/data/repos"
	types "github.com/migralert/migralert-backend/internal/domain"
	"github.com/migralert/migralert-backend/internal/platform/dbctx"
	"github.com/migralert/migralert-backend/internal/platform/logger"
)

type FeedbackInput struct {
	Category    string `json:"category"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Email       string `json:"email"`
}

type FeedbackService interface {
	Submit(ctx context.Context, in FeedbackInput, actor Actor) (*types.Feedback, error)
}

type feedbackService struct {
	log          *logger.Logger
	feedbackRepo repos.FeedbackRepo
}

func NewFeedbackService(log *logger.Logger, feedbackRepo repos.FeedbackRepo) FeedbackService {
	return &feedbackService{log: log.With("service", "FeedbackService"), feedbackRepo: feedbackRepo}
}

func (fs *feedbackService) Submit(ctx context.Context, in FeedbackInput, actor Actor) (*types.Feedback, error) {
	category, ok := types.ParseFeedbackCategory(in.Category)
	if !ok {
		return nil, validationErr("unknown feedback category %q", in.Category)
	}
	title := strings.TrimSpace(in.Title)
	desc := strings.TrimSpace(in.Description)
	switch {
	case title == "":
		return nil, validationErr("title is required")
	case utf8.RuneCountInString(title) > types.MaxFeedbackTitleLength:
		return nil, validationErr("title exceeds %d characters", types.MaxFeedbackTitleLength)
	case desc == "":
		return nil, validationErr("description is required")
	case utf8.RuneCountInString(desc) > types.MaxFeedbackDescriptionLength:
		return nil, validationErr("description exceeds %d characters", types.MaxFeedbackDescriptionLength)
	}
	email := strings.TrimSpace(in.Email)
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, validationErr("invalid email")
		}
	}

	fb := &types.Feedback{
		Category:    category,
		Title:       title,
		Description: desc,
		Email:       email,
	}
	if actor.Authenticated() {
		uid := actor.UserID
		fb.UserID = &uid
	}
	if err := fs.feedbackRepo.Create(dbctx.Context{Ctx: ctx}, fb); err != nil {
		fs.log.Error("Create feedback failed", "error", err)
		return nil, fmt.Errorf("save feedback: %w", err)
	}
	return fb, nil
}
