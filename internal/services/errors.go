package services

import (
	"fmt"
	"net/http"

	types "github.com/migralert/migralert-backend/internal/domain"
	"github.com/migralert/migralert-backend/internal/platform/apierr"
)

func validationErr(format string, args ...any) error {
	return apierr.New(http.StatusBadRequest, apierr.CodeValidation,
		fmt.Errorf("%w: %s", types.ErrValidation, fmt.Sprintf(format, args...)))
}

func unauthorizedErr(msg string) error {
	return apierr.New(http.StatusUnauthorized, apierr.CodeUnauthorized, fmt.Errorf("%w: %s", types.ErrUnauthorized, msg))
}

func forbiddenErr(msg string) error {
	return apierr.New(http.StatusForbidden, apierr.CodeForbidden, fmt.Errorf("%w: %s", types.ErrForbidden, msg))
}

func notFoundErr(what string) error {
	return apierr.New(http.StatusNotFound, apierr.CodeNotFound, fmt.Errorf("%s: %w", what, types.ErrNotFound))
}
