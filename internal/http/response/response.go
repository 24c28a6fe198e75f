package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	types "github.com/migralert/migralert-backend/internal/domain"
	"github.com/migralert/migralert-backend/internal/platform/apierr"
)

type APIError struct {
	Message   string `json:"message"`
	Code      string `json:"code,omitempty"`
	Retryable bool   `json:"retryable"`
	Details   any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// Detailer is implemented by errors that carry structured detail for the
// client, such as per-contact send failures.
type Detailer interface {
	ErrorDetails() any
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.AbortWithStatusJSON(status, ErrorEnvelope{
		Error: APIError{
			Message:   msg,
			Code:      code,
			Retryable: status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable,
		},
	})
}

// RespondAPIError maps a service error onto the error envelope. Unclassified
// errors become a 500 with a generic message.
func RespondAPIError(c *gin.Context, err error) {
	status, body := Classify(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, ErrorEnvelope{Error: body})
}

func Classify(err error) (int, APIError) {
	if ae, ok := apierr.As(err); ok {
		body := APIError{Message: ae.Error(), Code: ae.Code, Retryable: ae.Retryable}
		var d Detailer
		if errors.As(err, &d) {
			body.Details = d.ErrorDetails()
		}
		status := ae.Status
		if status == 0 {
			status = http.StatusInternalServerError
		}
		return status, body
	}

	switch {
	case errors.Is(err, types.ErrValidation):
		return http.StatusBadRequest, APIError{Message: err.Error(), Code: apierr.CodeValidation}
	case errors.Is(err, types.ErrUnauthorized):
		return http.StatusUnauthorized, APIError{Message: err.Error(), Code: apierr.CodeUnauthorized}
	case errors.Is(err, types.ErrForbidden):
		return http.StatusForbidden, APIError{Message: err.Error(), Code: apierr.CodeForbidden}
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound, APIError{Message: err.Error(), Code: apierr.CodeNotFound}
	case errors.Is(err, types.ErrCapacityExceeded):
		return http.StatusConflict, APIError{Message: err.Error(), Code: apierr.CodeCapacityExceeded}
	case errors.Is(err, types.ErrDuplicateInteraction):
		return http.StatusConflict, APIError{Message: err.Error(), Code: apierr.CodeDuplicateInteraction}
	case errors.Is(err, types.ErrNoContactsConfigured):
		return http.StatusUnprocessableEntity, APIError{Message: err.Error(), Code: apierr.CodeNoContacts}
	case errors.Is(err, types.ErrNoPhoneOnAccount):
		return http.StatusUnprocessableEntity, APIError{Message: err.Error(), Code: apierr.CodeNoPhone}
	case errors.Is(err, types.ErrAllSendsFailed):
		return http.StatusBadGateway, APIError{Message: err.Error(), Code: apierr.CodeAllSendsFailed, Retryable: true}
	default:
		return http.StatusInternalServerError, APIError{Message: "internal server error", Code: apierr.CodeInternal}
	}
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondCreated(c *gin.Context, payload any) {
	c.JSON(http.StatusCreated, payload)
}
