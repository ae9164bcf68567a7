package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/lingopair/backend/internal/services"
	"github.com/lingopair/backend/pkg/response"
)

// fail translates service sentinel errors into HTTP responses.
func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		response.Error(c, response.NewNotFound(err.Error()))
	case errors.Is(err, services.ErrNotAuthorized):
		response.Error(c, response.NewForbidden(err.Error()))
	case errors.Is(err, services.ErrNotClaimHolder):
		response.Error(c, response.NewForbidden(err.Error()))
	case errors.Is(err, services.ErrClaimExpired):
		response.Error(c, response.NewGone(err.Error()))
	case errors.Is(err, services.ErrInvalidScore):
		response.Error(c, response.NewBadRequest(err.Error()))
	case errors.Is(err, services.ErrUnsupportedLanguage):
		response.Error(c, response.NewBadRequest(err.Error()))
	case errors.Is(err, services.ErrDuplicateReview),
		errors.Is(err, services.ErrSelfDispute),
		errors.Is(err, services.ErrMissingInitialReview),
		errors.Is(err, services.ErrNotFlaggable):
		response.Error(c, response.NewConflict(err.Error()))
	default:
		response.ServerError(c, err.Error())
	}
}
