package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/flockhq/flock/internal/middleware"
	"github.com/flockhq/flock/internal/pkg/errcode"
	appErr "github.com/flockhq/flock/internal/pkg/errors"
	"github.com/flockhq/flock/internal/pkg/response"
)

func getUserID(c *gin.Context) string {
	value, _ := c.Get(middleware.ContextUserIDKey)
	userID, _ := value.(string)
	return userID
}

// requireOrg validates tenant membership for the org named in the request.
// It writes the error response itself; callers bail out on ok=false.
func requireOrg(c *gin.Context, orgID string) bool {
	if orgID == "" {
		response.Error(c, http.StatusBadRequest, errcode.ErrInvalid, "org_id is required")
		return false
	}
	claims := middleware.ClaimsFrom(c)
	if claims == nil {
		response.Error(c, http.StatusUnauthorized, errcode.ErrUnauthorized, "unauthorized")
		return false
	}
	if !claims.HasOrg(orgID) {
		response.Error(c, http.StatusForbidden, errcode.ErrForbidden, "no access to this organization")
		return false
	}
	return true
}

func isOrgAdmin(c *gin.Context, orgID string) bool {
	claims := middleware.ClaimsFrom(c)
	return claims != nil && claims.IsOrgAdmin(orgID)
}

func pathInt64(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || v <= 0 {
		response.Error(c, http.StatusBadRequest, errcode.ErrInvalid, "invalid "+name)
		return 0, false
	}
	return v, true
}

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	logutil.GetLogger(c.Request.Context()).Error("request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("user_id", getUserID(c)),
		zap.Error(err),
	)
	switch {
	case errors.Is(err, appErr.ErrUnauthorized):
		response.Error(c, http.StatusUnauthorized, errcode.ErrUnauthorized, "unauthorized")
	case errors.Is(err, appErr.ErrForbidden):
		response.Error(c, http.StatusForbidden, errcode.ErrForbidden, "forbidden")
	case errors.Is(err, appErr.ErrNotFound):
		response.Error(c, http.StatusNotFound, errcode.ErrNotFound, "not found")
	case errors.Is(err, appErr.ErrConflict):
		response.Error(c, http.StatusConflict, errcode.ErrConflict, "conflict")
	case errors.Is(err, appErr.ErrPayloadTooBig):
		response.Error(c, http.StatusRequestEntityTooLarge, errcode.ErrPayloadTooLarge, err.Error())
	case errors.Is(err, appErr.ErrBudgetExceeded):
		response.Error(c, http.StatusTooManyRequests, errcode.ErrBudgetExceeded, "monthly embedding budget exceeded")
	case errors.Is(err, appErr.ErrTooMany):
		response.Error(c, http.StatusTooManyRequests, errcode.ErrTooMany, "too many requests")
	case errors.Is(err, appErr.ErrUnsupportedType):
		response.Error(c, http.StatusBadRequest, errcode.ErrUnsupportedType, err.Error())
	case errors.Is(err, appErr.ErrEmptyDocument):
		response.Error(c, http.StatusBadRequest, errcode.ErrEmptyDocument, err.Error())
	case errors.Is(err, appErr.ErrInvalid):
		response.Error(c, http.StatusBadRequest, errcode.ErrInvalid, err.Error())
	case appErr.IsTransient(err):
		response.Error(c, http.StatusServiceUnavailable, errcode.ErrUpstreamUnavailable, "dependency unavailable")
	default:
		response.Error(c, http.StatusInternalServerError, errcode.ErrInternal, "internal error")
	}
}
