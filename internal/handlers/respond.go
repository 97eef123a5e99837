package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/joshua-takyi/homex/internal/helpers"
	"github.com/joshua-takyi/homex/internal/middleware"
	"github.com/joshua-takyi/homex/internal/models"
)

// statusFor maps a service error onto its HTTP status.
func statusFor(err error) int {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrSlotConflict),
		errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, models.ErrTerminalState):
		return http.StatusConflict
	case errors.Is(err, models.ErrPreconditionFailed):
		return http.StatusPreconditionFailed
	case errors.Is(err, models.ErrReferenceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as an ApiResponse. Unexpected failures are handed
// to the ErrorHandler middleware so their detail stays out of production
// responses.
func respondError(c *gin.Context, err error) {
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, models.ValidationResponse(verr))
		return
	}
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		c.Abort()
		return
	}
	c.JSON(status, models.ErrorResponse(err.Error()))
}

// bindJSON decodes the body, reporting malformed JSON as a 400.
func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse("invalid request body: "+err.Error()))
		return false
	}
	return true
}

func paramInt64(c *gin.Context, name string) (int64, bool) {
	raw := strings.Trim(strings.TrimSpace(c.Param(name)), "\"'")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, models.ValidationResponse(models.NewValidationError(name, "must be a positive integer")))
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		c.JSON(http.StatusBadRequest, models.ValidationResponse(models.NewValidationError(name, "must be a non-negative integer")))
		return 0, false
	}
	return v, true
}

// caller returns the verified claims, answering 401 when Auth did not run.
func caller(c *gin.Context) (*helpers.EnhancedClaims, bool) {
	claims, ok := middleware.Claims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse("unauthorized"))
		return nil, false
	}
	return claims, true
}

// employeeScope loads the :empId parameter and checks the caller may act for it.
func employeeScope(c *gin.Context) (int64, bool) {
	claims, ok := caller(c)
	if !ok {
		return 0, false
	}
	empID, ok := paramInt64(c, "empId")
	if !ok {
		return 0, false
	}
	if !claims.CanActAsEmployee(empID) {
		c.JSON(http.StatusForbidden, models.ErrorResponse("not allowed to access this employee's records"))
		return 0, false
	}
	return empID, true
}
