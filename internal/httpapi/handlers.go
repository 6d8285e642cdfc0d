package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"protocolo-municipal/internal/audit"
	"protocolo-municipal/internal/auth"
	"protocolo-municipal/internal/calendar"
	"protocolo-municipal/internal/identity"
	"protocolo-municipal/internal/notify"
	"protocolo-municipal/internal/records"
	"protocolo-municipal/internal/sla"
	"protocolo-municipal/internal/workflow"
	"protocolo-municipal/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth  *auth.Manager
	Users identity.Directory

	Records  records.Store
	Audit    *audit.Service
	SLA      *sla.Engine
	Workflow *workflow.Service
	Inbox    *notify.Inbox
	Prefs    *notify.PreferenceStore
	Notifier sla.Notifier
	Calendar *calendar.Calendar
}

var errBadRequest = errors.New("bad request")

const (
	defaultLimit = 50
	maxLimit     = 500
)

// RequestInfo attaches the client IP and user agent for audit attribution.
func RequestInfo() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := audit.WithRequestInfo(c.Request.Context(), c.ClientIP(), c.Request.UserAgent())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// writeError maps service errors to HTTP statuses.
// 4xx carry the error text; 5xx are logged and answered generically.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, workflow.ErrValidation),
		errors.Is(err, calendar.ErrInvalidDate),
		errors.Is(err, audit.ErrInvalidEntry):
		status = http.StatusBadRequest
	case errors.Is(err, records.ErrNotFound),
		errors.Is(err, workflow.ErrNotFound),
		errors.Is(err, notify.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, workflow.ErrConflict):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		logger.FromGin(c).Error("handler failed", "err", err)
		c.AbortWithStatusJSON(status, gin.H{"error": "internal error"})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}

func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

func queryLimit(c *gin.Context) int {
	n, err := strconv.Atoi(c.Query("limit"))
	if err != nil || n <= 0 {
		return defaultLimit
	}
	if n > maxLimit {
		return maxLimit
	}
	return n
}

// queryDate parses an optional YYYY-MM-DD (or dd/mm/yyyy) query parameter.
func queryDate(c *gin.Context, name string) (time.Time, bool) {
	v := c.Query(name)
	if v == "" {
		return time.Time{}, true
	}
	d, err := calendar.ParseDate(v)
	if err != nil {
		badRequest(c, name+" must be a date (YYYY-MM-DD)")
		return time.Time{}, false
	}
	return d, true
}

func currentUser(c *gin.Context) (int64, bool) {
	id, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user required"})
		return 0, false
	}
	return id, true
}
