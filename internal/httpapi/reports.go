package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"protocolo-municipal/internal/audit"
	"protocolo-municipal/internal/calendar"
	"protocolo-municipal/internal/sla"

	"github.com/gin-gonic/gin"
)

func (h Handlers) ListNotifications(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	unread := c.Query("unread") == "true" || c.Query("unread") == "1"
	items, err := h.Inbox.List(c.Request.Context(), uid, unread, queryLimit(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h Handlers) MarkNotificationRead(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "nid")
	if !ok {
		return
	}
	if err := h.Inbox.MarkRead(c.Request.Context(), uid, id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h Handlers) UnreadNotifications(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	n, err := h.Inbox.UnreadCount(c.Request.Context(), uid)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread_count": n})
}

func (h Handlers) MarkAllNotificationsRead(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	n, err := h.Inbox.MarkAllRead(c.Request.Context(), uid)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked": n, "unread_count": 0})
}

func (h Handlers) GetNotificationPreferences(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	p, err := h.Prefs.Get(c.Request.Context(), uid)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

type preferencesRequest struct {
	InApp   *bool `json:"inapp"`
	Email   *bool `json:"email"`
	Webhook *bool `json:"webhook"`
}

// UpdateNotificationPreferences changes only the channels present in the body.
func (h Handlers) UpdateNotificationPreferences(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	var req preferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	ctx := c.Request.Context()
	p, err := h.Prefs.Get(ctx, uid)
	if err != nil {
		writeError(c, err)
		return
	}
	if req.InApp != nil {
		p.InApp = *req.InApp
	}
	if req.Email != nil {
		p.Email = *req.Email
	}
	if req.Webhook != nil {
		p.Webhook = *req.Webhook
	}
	if err := h.Prefs.Save(ctx, p); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// AuditReport aggregates the trail per action.
// Query: user_id, action, from, to (dates, inclusive).
func (h Handlers) AuditReport(c *gin.Context) {
	var f audit.ReportFilter
	if v := c.Query("user_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			badRequest(c, "user_id must be a positive integer")
			return
		}
		f.UserID = id
	}
	f.Action = c.Query("action")
	from, ok := queryDate(c, "from")
	if !ok {
		return
	}
	to, ok := queryDate(c, "to")
	if !ok {
		return
	}
	f.From = from
	if !to.IsZero() {
		// End of day.
		f.To = to.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}

	rows, err := h.Audit.Report(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rows": rows})
}

func (h Handlers) UserAudit(c *gin.Context) {
	id, ok := paramID(c, "uid")
	if !ok {
		return
	}
	entries, err := h.Audit.UserLog(c.Request.Context(), id, queryLimit(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// AuditCleanup purges entries past retention. Error and critical entries are kept.
func (h Handlers) AuditCleanup(c *gin.Context) {
	n, err := h.Audit.CleanupOldLogs(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}

// SLAReport summarizes deadline health.
// Query: tipo_documento, responsavel, from, to.
func (h Handlers) SLAReport(c *gin.Context) {
	from, ok := queryDate(c, "from")
	if !ok {
		return
	}
	to, ok := queryDate(c, "to")
	if !ok {
		return
	}
	rep, err := h.SLA.Report(c.Request.Context(), sla.ReportFilter{
		TipoDocumento: c.Query("tipo_documento"),
		Responsavel:   c.Query("responsavel"),
		From:          calendar.Format(from),
		To:            calendar.Format(to),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

// SLASweep runs one deadline sweep over every active record.
func (h Handlers) SLASweep(c *gin.Context) {
	res, err := h.SLA.CheckAllDeadlines(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
