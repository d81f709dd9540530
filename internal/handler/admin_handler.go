package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/niraliveastro/astro-call-service/internal/model"
	"github.com/niraliveastro/astro-call-service/internal/service"
	"go.uber.org/zap"
)

const defaultAdminLimit = 100

// AdminHandler serves call inspection and maintenance endpoints.
type AdminHandler struct {
	calls          service.CallServicer
	pendingTimeout time.Duration
	log            *zap.Logger
}

// NewAdminHandler creates an admin handler. pendingTimeout is the age after
// which fix-pending-calls rejects a pending call.
func NewAdminHandler(calls service.CallServicer, pendingTimeout time.Duration, log *zap.Logger) *AdminHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AdminHandler{calls: calls, pendingTimeout: pendingTimeout, log: log}
}

// ListCalls godoc
// GET /admin/calls?status=&startDate=&endDate=&limit=
func (h *AdminHandler) ListCalls(c *gin.Context) {
	filter := model.CallFilter{Limit: defaultAdminLimit, NewestFirst: true}

	if s := c.Query("status"); s != "" {
		st := model.CallStatus(s)
		if !st.Valid() {
			badRequest(c, "Invalid status")
			return
		}
		filter.Status = st
	}
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			badRequest(c, "Invalid limit")
			return
		}
		filter.Limit = n
	}
	var ok bool
	if filter.From, ok = parseDate(c.Query("startDate")); !ok {
		badRequest(c, "Invalid startDate")
		return
	}
	if filter.To, ok = parseDate(c.Query("endDate")); !ok {
		badRequest(c, "Invalid endDate")
		return
	}

	calls, err := h.calls.ListCalls(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "calls": calls})
}

// FixPendingCalls godoc
// POST /admin/fix-pending-calls
func (h *AdminHandler) FixPendingCalls(c *gin.Context) {
	n, err := h.calls.ExpirePending(c.Request.Context(), h.pendingTimeout)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "fixedCount": n})
}

// parseDate accepts RFC 3339 timestamps or plain YYYY-MM-DD dates. Empty means unset.
func parseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), true
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}
