package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/niraliveastro/astro-call-service/internal/auth"
	"github.com/niraliveastro/astro-call-service/internal/errs"
	"github.com/niraliveastro/astro-call-service/internal/model"
	"github.com/niraliveastro/astro-call-service/internal/service"
	"go.uber.org/zap"
)

var statusActions = map[string]model.AvailabilityStatus{
	"set-online":  model.AvailabilityOnline,
	"set-offline": model.AvailabilityOffline,
	"set-busy":    model.AvailabilityBusy,
}

// StatusRequest is the body of POST /astrologer/status.
type StatusRequest struct {
	AstrologerID string `json:"astrologerId"`
	Action       string `json:"action"`
}

// StatusHandler serves astrologer availability.
type StatusHandler struct {
	statuses service.StatusServicer
	verifier *auth.Verifier
	log      *zap.Logger
}

// NewStatusHandler creates a status handler. A nil or disabled verifier skips
// bearer token checks.
func NewStatusHandler(statuses service.StatusServicer, verifier *auth.Verifier, log *zap.Logger) *StatusHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &StatusHandler{statuses: statuses, verifier: verifier, log: log}
}

// Set godoc
// POST /astrologer/status
func (h *StatusHandler) Set(c *gin.Context) {
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	if req.AstrologerID == "" {
		badRequest(c, "Astrologer ID is required")
		return
	}
	if !validID(req.AstrologerID) {
		badRequest(c, "Invalid astrologer ID")
		return
	}
	if !h.authorize(c, req.AstrologerID) {
		return
	}
	status, ok := statusActions[req.Action]
	if !ok {
		badRequest(c, "Invalid action")
		return
	}
	if err := h.statuses.Set(c.Request.Context(), req.AstrologerID, status); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "status": status})
}

// authorize rejects a verified token issued to someone else. Tokens that
// cannot be verified are logged and the request continues anonymously.
func (h *StatusHandler) authorize(c *gin.Context, astrologerID string) bool {
	if !h.verifier.Enabled() {
		return true
	}
	token, ok := auth.BearerToken(c.GetHeader("Authorization"))
	if !ok {
		return true
	}
	err := h.verifier.Authorize(token, astrologerID)
	switch {
	case err == nil:
		return true
	case errors.Is(err, errs.ErrUnauthorized):
		respondError(c, h.log, err)
		return false
	default:
		h.log.Warn("auth verification failed", zap.String("astrologer_id", astrologerID), zap.Error(err))
		return true
	}
}

// Get godoc
// GET /astrologer/status?astrologerId=
func (h *StatusHandler) Get(c *gin.Context) {
	astrologerID := c.Query("astrologerId")
	if !validID(astrologerID) {
		badRequest(c, "Invalid astrologer ID")
		return
	}
	ctx := c.Request.Context()
	if astrologerID == "" {
		c.JSON(http.StatusOK, gin.H{"success": true, "astrologers": h.statuses.ListAll(ctx)})
		return
	}
	st := h.statuses.Get(ctx, astrologerID)
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"astrologerId": st.AstrologerID,
		"status":       st.Status,
		"lastSeen":     st.LastSeen,
		"pendingCalls": st.PendingCalls,
	})
}
