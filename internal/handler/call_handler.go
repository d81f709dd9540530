package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/niraliveastro/astro-call-service/internal/model"
	"github.com/niraliveastro/astro-call-service/internal/service"
	"go.uber.org/zap"
)

// Call actions accepted by POST /calls.
const (
	ActionCreateCall         = "create-call"
	ActionUpdateCallStatus   = "update-call-status"
	ActionGetQueue           = "get-queue"
	ActionGetAstrologerCalls = "get-astrologer-calls"
)

// recentCallsLimit caps GET /calls without an astrologer; userHistoryLimit caps ?userId=.
const (
	recentCallsLimit = 50
	userHistoryLimit = 100
)

// CallRequest is the body of POST /calls.
type CallRequest struct {
	Action       string           `json:"action"`
	AstrologerID string           `json:"astrologerId"`
	UserID       string           `json:"userId"`
	CallID       string           `json:"callId"`
	Status       model.CallStatus `json:"status"`
	CallType     model.CallType   `json:"callType"`
}

// CallHandler serves the call lifecycle API.
type CallHandler struct {
	calls service.CallServicer
	log   *zap.Logger
}

// NewCallHandler creates a call handler.
func NewCallHandler(calls service.CallServicer, log *zap.Logger) *CallHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &CallHandler{calls: calls, log: log}
}

// Post godoc
// POST /calls
func (h *CallHandler) Post(c *gin.Context) {
	var req CallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	switch req.Action {
	case ActionCreateCall, ActionUpdateCallStatus, ActionGetQueue, ActionGetAstrologerCalls:
	default:
		badRequest(c, "Invalid action")
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
	if !validID(req.UserID) {
		badRequest(c, "Invalid user ID")
		return
	}
	if !validID(req.CallID) {
		badRequest(c, "Invalid call ID")
		return
	}
	if req.CallType != "" && !req.CallType.Valid() {
		badRequest(c, "Invalid call type")
		return
	}

	ctx := c.Request.Context()
	switch req.Action {
	case ActionCreateCall:
		if req.UserID == "" {
			badRequest(c, "User ID is required")
			return
		}
		call, err := h.calls.CreateCall(ctx, req.AstrologerID, req.UserID, req.CallType)
		if err != nil {
			respondError(c, h.log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "call": call})

	case ActionUpdateCallStatus:
		if req.CallID == "" {
			badRequest(c, "Valid callId is required")
			return
		}
		if !req.Status.Valid() {
			badRequest(c, "Invalid status")
			return
		}
		call, err := h.calls.UpdateStatus(ctx, req.AstrologerID, req.CallID, req.Status)
		if err != nil {
			respondError(c, h.log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "call": call})

	case ActionGetQueue:
		q, err := h.calls.GetQueue(ctx, req.AstrologerID)
		if err != nil {
			respondError(c, h.log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "queue": q})

	case ActionGetAstrologerCalls:
		calls, err := h.calls.GetCallsForAstrologer(ctx, req.AstrologerID)
		if err != nil {
			respondError(c, h.log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "calls": calls})
	}
}

// List godoc
// GET /calls?astrologerId=&userId=
func (h *CallHandler) List(c *gin.Context) {
	astrologerID := c.Query("astrologerId")
	if !validID(astrologerID) {
		badRequest(c, "Invalid astrologer ID")
		return
	}
	userID := c.Query("userId")
	if !validID(userID) {
		badRequest(c, "Invalid user ID")
		return
	}
	var (
		calls []model.Call
		err   error
	)
	switch {
	case userID != "":
		calls, err = h.calls.ListCalls(c.Request.Context(), model.CallFilter{
			AstrologerID: astrologerID,
			UserID:       userID,
			Limit:        userHistoryLimit,
			NewestFirst:  true,
		})
	case astrologerID != "":
		calls, err = h.calls.GetCallsForAstrologer(c.Request.Context(), astrologerID)
	default:
		calls, err = h.calls.ListCalls(c.Request.Context(), model.CallFilter{Limit: recentCallsLimit, NewestFirst: true})
	}
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "calls": calls})
}
