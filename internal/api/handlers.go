package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/sentinelstack/migration-sentinel/internal/actor"
	"github.com/sentinelstack/migration-sentinel/internal/engine"
	"github.com/sentinelstack/migration-sentinel/internal/history"
	"github.com/sentinelstack/migration-sentinel/internal/ingest"
	"github.com/sentinelstack/migration-sentinel/internal/metrics"
	"github.com/sentinelstack/migration-sentinel/internal/models"
	"github.com/sentinelstack/migration-sentinel/internal/store"
)

type handlers struct {
	store    *store.Store
	pipeline *engine.Pipeline
	actor    *actor.Actor
	history  *history.Analyzer
	logger   *slog.Logger
}

func (h *handlers) health(c *gin.Context) {
	backlog, err := h.store.UnprocessedCount(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "unprocessed_events": backlog})
}

type ingestRequest struct {
	Signals []models.RawSignal `json:"signals" binding:"required"`
}

func (h *handlers) ingestSignals(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if len(req.Signals) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "signals must not be empty"})
		return
	}

	events, rejected := ingest.NormalizeBatch(req.Signals)
	for range rejected {
		metrics.ObserveRejectedSignal()
	}

	accepted := 0
	duplicates := 0
	for i := range events {
		inserted, err := h.store.InsertEvent(c.Request.Context(), &events[i])
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if inserted {
			accepted++
			metrics.ObserveIngest(string(events[i].EventType))
		} else {
			duplicates++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"accepted":   accepted,
		"duplicates": duplicates,
		"rejected":   rejected,
	})
}

func (h *handlers) runDetection(c *gin.Context) {
	report, err := h.pipeline.RunCycle(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *handlers) pendingActions(c *gin.Context) {
	actions, err := h.store.PendingActions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if actions == nil {
		actions = []models.Action{}
	}
	c.JSON(http.StatusOK, gin.H{"actions": actions, "count": len(actions)})
}

func (h *handlers) getAction(c *gin.Context) {
	act, err := h.store.GetAction(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, act)
}

type approveRequest struct {
	ActionID     string `json:"action_id" binding:"required"`
	Approved     *bool  `json:"approved" binding:"required"`
	Reviewer     string `json:"reviewer" binding:"required"`
	Feedback     string `json:"feedback"`
	ConfirmFinal bool   `json:"confirm_final"`
}

func (h *handlers) approveAction(c *gin.Context) {
	var req approveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	ctx := c.Request.Context()
	if !*req.Approved {
		act, err := h.actor.Reject(ctx, req.ActionID, req.Reviewer, req.Feedback)
		if err != nil {
			h.storeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": act.Status, "action": act})
		return
	}

	outcome, err := h.actor.Approve(ctx, req.ActionID, req.Reviewer, req.Feedback, req.ConfirmFinal)
	if err != nil {
		h.storeError(c, err)
		return
	}
	resp := gin.H{"status": outcome.Action.Status, "action": outcome.Action}
	if outcome.AwaitingFinalApproval {
		resp["awaiting_final_approval"] = true
	}
	if outcome.Execution != nil {
		resp["execution_result"] = outcome.Execution
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handlers) listIncidents(c *gin.Context) {
	limit := intQuery(c, "limit", 50)
	minConfidence := floatQuery(c, "min_confidence", 0)

	incidents, err := h.store.ListIncidents(c.Request.Context(), limit, minConfidence)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if incidents == nil {
		incidents = []models.Incident{}
	}
	c.JSON(http.StatusOK, gin.H{"incidents": incidents, "count": len(incidents)})
}

func (h *handlers) recurringPatterns(c *gin.Context) {
	causes, err := h.history.RecurringCauses(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if causes == nil {
		causes = []history.CauseRecurrence{}
	}
	c.JSON(http.StatusOK, gin.H{"recurring_causes": causes})
}

func (h *handlers) getIncident(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid incident id"})
		return
	}
	inc, err := h.store.GetIncident(c.Request.Context(), id)
	if err != nil {
		h.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, inc)
}

type feedbackRequest struct {
	FeedbackType   models.FeedbackType `json:"feedback_type" binding:"required"`
	CorrectedCause string              `json:"corrected_cause"`
	Reviewer       string              `json:"reviewer" binding:"required"`
	Notes          string              `json:"notes"`
}

func (h *handlers) submitFeedback(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid incident id"})
		return
	}
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if !models.KnownFeedbackType(req.FeedbackType) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown feedback_type"})
		return
	}

	fb := models.Feedback{
		IncidentID:     id,
		FeedbackType:   req.FeedbackType,
		CorrectedCause: req.CorrectedCause,
		Reviewer:       req.Reviewer,
		Notes:          req.Notes,
	}
	if err := h.store.AddFeedback(c.Request.Context(), &fb); err != nil {
		h.storeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, fb)
}

func (h *handlers) auditTrail(c *gin.Context) {
	limit := intQuery(c, "limit", 100)
	entries, err := h.store.AuditTrail(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

// storeError maps store sentinels onto HTTP statuses: absent rows are 404,
// invalid lifecycle transitions 409.
func (h *handlers) storeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.logger.Error("request failed", "path", c.Request.URL.Path, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func intQuery(c *gin.Context, key string, fallback int) int {
	if v := c.Query(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func floatQuery(c *gin.Context, key string, fallback float64) float64 {
	if v := c.Query(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			return f
		}
	}
	return fallback
}
