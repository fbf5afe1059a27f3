package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"pulsehub/internal/errors"
	"pulsehub/internal/hub"
	"pulsehub/internal/recommend"
)

// SnapshotHandler serves the latest published snapshot
type SnapshotHandler struct {
	hub *hub.Hub
}

// NewSnapshotHandler creates a snapshot handler
func NewSnapshotHandler(h *hub.Hub) *SnapshotHandler {
	return &SnapshotHandler{hub: h}
}

// GetSnapshot returns the latest snapshot filtered for the caller's modules.
// It never blocks waiting for an aggregation cycle.
func (h *SnapshotHandler) GetSnapshot(c *gin.Context) {
	snapshot, err := h.hub.GetSnapshot(callerModules(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// ForceAggregate runs one synchronous aggregation cycle outside the schedule
func (h *SnapshotHandler) ForceAggregate(c *gin.Context) {
	snapshot := h.hub.ForceAggregation()
	c.JSON(http.StatusOK, snapshot.FilterForModules(callerModules(c)))
}

// AlertHandler serves alert queries and lifecycle operations
type AlertHandler struct {
	hub *hub.Hub
}

// NewAlertHandler creates an alert handler
func NewAlertHandler(h *hub.Hub) *AlertHandler {
	return &AlertHandler{hub: h}
}

// ListAlerts returns alerts that still demand attention
func (h *AlertHandler) ListAlerts(c *gin.Context) {
	alerts := h.hub.ActiveAlerts()
	c.JSON(http.StatusOK, gin.H{"alerts": alerts, "count": len(alerts)})
}

// AlertHistory returns persisted alert transitions, newest first
func (h *AlertHandler) AlertHistory(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(c, errors.NewAppError(errors.ErrCodeInvalidInput, "invalid limit", err))
			return
		}
		limit = parsed
	}
	history, err := h.hub.AlertHistory(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": history, "count": len(history)})
}

type ackRequest struct {
	Actor string `json:"actor" binding:"required"`
}

// Acknowledge marks an alert acknowledged on behalf of an actor
func (h *AlertHandler) Acknowledge(c *gin.Context) {
	var req ackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errors.NewAppError(errors.ErrCodeInvalidInput, "actor is required", err))
		return
	}
	alert, err := h.hub.AcknowledgeAlert(c.Param("id"), req.Actor)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, alert)
}

// AnalyticsHandler serves forecasts, insights and recommendations
type AnalyticsHandler struct {
	hub *hub.Hub
}

// NewAnalyticsHandler creates an analytics handler
func NewAnalyticsHandler(h *hub.Hub) *AnalyticsHandler {
	return &AnalyticsHandler{hub: h}
}

// Predict forecasts one metric over the requested horizon
func (h *AnalyticsHandler) Predict(c *gin.Context) {
	metric := c.Query("metric")
	if metric == "" {
		writeError(c, errors.NewAppError(errors.ErrCodeInvalidInput, "metric is required", nil))
		return
	}

	horizon := 5
	if raw := c.Query("horizon"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(c, errors.NewAppError(errors.ErrCodeInvalidInput, "invalid horizon", err))
			return
		}
		horizon = parsed
	}

	prediction, err := h.hub.Predict(metric, horizon)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, prediction)
}

// Insights returns the currently surfaced insights
func (h *AnalyticsHandler) Insights(c *gin.Context) {
	var window time.Duration
	if raw := c.Query("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed < 0 {
			writeError(c, errors.NewAppError(errors.ErrCodeInvalidInput, "invalid window", err))
			return
		}
		window = parsed
	}
	insights := h.hub.GenerateInsights(window)
	c.JSON(http.StatusOK, gin.H{"insights": insights, "count": len(insights)})
}

type recommendationRequest struct {
	Context *recommend.Context `json:"context"`
	Filters *recommend.Filters `json:"filters"`
}

// Recommendations synthesizes ranked recommendations, optionally weighted
// by the caller's business context and trimmed by filters
func (h *AnalyticsHandler) Recommendations(c *gin.Context) {
	var req recommendationRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, errors.NewAppError(errors.ErrCodeInvalidInput, "invalid request body", err))
			return
		}
	}

	recs := h.hub.GenerateRecommendations(req.Context, req.Filters)
	c.JSON(http.StatusOK, gin.H{
		"recommendations": recs,
		"summary":         h.hub.RecommendationSummary(recs),
	})
}

// LifecycleHandler controls the hub lifecycle
type LifecycleHandler struct {
	hub *hub.Hub
}

// NewLifecycleHandler creates a lifecycle handler
func NewLifecycleHandler(h *hub.Hub) *LifecycleHandler {
	return &LifecycleHandler{hub: h}
}

// Start starts the hub. Starting a running hub is a no-op.
func (h *LifecycleHandler) Start(c *gin.Context) {
	if err := h.hub.Start(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": h.hub.State()})
}

// Stop stops the hub gracefully. Stopping a stopped hub is a no-op.
func (h *LifecycleHandler) Stop(c *gin.Context) {
	if err := h.hub.Stop(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": h.hub.State()})
}

// Status reports the hub lifecycle state
func (h *LifecycleHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"state": h.hub.State()})
}
