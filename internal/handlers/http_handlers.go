package handlers

import (
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"prizedraw/internal/middleware"
	"prizedraw/internal/models"
	"prizedraw/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"
)

// HTTPHandler holds the dependencies for the HTTP handlers, like the activity registry.
type HTTPHandler struct {
	registry *services.Registry
}

// NewHTTPHandler creates a new HTTPHandler.
func NewHTTPHandler(registry *services.Registry) *HTTPHandler {
	return &HTTPHandler{registry: registry}
}

// RegisterPublicRoutes registers the routes that need no identity.
func (h *HTTPHandler) RegisterPublicRoutes(router gin.IRouter) {
	router.GET("/healthz", h.Health)
	router.GET("/activities", h.ListActivities)
	router.GET("/activities/:ref", h.GetActivity)
}

// RegisterIdentifiedRoutes registers the routes acting on behalf of a user.
// participate is the only route wrapped in the rate limiter.
func (h *HTTPHandler) RegisterIdentifiedRoutes(router gin.IRouter, limiter gin.HandlerFunc) {
	router.POST("/activities", h.CreateActivity)
	router.POST("/activities/:ref/participate", limiter, h.Participate)
	router.POST("/activities/:ref/start", h.StartActivity)
	router.POST("/activities/:ref/cancel", h.CancelActivity)
	router.DELETE("/activities/:ref", h.DeleteActivity)
	router.GET("/activities/:ref/winners.csv", h.ExportWinnersCSV)
}

// Health reports liveness.
func (h *HTTPHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "activities": h.registry.Len()})
}

// ListActivities lists activities, optionally filtered by status, creator and group.
func (h *HTTPHandler) ListActivities(c *gin.Context) {
	var filter services.ListFilter
	if s := c.Query("status"); s != "" {
		status, ok := models.ParseStatus(strings.ToLower(s))
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown status %q", s)})
			return
		}
		filter.Status = status
	}
	filter.Creator = c.Query("creator")
	filter.Group = c.Query("group")

	c.JSON(http.StatusOK, gin.H{"activities": h.registry.List(filter)})
}

// GetActivity returns a snapshot of one activity.
func (h *HTTPHandler) GetActivity(c *gin.Context) {
	a, ok := h.resolve(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, a.Info())
}

// CreateActivity creates an activity from a JSON specification body.
func (h *HTTPHandler) CreateActivity(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read request body"})
		return
	}
	a, err := h.registry.CreateFromJSON(body, middleware.UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, a.Info())
}

// Participate performs one draw attempt for the caller.
func (h *HTTPHandler) Participate(c *gin.Context) {
	a, ok := h.resolve(c)
	if !ok {
		return
	}
	if group := c.Query("group"); group != "" && !a.AllowsGroup(group) {
		c.JSON(http.StatusForbidden, gin.H{"error": fmt.Sprintf("activity %q is not available in group %q", a.Name(), group)})
		return
	}

	result, err := a.Participate(middleware.UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// StartActivity opens a pending activity now.
func (h *HTTPHandler) StartActivity(c *gin.Context) {
	a, ok := h.resolveOwned(c)
	if !ok {
		return
	}
	if err := a.Start(); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a.Info())
}

// CancelActivity ends an activity now.
func (h *HTTPHandler) CancelActivity(c *gin.Context) {
	a, ok := h.resolveOwned(c)
	if !ok {
		return
	}
	if err := a.Cancel(); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a.Info())
}

// DeleteActivity removes an activity and its stored data.
func (h *HTTPHandler) DeleteActivity(c *gin.Context) {
	a, ok := h.resolveOwned(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": h.registry.Delete(a.ID())})
}

// ExportWinnersCSV handles the request to download the winners of an activity as a CSV file.
func (h *HTTPHandler) ExportWinnersCSV(c *gin.Context) {
	a, ok := h.resolveOwned(c)
	if !ok {
		return
	}
	winners := a.Winners()

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment;filename=%s_winners.csv", a.ID()))

	// Add BOM to ensure UTF-8 compatibility in Excel
	c.Writer.Write([]byte("\xef\xbb\xbf"))

	w := csv.NewWriter(c.Writer)
	if err := w.Write([]string{"Activity", "User ID", "Prize"}); err != nil {
		logger.Infof("Error writing CSV header: %v", err)
		c.String(http.StatusInternalServerError, "Error writing CSV")
		return
	}
	for _, win := range winners {
		if err := w.Write([]string{a.Name(), win.UserID, win.PrizeName}); err != nil {
			logger.Infof("Error writing CSV row: %v", err)
			c.String(http.StatusInternalServerError, "Error writing CSV")
			return
		}
	}
	w.Flush()

	if err := w.Error(); err != nil {
		logger.Infof("Error flushing CSV writer: %v", err)
		c.String(http.StatusInternalServerError, "Error writing CSV")
	}
}

func (h *HTTPHandler) resolve(c *gin.Context) (*services.Activity, bool) {
	ref := c.Param("ref")
	a, ok := h.registry.Resolve(ref)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("activity %q not found", ref)})
		return nil, false
	}
	return a, true
}

// resolveOwned resolves the activity and checks the caller created it.
func (h *HTTPHandler) resolveOwned(c *gin.Context) (*services.Activity, bool) {
	a, ok := h.resolve(c)
	if !ok {
		return nil, false
	}
	if a.CreatorID() != middleware.UserID(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the creator can manage this activity"})
		return nil, false
	}
	return a, true
}

// writeError maps engine errors to HTTP responses.
func writeError(c *gin.Context, err error) {
	var specErr *models.SpecificationError
	if errors.As(err, &specErr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": specErr.Error(), "field": specErr.Field})
		return
	}

	var opErr *models.OperationError
	if !errors.As(err, &opErr) {
		logger.Errorf("Unexpected error on %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	status := http.StatusInternalServerError
	switch opErr.Kind {
	case models.KindInvalidInput:
		status = http.StatusBadRequest
	case models.KindNotActive, models.KindInvalidTransition, models.KindDuplicateName:
		status = http.StatusConflict
	case models.KindAttemptLimit, models.KindWinLimit, models.KindParticipantLimit:
		status = http.StatusForbidden
	case models.KindInternal:
		logger.Errorf("Internal error on %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(status, gin.H{"error": opErr.Message, "kind": opErr.Kind})
		return
	}
	c.JSON(status, gin.H{"error": opErr.Error(), "kind": opErr.Kind})
}
