package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"sentigo/internal/app"
	"sentigo/internal/repository"
	"sentigo/internal/transport/http/response"
)

type SessionHandler struct {
	analysisService *app.AnalysisService
}

func NewSessionHandler(analysisService *app.AnalysisService) *SessionHandler {
	return &SessionHandler{analysisService: analysisService}
}

func (h *SessionHandler) List(c *gin.Context) {
	limit := queryInt(c, "limit", 10)
	offset := queryInt(c, "offset", 0)

	summaries, total, err := h.analysisService.ListSessions(c.Request.Context(), limit, offset)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list sessions failed")
		return
	}

	response.OK(c, gin.H{
		"sessions": summaries,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	})
}

func (h *SessionHandler) Stats(c *gin.Context) {
	sessionID, ok := pathID(c, "id")
	if !ok {
		return
	}

	stats, err := h.analysisService.SessionStats(c.Request.Context(), sessionID)
	if err != nil {
		h.writeSessionError(c, err, "session stats failed")
		return
	}

	response.OK(c, stats)
}

func (h *SessionHandler) Results(c *gin.Context) {
	sessionID, ok := pathID(c, "id")
	if !ok {
		return
	}

	filters, ok := parseResultFilters(c)
	if !ok {
		return
	}
	limit := queryInt(c, "limit", 50)
	offset := queryInt(c, "offset", 0)

	page, err := h.analysisService.QueryResults(c.Request.Context(), sessionID, filters, limit, offset)
	if err != nil {
		h.writeSessionError(c, err, "query results failed")
		return
	}

	response.OK(c, page)
}

func (h *SessionHandler) Delete(c *gin.Context) {
	sessionID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.analysisService.DeleteSession(c.Request.Context(), sessionID); err != nil {
		h.writeSessionError(c, err, "delete session failed")
		return
	}

	response.OK(c, gin.H{"deleted": sessionID})
}

func (h *SessionHandler) writeSessionError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, app.ErrSessionNotFound):
		response.Error(c, http.StatusNotFound, response.CodeSessionNotFound, err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}

func parseResultFilters(c *gin.Context) (repository.ResultFilters, bool) {
	var filters repository.ResultFilters

	if raw := c.Query("pred_label"); raw != "" {
		label, err := strconv.Atoi(raw)
		if err != nil || label < 0 || label > 2 {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid pred_label filter")
			return filters, false
		}
		filters.PredLabel = &label
	}
	if raw := c.Query("min_confidence"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid min_confidence filter")
			return filters, false
		}
		filters.MinConfidence = &v
	}
	if raw := c.Query("max_confidence"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid max_confidence filter")
			return filters, false
		}
		filters.MaxConfidence = &v
	}
	if raw := c.Query("source"); raw != "" {
		filters.Source = &raw
	}
	filters.Search = c.Query("search")

	return filters, true
}

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
