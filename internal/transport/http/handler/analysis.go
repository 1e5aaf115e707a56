package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"sentigo/internal/app"
	"sentigo/internal/csvio"
	"sentigo/internal/inference"
	"sentigo/internal/transport/http/middleware"
	"sentigo/internal/transport/http/response"
)

type AnalysisHandler struct {
	analysisService *app.AnalysisService
}

type AnalyzeTextRequest struct {
	Text string `json:"text" binding:"required"`
}

type PatchResultRequest struct {
	TrueLabel *int `json:"true_label" binding:"required"`
}

func NewAnalysisHandler(analysisService *app.AnalysisService) *AnalysisHandler {
	return &AnalysisHandler{analysisService: analysisService}
}

func (h *AnalysisHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing multipart file field")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "open uploaded file failed")
		return
	}
	defer file.Close()

	userID, _ := currentUserID(c)
	result, err := h.analysisService.Upload(c.Request.Context(), userID, fileHeader.Filename, file)
	if err != nil {
		h.writeAnalysisError(c, err, "upload failed")
		return
	}

	response.OK(c, result)
}

func (h *AnalysisHandler) AnalyzeText(c *gin.Context) {
	var req AnalyzeTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	pred, err := h.analysisService.AnalyzeText(c.Request.Context(), req.Text)
	if err != nil {
		h.writeAnalysisError(c, err, "analyze text failed")
		return
	}

	response.OK(c, pred)
}

func (h *AnalysisHandler) RunSession(c *gin.Context) {
	sessionID, ok := pathID(c, "id")
	if !ok {
		return
	}

	result, err := h.analysisService.RunSession(c.Request.Context(), sessionID)
	if err != nil {
		h.writeAnalysisError(c, err, "run session failed")
		return
	}

	response.OK(c, result)
}

func (h *AnalysisHandler) Validate(c *gin.Context) {
	sessionID, ok := pathID(c, "id")
	if !ok {
		return
	}

	result, err := h.analysisService.Validate(c.Request.Context(), sessionID)
	if err != nil {
		h.writeAnalysisError(c, err, "validate session failed")
		return
	}

	response.OK(c, result)
}

// ExportCSV streams the session as a CSV attachment rather than the JSON
// envelope.
func (h *AnalysisHandler) ExportCSV(c *gin.Context) {
	sessionID, ok := pathID(c, "id")
	if !ok {
		return
	}

	csvData, err := h.analysisService.ExportCSV(c.Request.Context(), sessionID)
	if err != nil {
		h.writeAnalysisError(c, err, "export session failed")
		return
	}

	filename := fmt.Sprintf("session_%d_results.csv", sessionID)
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", []byte(csvData))
}

// ExportJSON returns {data, count} without the envelope, mirroring the CSV
// export surface.
func (h *AnalysisHandler) ExportJSON(c *gin.Context) {
	sessionID, ok := pathID(c, "id")
	if !ok {
		return
	}

	records, err := h.analysisService.ExportRecords(c.Request.Context(), sessionID)
	if err != nil {
		h.writeAnalysisError(c, err, "export session failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  records,
		"count": len(records),
	})
}

func (h *AnalysisHandler) PatchResult(c *gin.Context) {
	resultID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req PatchResultRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.TrueLabel == nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	row, err := h.analysisService.PatchTrueLabel(c.Request.Context(), resultID, *req.TrueLabel)
	if err != nil {
		h.writeAnalysisError(c, err, "patch result failed")
		return
	}

	response.OK(c, row)
}

func (h *AnalysisHandler) writeAnalysisError(c *gin.Context, err error, fallback string) {
	if ve, ok := csvio.AsValidationError(err); ok {
		status := http.StatusBadRequest
		code := response.CodeInvalidCSV
		switch ve.Code {
		case csvio.CodeInvalidLabels:
			code = response.CodeInvalidLabels
		case csvio.CodeBatchTooLarge:
			status = http.StatusRequestEntityTooLarge
			code = response.CodeBatchTooLarge
		}
		response.ErrorRow(c, status, code, ve.Message, ve.Row)
		return
	}

	var de *inference.DispatchError
	switch {
	case errors.Is(err, app.ErrInvalidInput), errors.Is(err, app.ErrTextTooLong),
		errors.Is(err, app.ErrSessionEmpty), errors.Is(err, app.ErrNoLabeledResults):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrSessionNotFound):
		response.Error(c, http.StatusNotFound, response.CodeSessionNotFound, err.Error())
	case errors.Is(err, app.ErrResultNotFound):
		response.Error(c, http.StatusNotFound, response.CodeResultNotFound, err.Error())
	case errors.As(err, &de):
		response.Error(c, http.StatusBadGateway, response.CodeUpstreamFailed,
			fmt.Sprintf("inference chunk %d/%d failed", de.Chunk, de.Chunks))
	case inference.IsTransient(err):
		response.Error(c, http.StatusBadGateway, response.CodeUpstreamFailed, "inference service unreachable")
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}

func pathID(c *gin.Context, name string) (uint, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid id parameter")
		return 0, false
	}
	return uint(id), true
}

func currentUserID(c *gin.Context) (uint, bool) {
	userIDAny, exists := c.Get(middleware.ContextUserIDKey)
	if !exists {
		return 0, false
	}
	userID, ok := userIDAny.(uint)
	return userID, ok
}
