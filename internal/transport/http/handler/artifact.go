package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"sentigo/internal/artifact"
	"sentigo/internal/platform/objectstore"
	"sentigo/internal/transport/http/response"
)

type ArtifactHandler struct {
	artifacts *artifact.Store
}

func NewArtifactHandler(artifacts *artifact.Store) *ArtifactHandler {
	return &ArtifactHandler{artifacts: artifacts}
}

func (h *ArtifactHandler) ListPredictions(c *gin.Context) {
	artifacts, err := h.artifacts.ListPredictions(c.Request.Context())
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list prediction artifacts failed")
		return
	}
	response.OK(c, gin.H{
		"predictions": artifacts,
		"total":       len(artifacts),
	})
}

// GetPrediction streams the stored CSV as an attachment.
func (h *ArtifactHandler) GetPrediction(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid id parameter")
		return
	}

	csvData, err := h.artifacts.GetPredictionCSV(c.Request.Context(), id)
	if err != nil {
		h.writeArtifactError(c, err, "get prediction artifact failed")
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+id+`.csv"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", csvData)
}

func (h *ArtifactHandler) ListValidations(c *gin.Context) {
	artifacts, err := h.artifacts.ListValidations(c.Request.Context())
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list validation artifacts failed")
		return
	}
	response.OK(c, gin.H{
		"validations": artifacts,
		"total":       len(artifacts),
	})
}

func (h *ArtifactHandler) GetValidation(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid id parameter")
		return
	}

	report, err := h.artifacts.GetValidation(c.Request.Context(), id)
	if err != nil {
		h.writeArtifactError(c, err, "get validation artifact failed")
		return
	}

	response.OK(c, report)
}

func (h *ArtifactHandler) writeArtifactError(c *gin.Context, err error, fallback string) {
	if errors.Is(err, objectstore.ErrObjectNotFound) {
		response.Error(c, http.StatusNotFound, response.CodeArtifactNotFound, "artifact not found")
		return
	}
	response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
}
