package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/verdantis/esgdata-backend/internal/domain"
	"github.com/verdantis/esgdata-backend/internal/http/response"
	"github.com/verdantis/esgdata-backend/internal/services"
)

type DataPointHandler struct {
	dataPoints services.DataPointService
}

func NewDataPointHandler(dataPoints services.DataPointService) *DataPointHandler {
	return &DataPointHandler{dataPoints: dataPoints}
}

type dataPointUploadRequest struct {
	DataPointType   string          `json:"dataPointType" binding:"required"`
	CompanyID       uuid.UUID       `json:"companyId" binding:"required"`
	ReportingPeriod string          `json:"reportingPeriod" binding:"required"`
	Content         json.RawMessage `json:"content" binding:"required"`
}

// POST /api/data-points
func (h *DataPointHandler) UploadDataPoint(c *gin.Context) {
	var req dataPointUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	point, err := h.dataPoints.StoreDataPoint(c.Request.Context(), &domain.UploadedDataPoint{
		DataPointType:   req.DataPointType,
		CompanyID:       req.CompanyID,
		ReportingPeriod: req.ReportingPeriod,
		Content:         req.Content,
	})
	if err != nil {
		if errors.Is(err, services.ErrInvalidUpload) {
			response.RespondError(c, http.StatusBadRequest, "invalid_data_point", err)
			return
		}
		response.RespondError(c, http.StatusInternalServerError, "store_data_point_failed", err)
		return
	}
	response.RespondCreated(c, gin.H{"dataPoint": point})
}

// GET /api/data-points/:id
func (h *DataPointHandler) GetDataPoint(c *gin.Context) {
	pointID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_data_point_id", err)
		return
	}
	point, err := h.dataPoints.GetDataPoint(c.Request.Context(), pointID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			response.RespondError(c, http.StatusNotFound, "data_point_not_found", err)
			return
		}
		response.RespondError(c, http.StatusInternalServerError, "get_data_point_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"dataPoint": point})
}

type dataPointBatchRequest struct {
	IDs []uuid.UUID `json:"ids" binding:"required"`
}

// POST /api/data-points/batch
func (h *DataPointHandler) GetDataPointBatch(c *gin.Context) {
	var req dataPointBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	points, err := h.dataPoints.GetDataPointBatch(c.Request.Context(), req.IDs)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "get_data_point_batch_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"dataPoints": points})
}
