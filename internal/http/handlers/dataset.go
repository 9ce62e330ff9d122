package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/verdantis/esgdata-backend/internal/data/repos"
	"github.com/verdantis/esgdata-backend/internal/domain"
	"github.com/verdantis/esgdata-backend/internal/http/response"
	"github.com/verdantis/esgdata-backend/internal/platform/ctxutil"
	"github.com/verdantis/esgdata-backend/internal/services"
)

type DatasetHandler struct {
	datasets services.DatasetService
}

func NewDatasetHandler(datasets services.DatasetService) *DatasetHandler {
	return &DatasetHandler{datasets: datasets}
}

type datasetUploadRequest struct {
	CompanyID       uuid.UUID       `json:"companyId" binding:"required"`
	ReportingPeriod string          `json:"reportingPeriod" binding:"required"`
	Data            json.RawMessage `json:"data" binding:"required"`
}

// POST /api/datasets/:framework
func (h *DatasetHandler) UploadDataset(c *gin.Context) {
	var req datasetUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	upload := &domain.StorableDataset{
		CompanyID:       req.CompanyID,
		DataType:        c.Param("framework"),
		ReportingPeriod: req.ReportingPeriod,
		Data:            req.Data,
	}
	if user := ctxutil.GetRequestUser(c.Request.Context()); user != nil {
		upload.UploaderUserID = user.UserID
	}

	meta, err := h.datasets.StoreDataset(c.Request.Context(), upload)
	if err != nil {
		if errors.Is(err, services.ErrInvalidUpload) {
			response.RespondError(c, http.StatusBadRequest, "invalid_dataset", err)
			return
		}
		response.RespondError(c, http.StatusInternalServerError, "store_dataset_failed", err)
		return
	}
	response.RespondCreated(c, gin.H{"meta": meta})
}

// GET /api/datasets/:id
func (h *DatasetHandler) GetDataset(c *gin.Context) {
	datasetID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_dataset_id", err)
		return
	}
	payload, err := h.datasets.GetDataset(c.Request.Context(), datasetID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			response.RespondError(c, http.StatusNotFound, "dataset_not_found", err)
			return
		}
		response.RespondError(c, http.StatusInternalServerError, "get_dataset_failed", err)
		return
	}
	response.RespondOK(c, payload)
}

// GET /api/data/:framework/companies/:companyId/active?reportingPeriod=
func (h *DatasetHandler) GetActiveDataset(c *gin.Context) {
	companyID, err := uuid.Parse(c.Param("companyId"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_company_id", err)
		return
	}
	key := domain.DataKey{
		CompanyID:       companyID,
		DataType:        c.Param("framework"),
		ReportingPeriod: c.Query("reportingPeriod"),
	}
	if key.ReportingPeriod == "" {
		response.RespondError(c, http.StatusBadRequest, "missing_reporting_period", errors.New("reportingPeriod query parameter required"))
		return
	}
	payload, err := h.datasets.GetActiveDataset(c.Request.Context(), key)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			response.RespondError(c, http.StatusNotFound, "no_active_dataset", err)
			return
		}
		response.RespondError(c, http.StatusInternalServerError, "get_active_dataset_failed", err)
		return
	}
	response.RespondOK(c, payload)
}

// GET /api/metadata?companyId=&dataType=&reportingPeriod=&qaStatus=&onlyActive=
func (h *DatasetHandler) SearchMetadata(c *gin.Context) {
	filter := repos.DatasetMetaSearchFilter{
		DataType:        c.Query("dataType"),
		ReportingPeriod: c.Query("reportingPeriod"),
		QaStatus:        domain.QaStatus(c.Query("qaStatus")),
		OnlyActive:      c.Query("onlyActive") == "true",
	}
	if raw := c.Query("companyId"); raw != "" {
		companyID, err := uuid.Parse(raw)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_company_id", err)
			return
		}
		filter.CompanyID = companyID
	}
	if filter.QaStatus != "" && !filter.QaStatus.Valid() {
		response.RespondError(c, http.StatusBadRequest, "invalid_qa_status", errors.New("qaStatus must be Pending, Accepted or Rejected"))
		return
	}
	results, err := h.datasets.SearchMetadata(c.Request.Context(), filter)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "search_metadata_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"metadata": results})
}
