package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/verdantis/esgdata-backend/internal/domain"
	"github.com/verdantis/esgdata-backend/internal/http/response"
	"github.com/verdantis/esgdata-backend/internal/services"
)

type SourceabilityHandler struct {
	sourceability services.SourceabilityService
}

func NewSourceabilityHandler(sourceability services.SourceabilityService) *SourceabilityHandler {
	return &SourceabilityHandler{sourceability: sourceability}
}

type sourceabilityRequest struct {
	CompanyID       uuid.UUID `json:"companyId" binding:"required"`
	DataType        string    `json:"dataType" binding:"required"`
	ReportingPeriod string    `json:"reportingPeriod" binding:"required"`
	Reason          string    `json:"reason"`
}

// POST /api/sourceability
func (h *SourceabilityHandler) FlagNonSourceable(c *gin.Context) {
	var req sourceabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	flag, err := h.sourceability.SetNonSourceable(c.Request.Context(), domain.DataKey{
		CompanyID:       req.CompanyID,
		DataType:        req.DataType,
		ReportingPeriod: req.ReportingPeriod,
	}, req.Reason)
	if err != nil {
		if errors.Is(err, services.ErrInvalidUpload) {
			response.RespondError(c, http.StatusBadRequest, "invalid_sourceability_flag", err)
			return
		}
		response.RespondError(c, http.StatusInternalServerError, "flag_non_sourceable_failed", err)
		return
	}
	response.RespondCreated(c, gin.H{"flag": flag})
}

// GET /api/sourceability?companyId=&dataType=&reportingPeriod=
func (h *SourceabilityHandler) GetSourceability(c *gin.Context) {
	companyID, err := uuid.Parse(c.Query("companyId"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_company_id", err)
		return
	}
	dataType := c.Query("dataType")
	reportingPeriod := c.Query("reportingPeriod")
	if dataType != "" && reportingPeriod != "" {
		nonSourceable, err := h.sourceability.IsNonSourceable(c.Request.Context(), domain.DataKey{
			CompanyID:       companyID,
			DataType:        dataType,
			ReportingPeriod: reportingPeriod,
		})
		if err != nil {
			response.RespondError(c, http.StatusInternalServerError, "get_sourceability_failed", err)
			return
		}
		response.RespondOK(c, gin.H{"nonSourceable": nonSourceable})
		return
	}
	flags, err := h.sourceability.ListForCompany(c.Request.Context(), companyID)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "list_sourceability_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"flags": flags})
}
