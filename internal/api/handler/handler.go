package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"flowengine/internal/api/dto"
	"flowengine/internal/bulk"
	"flowengine/internal/core/ports"
	"flowengine/internal/domain"
	"flowengine/internal/orchestrator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type FlowHandler struct {
	orch *orchestrator.Orchestrator
	bulk *bulk.Service
}

func NewFlowHandler(orch *orchestrator.Orchestrator, bulkSvc *bulk.Service) *FlowHandler {
	return &FlowHandler{orch: orch, bulk: bulkSvc}
}

// scopeFrom reads the opaque tenant scope the auth layer attaches to every
// request. The engine never interprets it beyond matching stored records.
func scopeFrom(c *gin.Context) (domain.TenantScope, bool) {
	clientID, err := uuid.Parse(c.GetHeader("X-Client-Account-ID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid X-Client-Account-ID"})
		return domain.TenantScope{}, false
	}
	engagementID, err := uuid.Parse(c.GetHeader("X-Engagement-ID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid X-Engagement-ID"})
		return domain.TenantScope{}, false
	}
	scope := domain.TenantScope{ClientAccountID: clientID, EngagementID: engagementID}
	if userID, err := uuid.Parse(c.GetHeader("X-User-ID")); err == nil {
		scope.UserID = userID
	}
	return scope, true
}

// statusFor maps engine error kinds onto transport codes. This is the only
// place that translation happens.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidFlowType), errors.Is(err, domain.ErrUnknownPhase):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrExecutionInFlight),
		errors.Is(err, domain.ErrVersionConflict),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrFlowTerminal):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func (h *FlowHandler) CreateFlow(c *gin.Context) {
	scope, ok := scopeFrom(c)
	if !ok {
		return
	}

	var req dto.CreateFlowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var config datatypes.JSON
	if req.Config != nil {
		config, _ = json.Marshal(req.Config)
	}

	flow, err := h.orch.CreateFlow(c.Request.Context(), domain.FlowType(req.FlowType), req.Name, config, scope)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, dto.CreateFlowResponse{
		FlowID:       flow.ID,
		FlowType:     string(flow.FlowType),
		Status:       string(flow.Status),
		CurrentPhase: flow.CurrentPhase,
	})
}

func (h *FlowHandler) GetFlowStatus(c *gin.Context) {
	scope, ok := scopeFrom(c)
	if !ok {
		return
	}
	flowID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid flow id"})
		return
	}
	includeDetails := c.Query("details") == "true"

	status, err := h.orch.GetFlowStatus(c.Request.Context(), flowID, scope, includeDetails)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *FlowHandler) ExecutePhase(c *gin.Context) {
	scope, ok := scopeFrom(c)
	if !ok {
		return
	}
	flowID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid flow id"})
		return
	}

	var req dto.ExecutePhaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var input datatypes.JSON
	if req.Input != nil {
		input, _ = json.Marshal(req.Input)
	}

	resp, err := h.orch.ExecutePhase(c.Request.Context(), flowID, req.Phase, input, scope)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *FlowHandler) CancelFlow(c *gin.Context) {
	scope, ok := scopeFrom(c)
	if !ok {
		return
	}
	flowID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid flow id"})
		return
	}

	if err := h.orch.CancelFlow(c.Request.Context(), flowID, scope); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": string(domain.FlowCancelled)})
}

func (h *FlowHandler) RepairOrphanedData(c *gin.Context) {
	scope, ok := scopeFrom(c)
	if !ok {
		return
	}
	flowID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid flow id"})
		return
	}

	var req dto.RepairRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.orch.RepairOrphanedData(c.Request.Context(), flowID, req.OptionID, req.TargetID, scope)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *FlowHandler) BulkPreview(c *gin.Context) {
	scope, ok := scopeFrom(c)
	if !ok {
		return
	}

	var req dto.BulkPreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.bulk.Preview(c.Request.Context(), scope, req.TargetIDs, req.Fields)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *FlowHandler) BulkSubmit(c *gin.Context) {
	scope, ok := scopeFrom(c)
	if !ok {
		return
	}

	var req dto.BulkSubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resolutions := make([]ports.GapResolution, 0, len(req.Resolutions))
	for _, r := range req.Resolutions {
		resolutions = append(resolutions, ports.GapResolution{
			GapID:      r.GapID,
			Value:      r.Value,
			ResolvedBy: scope.UserID,
		})
	}

	result, err := h.bulk.Submit(c.Request.Context(), scope, resolutions, bulk.ConflictStrategy(req.Strategy), nil)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}
