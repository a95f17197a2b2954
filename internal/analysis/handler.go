package analysis

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"interview-analyzer/internal/evaluations"
	"interview-analyzer/internal/inventory"
	"interview-analyzer/internal/jobs"
	"interview-analyzer/internal/shared/server/middleware"
	"interview-analyzer/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the orchestrator.
type Handler struct {
	Svc *Orchestrator
}

// NewHandler constructs a Handler.
func NewHandler(svc *Orchestrator) *Handler {
	return &Handler{Svc: svc}
}

type startRequest struct {
	OwnerID    string `json:"ownerId"`
	UnitID     string `json:"unitId"`
	SessionTag string `json:"sessionTag"`
}

// RegisterRoutes attaches analysis, scan, batch and inventory routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/analyses", h.startAnalysis)
	rg.GET("/analyses", h.listAnalyses)
	rg.GET("/analyses/:id", h.getAnalysis)
	rg.GET("/analyses/:id/status", h.getStatus)
	rg.GET("/analyses/:id/evaluation", h.getEvaluation)
	rg.POST("/analyses/:id/cancel", h.cancelAnalysis)

	rg.POST("/scans", h.restartScan)
	rg.GET("/scans/status", h.scanStatus)

	rg.POST("/batch/drain", h.drainBatch)
	rg.POST("/batch/check", h.checkBatch)
	rg.GET("/batch/status", h.batchStatus)

	rg.GET("/inventory", h.listInventory)
	rg.GET("/inventory/:ownerId/:unitId", h.locateUnit)
}

func (h *Handler) startAnalysis(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	c.Set(middleware.OwnerIDKey, req.OwnerID)
	c.Set(middleware.UnitIDKey, req.UnitID)

	job, err := h.Svc.StartUnit(c.Request.Context(), req.OwnerID, req.UnitID, req.SessionTag)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidRequest):
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), []map[string]string{
				{"field": "ownerId,unitId,sessionTag", "issue": "invalid"},
			})
		case errors.Is(err, inventory.ErrUnitNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "unit not found in content store", nil)
		case errors.Is(err, ErrBusy), errors.Is(err, ErrStopped), errors.Is(err, inventory.ErrDiscovery):
			respond.Error(c, http.StatusServiceUnavailable, "unavailable", "analysis cannot be accepted right now", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to start analysis", nil)
		}
		return
	}

	c.Set(middleware.AnalysisIDKey, job.AnalysisID)
	c.Set(middleware.StatusTransitionKey, "created->processing")
	respond.Accepted(c, gin.H{
		"analysisId": job.AnalysisID,
		"status":     job.Status,
	})
}

func (h *Handler) listAnalyses(c *gin.Context) {
	filter := jobs.ListFilter{
		Status:     strings.TrimSpace(c.Query("status")),
		OwnerID:    strings.TrimSpace(c.Query("ownerId")),
		SessionTag: strings.TrimSpace(c.Query("sessionTag")),
	}
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			filter.Limit = parsed
		}
	}

	list, err := h.Svc.ListRecent(c.Request.Context(), filter)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list analyses", nil)
		return
	}
	if list == nil {
		list = []jobs.Job{}
	}
	respond.OK(c, gin.H{"items": list, "count": len(list)})
}

func (h *Handler) getAnalysis(c *gin.Context) {
	analysisID := c.Param("id")
	c.Set(middleware.AnalysisIDKey, analysisID)

	job, err := h.Svc.GetJob(c.Request.Context(), analysisID)
	if err != nil {
		h.jobError(c, err, "failed to fetch analysis")
		return
	}
	respond.OK(c, job)
}

func (h *Handler) getStatus(c *gin.Context) {
	analysisID := c.Param("id")
	c.Set(middleware.AnalysisIDKey, analysisID)

	view, err := h.Svc.GetStatus(c.Request.Context(), analysisID)
	if err != nil {
		h.jobError(c, err, "failed to fetch analysis status")
		return
	}
	respond.OK(c, view)
}

func (h *Handler) getEvaluation(c *gin.Context) {
	analysisID := c.Param("id")
	c.Set(middleware.AnalysisIDKey, analysisID)

	eval, err := h.Svc.GetEvaluation(c.Request.Context(), analysisID)
	if err != nil {
		if errors.Is(err, evaluations.ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "evaluation not found", nil)
			return
		}
		h.jobError(c, err, "failed to fetch evaluation")
		return
	}
	c.Set(middleware.OwnerIDKey, eval.OwnerID)
	c.Set(middleware.UnitIDKey, eval.UnitID)
	respond.OK(c, eval)
}

func (h *Handler) cancelAnalysis(c *gin.Context) {
	analysisID := c.Param("id")
	c.Set(middleware.AnalysisIDKey, analysisID)

	job, err := h.Svc.CancelJob(c.Request.Context(), analysisID)
	if err != nil {
		if errors.Is(err, jobs.ErrNotProcessing) {
			respond.Error(c, http.StatusNotFound, "not_found", "no processing analysis with this id", nil)
			return
		}
		h.jobError(c, err, "failed to cancel analysis")
		return
	}
	c.Set(middleware.StatusTransitionKey, "processing->cancelled")
	respond.OK(c, gin.H{
		"analysisId": job.AnalysisID,
		"status":     job.Status,
	})
}

func (h *Handler) jobError(c *gin.Context, err error, msg string) {
	if errors.Is(err, jobs.ErrNotFound) {
		respond.Error(c, http.StatusNotFound, "not_found", "analysis not found", nil)
		return
	}
	respond.Error(c, http.StatusInternalServerError, "internal_error", msg, nil)
}

func (h *Handler) restartScan(c *gin.Context) {
	started := h.Svc.RestartScan()
	respond.Accepted(c, gin.H{"started": started})
}

func (h *Handler) scanStatus(c *gin.Context) {
	status, err := h.Svc.ScanStatus(c.Request.Context())
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to load scan status", nil)
		return
	}
	if status.Recent == nil {
		status.Recent = []jobs.Job{}
	}
	respond.OK(c, status)
}

func (h *Handler) drainBatch(c *gin.Context) {
	pending, started := h.Svc.TriggerBatch()
	if pending == 0 {
		respond.OK(c, gin.H{"pendingCount": 0, "started": false})
		return
	}
	respond.Accepted(c, gin.H{"pendingCount": pending, "started": started})
}

func (h *Handler) checkBatch(c *gin.Context) {
	h.Svc.ScheduleBatchCheck()
	respond.Accepted(c, gin.H{"scheduled": true})
}

func (h *Handler) batchStatus(c *gin.Context) {
	respond.OK(c, h.Svc.BatchStatus())
}

func (h *Handler) listInventory(c *gin.Context) {
	units, err := h.Svc.ListInventory(c.Request.Context())
	if err != nil {
		respond.Error(c, http.StatusServiceUnavailable, "unavailable", "content store listing failed", nil)
		return
	}
	total := 0
	for _, list := range units {
		total += len(list)
	}
	respond.OK(c, gin.H{
		"bucket": h.Svc.Bucket(),
		"owners": units,
		"total":  total,
	})
}

func (h *Handler) locateUnit(c *gin.Context) {
	ownerID, unitID := c.Param("ownerId"), c.Param("unitId")
	c.Set(middleware.OwnerIDKey, ownerID)
	c.Set(middleware.UnitIDKey, unitID)

	obj, err := h.Svc.LocateUnit(c.Request.Context(), ownerID, unitID)
	if err != nil {
		if errors.Is(err, inventory.ErrUnitNotFound) {
			respond.OK(c, gin.H{"found": false, "key": nil})
			return
		}
		respond.Error(c, http.StatusServiceUnavailable, "unavailable", "content store lookup failed", nil)
		return
	}
	respond.OK(c, gin.H{
		"found": true,
		"key":   obj.Key,
		"size":  obj.Size,
	})
}
