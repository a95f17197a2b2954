package evaluations

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"interview-analyzer/internal/shared/server/middleware"
	"interview-analyzer/internal/shared/server/respond"
)

// Handler serves stored evaluations.
type Handler struct {
	Repo Repo
}

// NewHandler constructs a Handler.
func NewHandler(repo Repo) *Handler {
	return &Handler{Repo: repo}
}

// RegisterRoutes attaches evaluation routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/evaluations/:ownerId", h.listByOwner)
	rg.GET("/evaluations/:ownerId/:unitId", h.get)
}

func (h *Handler) listByOwner(c *gin.Context) {
	ownerID := c.Param("ownerId")
	c.Set(middleware.OwnerIDKey, ownerID)

	items, err := h.Repo.ListByOwner(c.Request.Context(), ownerID)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list evaluations", nil)
		return
	}
	if len(items) == 0 {
		respond.Error(c, http.StatusNotFound, "not_found", "no evaluations for owner", nil)
		return
	}
	respond.OK(c, gin.H{"ownerId": ownerID, "items": items, "count": len(items)})
}

func (h *Handler) get(c *gin.Context) {
	ownerID, unitID := c.Param("ownerId"), c.Param("unitId")
	c.Set(middleware.OwnerIDKey, ownerID)
	c.Set(middleware.UnitIDKey, unitID)

	eval, err := h.Repo.Get(c.Request.Context(), ownerID, unitID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "evaluation not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch evaluation", nil)
		}
		return
	}
	c.Set(middleware.AnalysisIDKey, eval.AnalysisID)
	respond.OK(c, eval)
}
