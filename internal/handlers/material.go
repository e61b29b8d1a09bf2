package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/veritext/veritext-backend/internal/domain"
	"github.com/veritext/veritext-backend/internal/platform/apierr"
	"github.com/veritext/veritext-backend/internal/platform/logger"
	"github.com/veritext/veritext-backend/internal/services"
)

type MaterialHandler struct {
	log       *logger.Logger
	materials *services.MaterialService
	ingestion *services.IngestionService
}

func NewMaterialHandler(baseLog *logger.Logger, msvc *services.MaterialService, isvc *services.IngestionService) *MaterialHandler {
	return &MaterialHandler{
		log:       baseLog.With("handler", "MaterialHandler"),
		materials: msvc,
		ingestion: isvc,
	}
}

func paramID(c *gin.Context, name string) (uint, error) {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, apierr.InvalidInput("invalid %s %q", name, raw)
	}
	return uint(id), nil
}

// registerResponse flattens the created material into the response body, so
// id and processingStatus sit at the top level next to the success flag.
type registerResponse struct {
	Success bool `json:"success"`
	*domain.Material
}

// POST /materials
func (h *MaterialHandler) Register(c *gin.Context) {
	var in services.RegisterMaterialInput
	if err := c.ShouldBindJSON(&in); err != nil {
		RespondError(c, apierr.InvalidInput("invalid request body: %v", err))
		return
	}
	m, err := h.materials.Register(c.Request.Context(), in)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, registerResponse{Success: true, Material: m})
}

// POST /materials/:id/process
func (h *MaterialHandler) Process(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		RespondError(c, err)
		return
	}
	res, err := h.ingestion.Ingest(c.Request.Context(), id)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{
		"success":        true,
		"materialId":     res.MaterialID,
		"status":         res.Status,
		"numChunks":      res.NumChunks,
		"embeddingShape": res.EmbeddingShape,
	})
}

// GET /materials?courseId=|submissionId=
func (h *MaterialHandler) List(c *gin.Context) {
	mats, err := h.materials.List(c.Request.Context(), c.Query("courseId"), c.Query("submissionId"))
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"materials": mats, "count": len(mats)})
}

// DELETE /materials/:id
func (h *MaterialHandler) Delete(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		RespondError(c, err)
		return
	}
	res, err := h.materials.DeleteMaterial(c.Request.Context(), id)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{
		"success":           true,
		"materialId":        res.MaterialID,
		"chunksDeleted":     res.ChunksDeleted,
		"embeddingsDeleted": res.EmbeddingsDeleted,
	})
}

// DELETE /courses/:id
func (h *MaterialHandler) DeleteCourse(c *gin.Context) {
	courseID := c.Param("id")
	res, err := h.materials.DeleteCourse(c.Request.Context(), courseID)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"success": true, "deleted": res})
}

// DELETE /namespace/:ns/all
func (h *MaterialHandler) ResetNamespace(c *gin.Context) {
	ns, ok := domain.ParseNamespace(c.Param("ns"))
	if !ok {
		RespondError(c, apierr.InvalidInput("unknown namespace %q", c.Param("ns")))
		return
	}
	res, err := h.materials.ResetNamespace(c.Request.Context(), ns)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"success": true, "reset": res})
}
