package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/veritext/veritext-backend/internal/platform/apierr"
	"github.com/veritext/veritext-backend/internal/platform/logger"
	"github.com/veritext/veritext-backend/internal/services"
)

type SubmissionHandler struct {
	log        *logger.Logger
	ingestion  *services.IngestionService
	plagiarism *services.PlagiarismService
}

func NewSubmissionHandler(baseLog *logger.Logger, isvc *services.IngestionService, psvc *services.PlagiarismService) *SubmissionHandler {
	return &SubmissionHandler{
		log:        baseLog.With("handler", "SubmissionHandler"),
		ingestion:  isvc,
		plagiarism: psvc,
	}
}

// POST /submissions/:id/process
func (h *SubmissionHandler) Process(c *gin.Context) {
	submissionID := c.Param("id")
	if submissionID == "" {
		RespondError(c, apierr.InvalidInput("submission id is required"))
		return
	}
	res, err := h.ingestion.ProcessSubmission(c.Request.Context(), submissionID)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{
		"success":      true,
		"submissionId": res.SubmissionID,
		"status":       res.Status,
		"results":      res.Results,
	})
}

// GET /submissions/:id/plagiarism-report
func (h *SubmissionHandler) Report(c *gin.Context) {
	submissionID := c.Param("id")
	if submissionID == "" {
		RespondError(c, apierr.InvalidInput("submission id is required"))
		return
	}
	report, err := h.plagiarism.CheckSubmission(c.Request.Context(), submissionID)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, report)
}
