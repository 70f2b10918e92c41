package reconciliation

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mbd888/ledger/internal/apperr"
)

// Handler exposes the reconciliation engine over HTTP.
type Handler struct {
	orchestrator *Orchestrator
	journal      *Journal
	logger       *slog.Logger
}

// NewHandler builds a reconciliation Handler.
func NewHandler(orchestrator *Orchestrator, journal *Journal, logger *slog.Logger) *Handler {
	return &Handler{orchestrator: orchestrator, journal: journal, logger: logger}
}

// RegisterRoutes attaches the reconciliation endpoints to r.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/run", h.Run)
	r.GET("/status/:date", h.Status)
	r.GET("/logs", h.Logs)
	r.GET("/summary/:date/:source", h.Summary)
	r.GET("/sources", h.Sources)
	r.GET("/ledger-events/:id", h.LedgerEvent)
	r.DELETE("/jobs/:id", h.CancelJob)
}

func errStatus(err error) int {
	switch apperr.KindOf(err) {
	case apperr.Validation:
		return http.StatusBadRequest
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.Conflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

type runRequest struct {
	Date      string `json:"date" binding:"required"`
	Source    string `json:"source" binding:"required"`
	FilePath  string `json:"file_path"`
	BaseURL   string `json:"base_url"`
	AuthToken string `json:"auth_token"`
}

// Run executes one synchronous reconciliation pass for the requested day
// and source, blocking until the job reaches a terminal status.
func (h *Handler) Run(c *gin.Context) {
	var req runRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body", "errors": []string{err.Error()}})
		return
	}

	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid date", "errors": []string{"date must be YYYY-MM-DD"}})
		return
	}

	params := LoadParams{FilePath: req.FilePath, BaseURL: req.BaseURL, AuthToken: req.AuthToken}
	jobID, err := h.orchestrator.Run(c.Request.Context(), date, SourceTag(req.Source), params)
	if err != nil {
		h.logger.Error("reconciliation run failed", "source", req.Source, "error", err)
		c.JSON(errStatus(err), gin.H{"message": "reconciliation run failed", "errors": []string{err.Error()}})
		return
	}

	status := string(JobCompleted)
	if jobs, statusErr := h.journal.GetJobStatus(c.Request.Context(), date, &req.Source); statusErr == nil && len(jobs) > 0 {
		status = string(jobs[0].Status)
	}

	c.JSON(http.StatusOK, gin.H{"job_id": jobID, "status": status, "message": "reconciliation run complete"})
}

// Status returns the job rows for a date, optionally filtered by source.
func (h *Handler) Status(c *gin.Context) {
	date, err := time.Parse("2006-01-02", c.Param("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid date"})
		return
	}
	var source *string
	if s := c.Query("source"); s != "" {
		source = &s
	}

	jobs, err := h.journal.GetJobStatus(c.Request.Context(), date, source)
	if err != nil {
		c.JSON(errStatus(err), gin.H{"message": "failed to read job status", "errors": []string{err.Error()}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

// Logs returns match-outcome log rows for a date, with optional source,
// matched, and pagination filters.
func (h *Handler) Logs(c *gin.Context) {
	date, err := time.Parse("2006-01-02", c.Query("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid or missing date"})
		return
	}
	var source *string
	if s := c.Query("source"); s != "" {
		source = &s
	}
	var matched *bool
	if m := c.Query("matched"); m != "" {
		b, err := strconv.ParseBool(m)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "invalid matched parameter"})
			return
		}
		matched = &b
	}

	limit := 100
	if l := c.Query("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 {
			limit = v
		}
	}
	offset := 0
	if o := c.Query("offset"); o != "" {
		if v, err := strconv.Atoi(o); err == nil && v >= 0 {
			offset = v
		}
	}

	entries, err := h.journal.GetLogs(c.Request.Context(), date, source, matched, limit, offset)
	if err != nil {
		c.JSON(errStatus(err), gin.H{"message": "failed to read recon logs", "errors": []string{err.Error()}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": entries, "count": len(entries)})
}

// Summary returns the aggregate outcome of a (date, source) job run.
func (h *Handler) Summary(c *gin.Context) {
	date, err := time.Parse("2006-01-02", c.Param("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid date"})
		return
	}
	source := c.Param("source")

	summary, err := h.journal.GetSummary(c.Request.Context(), date, source)
	if err != nil {
		c.JSON(errStatus(err), gin.H{"message": "no reconciliation data for date/source", "errors": []string{err.Error()}})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// Sources lists the SourceLoader tags the engine supports.
func (h *Handler) Sources(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sources": SupportedSources()})
}

// LedgerEvent returns a single ledger-side transaction, for drilling into
// the ledger_txn_id recorded on a recon_logs row.
func (h *Handler) LedgerEvent(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid ledger transaction id"})
		return
	}
	txn, err := h.orchestrator.LedgerTxn(c.Request.Context(), id)
	if err != nil {
		c.JSON(errStatus(err), gin.H{"message": "ledger transaction not found", "errors": []string{err.Error()}})
		return
	}
	c.JSON(http.StatusOK, txn)
}

// CancelJob marks a running job FAILED so the orchestrator's between-row
// status check aborts it.
func (h *Handler) CancelJob(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid job id"})
		return
	}
	if err := h.journal.MarkFailed(c.Request.Context(), id, "cancelled by user"); err != nil {
		c.JSON(errStatus(err), gin.H{"message": "failed to cancel job", "errors": []string{err.Error()}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "job marked failed", "job_id": id})
}
