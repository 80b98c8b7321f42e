package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/spigell/jobboard/internal/board"
	"github.com/spigell/jobboard/internal/logger"
)

const aiProbeTimeout = 15 * time.Second

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "OK", "timestamp": time.Now().UTC().Format(time.RFC3339)})
}

func (h *handler) testAI(c *gin.Context) {
	if h.deps.Prober == nil {
		failure(c, http.StatusServiceUnavailable, "Gemini client not initialized, set GEMINI_API_KEY", nil)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), aiProbeTimeout)
	defer cancel()

	reply, err := h.deps.Prober.Ping(ctx)
	if err != nil {
		h.logger.Warn("gemini probe failed", zap.Error(err))
		failure(c, http.StatusBadGateway, "Gemini test failed", err.Error())
		return
	}

	success(c, http.StatusOK, "Gemini connection successful!", gin.H{
		"model":    h.deps.Prober.Model(),
		"response": reply,
	})
}

func (h *handler) listJobs(c *gin.Context) {
	activeOnly := c.DefaultQuery("all", "false") != "true"
	jobs, err := h.deps.Jobs.ListJobs(c.Request.Context(), activeOnly)
	if err != nil {
		c.Error(err)
		return
	}
	success(c, http.StatusOK, "Jobs retrieved", gin.H{"jobs": jobs})
}

func (h *handler) getJob(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	job, err := h.deps.Jobs.GetJob(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}
	success(c, http.StatusOK, "Job retrieved", gin.H{"job": job})
}

type createJobRequest struct {
	Title        string `json:"title" binding:"required"`
	Description  string `json:"description" binding:"required"`
	Requirements string `json:"requirements"`
	Location     string `json:"location"`
	SalaryRange  string `json:"salary_range"`
	Status       string `json:"status" binding:"omitempty,oneof=active closed"`
}

func (h *handler) createJob(c *gin.Context) {
	var req createJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(badRequest(err.Error()))
		return
	}

	job := &board.Job{
		Title:        strings.TrimSpace(req.Title),
		Description:  strings.TrimSpace(req.Description),
		Requirements: strings.TrimSpace(req.Requirements),
		Location:     strings.TrimSpace(req.Location),
		SalaryRange:  strings.TrimSpace(req.SalaryRange),
		Status:       req.Status,
	}
	if err := job.Validate(); err != nil {
		c.Error(badRequest(err.Error()))
		return
	}
	if err := h.deps.Jobs.CreateJob(c.Request.Context(), job); err != nil {
		c.Error(err)
		return
	}
	success(c, http.StatusCreated, "Job created", gin.H{"job": job})
}

type submitRequest struct {
	JobID    int64  `form:"job_id" binding:"required,gt=0"`
	FullName string `form:"full_name" binding:"required"`
	Email    string `form:"email" binding:"required,email"`
	Phone    string `form:"phone"`
}

// submitApplication stores the resume, persists a pending application and
// schedules evaluation. The response never waits for the model.
func (h *handler) submitApplication(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBind(&req); err != nil {
		c.Error(badRequest(err.Error()))
		return
	}

	ctx := c.Request.Context()

	job, err := h.deps.Jobs.GetJob(ctx, req.JobID)
	if err != nil {
		c.Error(err)
		return
	}
	if !job.Active() {
		c.Error(badRequest("This job is no longer accepting applications"))
		return
	}

	header, err := c.FormFile("resume")
	if err != nil {
		c.Error(badRequest("Resume file is required"))
		return
	}
	file, err := header.Open()
	if err != nil {
		c.Error(errors.Wrap(err, "open uploaded resume"))
		return
	}
	defer file.Close()

	stored, err := h.deps.Intake.Save(header.Filename, file)
	if err != nil {
		c.Error(err)
		return
	}

	app := &board.Application{
		JobID:      job.ID,
		FullName:   strings.TrimSpace(req.FullName),
		Email:      strings.TrimSpace(req.Email),
		Phone:      strings.TrimSpace(req.Phone),
		ResumePath: stored.Path,
	}
	if err := h.deps.Applications.CreateApplication(ctx, app); err != nil {
		if rmErr := h.deps.Intake.Remove(stored.Path); rmErr != nil {
			h.logger.Warn("orphaned resume", zap.String("path", stored.Path), zap.Error(rmErr))
		}
		c.Error(err)
		return
	}

	log := logger.ForApplication(h.logger, app.ID, app.JobID)
	if err := h.deps.Dispatcher.Dispatch(ctx, app.ID); err != nil {
		// The application is stored; recovery dispatches it later.
		log.Error("schedule evaluation", zap.Error(err))
	} else {
		log.Info("application submitted")
	}

	success(c, http.StatusCreated, "Application submitted successfully", gin.H{
		"application": gin.H{"id": app.ID, "status": app.Status},
	})
}

func (h *handler) myApplications(c *gin.Context) {
	email := strings.TrimSpace(c.Query("email"))
	if email == "" {
		c.Error(badRequest("email query parameter is required"))
		return
	}
	apps, err := h.deps.Applications.ListApplications(c.Request.Context(), board.ApplicationFilter{Email: email})
	if err != nil {
		c.Error(err)
		return
	}
	success(c, http.StatusOK, "Applications retrieved", gin.H{"applications": apps})
}

func (h *handler) getApplication(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	app, err := h.deps.Applications.GetApplication(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}
	success(c, http.StatusOK, "Application retrieved", gin.H{"application": app})
}

func (h *handler) listApplications(c *gin.Context) {
	var filter board.ApplicationFilter

	if raw := c.Query("status"); raw != "" {
		status, err := board.ParseStatus(raw)
		if err != nil {
			c.Error(badRequest("Invalid status filter"))
			return
		}
		filter.Status = status
	}
	if raw := c.Query("job_id"); raw != "" {
		jobID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || jobID <= 0 {
			c.Error(badRequest("Invalid job_id filter"))
			return
		}
		filter.JobID = jobID
	}

	apps, err := h.deps.Applications.ListApplications(c.Request.Context(), filter)
	if err != nil {
		c.Error(err)
		return
	}
	success(c, http.StatusOK, "Applications retrieved", gin.H{"applications": apps})
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *handler) updateStatus(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(badRequest(err.Error()))
		return
	}
	status, err := board.ParseStatus(req.Status)
	if err != nil {
		c.Error(badRequest("Invalid status"))
		return
	}
	if status != board.StatusAccepted && status != board.StatusRejected {
		c.Error(badRequest("Status must be accepted or rejected"))
		return
	}

	app, err := h.deps.Applications.UpdateStatus(c.Request.Context(), id, status, board.ActorHR)
	if err != nil {
		c.Error(err)
		return
	}

	logger.ForApplication(h.logger, app.ID, app.JobID).Info("hr decision recorded", zap.String("status", app.Status.String()))
	success(c, http.StatusOK, "Application status updated", gin.H{"application": app})
}

func (h *handler) reevaluate(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.deps.Reevaluator.Reevaluate(c.Request.Context(), id, h.deps.Dispatcher); err != nil {
		if errors.Is(err, board.ErrInvalidTransition) {
			c.Error(conflict("Only pending or evaluating applications can be evaluated again", err))
			return
		}
		if errors.Is(err, board.ErrStale) {
			c.Error(conflict("Evaluation is already in progress", err))
			return
		}
		c.Error(err)
		return
	}
	success(c, http.StatusAccepted, "Evaluation scheduled", gin.H{"application": gin.H{"id": id}})
}

func (h *handler) stats(c *gin.Context) {
	stats, err := h.deps.Applications.Stats(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	success(c, http.StatusOK, "Stats retrieved", gin.H{
		"stats":           stats,
		"score_threshold": h.deps.Threshold,
		"ai_configured":   h.deps.Prober != nil,
	})
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.Error(badRequest("Invalid id"))
		return 0, false
	}
	return id, true
}
