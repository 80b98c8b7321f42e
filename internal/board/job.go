package board

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

const (
	JobStatusActive = "active"
	JobStatusClosed = "closed"
)

type Job struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Requirements string    `json:"requirements"`
	Location     string    `json:"location"`
	SalaryRange  string    `json:"salary_range"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

// Active reports whether the job accepts applications.
func (j *Job) Active() bool {
	return j != nil && j.Status == JobStatusActive
}

// Validate checks the fields required to post a job.
func (j *Job) Validate() error {
	if j == nil {
		return errors.New("job is required")
	}
	if strings.TrimSpace(j.Title) == "" {
		return errors.New("job title is required")
	}
	if strings.TrimSpace(j.Description) == "" {
		return errors.New("job description is required")
	}
	switch j.Status {
	case "":
		j.Status = JobStatusActive
	case JobStatusActive, JobStatusClosed:
	default:
		return errors.Newf("unknown job status %q", j.Status)
	}
	return nil
}
