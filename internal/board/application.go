package board

import "time"

const (
	MinScore = 1
	MaxScore = 10
)

type Application struct {
	ID         int64     `json:"id"`
	JobID      int64     `json:"job_id"`
	FullName   string    `json:"full_name"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone"`
	ResumePath string    `json:"resume_path"`
	Status     Status    `json:"status"`
	AIScore    *int      `json:"ai_score"`
	AIFeedback *string   `json:"ai_feedback"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	// Filled by list queries that join the job.
	JobTitle    string `json:"job_title,omitempty"`
	JobLocation string `json:"job_location,omitempty"`
}

// Outcome is what the orchestrator writes when evaluation finishes.
// Score and Feedback stay nil on the fail-open path.
type Outcome struct {
	Status   Status
	Score    *int
	Feedback *string
}

// ClampScore forces a model score into the [MinScore, MaxScore] range.
func ClampScore(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}

// ApplicationFilter narrows application listings. Zero values match everything.
type ApplicationFilter struct {
	Status Status
	JobID  int64
	Email  string
}

// Stats summarises applications for the HR dashboard.
type Stats struct {
	TotalApplications int            `json:"total_applications"`
	ByStatus          map[Status]int `json:"by_status"`
	TotalJobs         int            `json:"total_jobs"`
	ActiveJobs        int            `json:"active_jobs"`
	AverageAIScore    *float64       `json:"average_ai_score"`
}
