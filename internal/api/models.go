package api

import (
	"github.com/google/uuid"
	"github.com/phrazzld/scribe-api/internal/domain"
	"github.com/phrazzld/scribe-api/internal/writing"
)

// StepResponse is the body returned by the worker endpoints.
type StepResponse struct {
	Executed bool                 `json:"executed"`
	Skipped  bool                 `json:"skipped"`
	JobID    *uuid.UUID           `json:"job_id,omitempty"`
	JobType  domain.JobType       `json:"job_type,omitempty"`
	Outcome  writing.Outcome      `json:"outcome,omitempty"`
	Continue bool                 `json:"continue"`
	DelayMS  int64                `json:"delay_ms"`
	Status   domain.ProjectStatus `json:"status"`
}

func stepResponse(res writing.Result) StepResponse {
	out := StepResponse{
		Executed: res.Executed,
		Skipped:  res.Skipped,
		JobType:  res.JobType,
		Outcome:  res.Outcome,
		Continue: res.Continue,
		DelayMS:  res.Delay.Milliseconds(),
		Status:   res.Status,
	}
	if res.JobID != uuid.Nil {
		id := res.JobID
		out.JobID = &id
	}
	return out
}
