// Package models contains the wire and domain types shared by the dashboard,
// the job service and the CLI.
package models

import "encoding/json"

// JobStatus is the lifecycle state of a clustering job.
type JobStatus string

const (
	JobStatusRunning  JobStatus = "running"
	JobStatusSuccess  JobStatus = "success"
	JobStatusFailed   JobStatus = "failed"
	JobStatusCanceled JobStatus = "canceled"
)

// JobStatuses lists every known status in display order.
var JobStatuses = []JobStatus{JobStatusRunning, JobStatusSuccess, JobStatusFailed, JobStatusCanceled}

// Valid reports whether s is one of the known statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusRunning, JobStatusSuccess, JobStatusFailed, JobStatusCanceled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is expected from s.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSuccess || s == JobStatusFailed || s == JobStatusCanceled
}

// CanTransition reports whether a job in status from may move to status to.
// Re-asserting the current status is allowed; terminal states never change.
func CanTransition(from, to JobStatus) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	return from == JobStatusRunning
}

// ClusterRequest is the body of a job submission.
type ClusterRequest struct {
	Business  string `json:"business"`
	StartDate Date   `json:"startDate"`
	EndDate   Date   `json:"endDate"`
	Lang      string `json:"lang"`
}

// Job is a server-tracked clustering run. Clients only ever read it.
type Job struct {
	TaskID       string    `db:"task_id"       json:"task_id"`
	Business     string    `db:"business"      json:"business"`
	StartDate    Date      `db:"start_date"    json:"start_date"`
	EndDate      Date      `db:"end_date"      json:"end_date"`
	Lang         string    `db:"lang"          json:"lang"`
	Status       JobStatus `db:"status"        json:"status"`
	CreatedAt    Timestamp `db:"created_at"    json:"created_at"`
	UpdatedAt    Timestamp `db:"updated_at"    json:"updated_at"`
	ErrorMessage string    `db:"error_message" json:"error_message"`
}

// MarshalJSON writes an empty error message as null.
func (j Job) MarshalJSON() ([]byte, error) {
	type plain Job
	out := struct {
		plain
		ErrorMessage *string `json:"error_message"`
	}{plain: plain(j)}
	if j.ErrorMessage != "" {
		out.ErrorMessage = &j.ErrorMessage
	}
	return json.Marshal(out)
}

// CanViewFAQ reports whether the job's FAQ results can be browsed.
func (j Job) CanViewFAQ() bool {
	return j.Status == JobStatusSuccess
}
