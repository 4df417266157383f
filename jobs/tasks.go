// Package jobs runs background maintenance for the permission store on
// Asynq.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskGrantRepair re-attaches the Administrator grant to permissions
	// left ungranted by the create/grant partial-failure window.
	TaskGrantRepair = "permission:grant_repair"
)

// GrantRepairPayload configures a grant-repair run.
type GrantRepairPayload struct {
	// Limit caps how many permissions a single run repairs; 0 means all.
	Limit int `json:"limit,omitempty"`
}

// NewGrantRepairTask constructs an Asynq task.
func NewGrantRepairTask(payload GrantRepairPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskGrantRepair, data), nil
}
