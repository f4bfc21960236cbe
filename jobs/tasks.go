package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskSweepGrants removes permission grants past their expiry.
	TaskSweepGrants = "permission:sweep_grants"
	// TaskSweepDelegations deactivates delegations past their window.
	TaskSweepDelegations = "permission:sweep_delegations"
	// TaskCleanupCache removes expired effective-permission cache rows.
	TaskCleanupCache = "permission:cleanup_cache"
	// TaskDisposalScan disposes archived documents past retention.
	TaskDisposalScan = "retention:disposal_scan"
)

// MaintenancePayload parameterises a maintenance run. Empty means the
// handler's defaults apply.
type MaintenancePayload struct {
	DryRun bool `json:"dry_run,omitempty"`
}

// NewMaintenanceTask builds an asynq task of the given type.
func NewMaintenanceTask(taskType string, payload MaintenancePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, data), nil
}
