package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/gatewarden/gatewarden/internal/permission"
)

// GrantRepairStore is the slice of the permission store the repair job
// needs.
type GrantRepairStore interface {
	UngrantedPermissions(ctx context.Context) ([]permission.Permission, error)
	GrantAdministrator(ctx context.Context, permissionID int64) error
}

// GrantRepairJob heals permissions that were persisted without their
// administrator grant. Granting is idempotent, so overlapping runs are
// harmless.
type GrantRepairJob struct {
	store  GrantRepairStore
	logger *slog.Logger
}

// NewGrantRepairJob constructs the job.
func NewGrantRepairJob(store GrantRepairStore, logger *slog.Logger) *GrantRepairJob {
	return &GrantRepairJob{store: store, logger: logger}
}

// Handle processes TaskGrantRepair tasks.
func (j *GrantRepairJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload GrantRepairPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	ungranted, err := j.store.UngrantedPermissions(ctx)
	if err != nil {
		return err
	}
	if payload.Limit > 0 && len(ungranted) > payload.Limit {
		ungranted = ungranted[:payload.Limit]
	}

	repaired := 0
	for _, perm := range ungranted {
		if err := j.store.GrantAdministrator(ctx, perm.ID); err != nil {
			j.logger.Error("repair grant",
				slog.Int64("permission_id", perm.ID),
				slog.String("name", perm.Name),
				slog.Any("error", err))
			return err
		}
		repaired++
	}

	if repaired > 0 {
		j.logger.Info("repaired ungranted permissions", slog.Int("count", repaired))
	}
	return nil
}
