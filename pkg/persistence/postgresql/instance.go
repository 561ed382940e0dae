package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowgate/flowgate/pkg/models"
	"github.com/flowgate/flowgate/pkg/persistence"
)

// InstanceRepository handles instance rows. The document column holds
// the full instance JSON; id, template_id, status and version are
// denormalized for indexing and the CAS guard.
type InstanceRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewInstanceRepository(db *sql.DB, logger *slog.Logger) *InstanceRepository {
	return &InstanceRepository{db: db, logger: logger}
}

func (r *InstanceRepository) Load(ctx context.Context, id string) (*models.WorkflowInstance, int64, error) {
	query := `
		SELECT document, version
		FROM workflow_instances
		WHERE id = $1
	`

	var (
		document []byte
		version  int64
	)

	err := r.db.QueryRowContext(ctx, query, id).Scan(&document, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, persistence.NewStoreError("LoadInstance", id, persistence.ErrInstanceNotFound)
	}

	if err != nil {
		return nil, 0, fmt.Errorf("failed to query instance %s: %w", id, err)
	}

	var instance models.WorkflowInstance
	if err := json.Unmarshal(document, &instance); err != nil {
		return nil, 0, fmt.Errorf("failed to decode instance %s: %w", id, err)
	}

	return &instance, version, nil
}

func (r *InstanceRepository) Save(ctx context.Context, instance *models.WorkflowInstance, expectedVersion int64) error {
	document, err := json.Marshal(instance)
	if err != nil {
		return fmt.Errorf("failed to encode instance %s: %w", instance.ID, err)
	}

	now := time.Now().UTC()

	if expectedVersion == 0 {
		insert := `
			INSERT INTO workflow_instances (id, template_id, status, version, document, created_at, updated_at)
			VALUES ($1, $2, $3, 1, $4, $5, $5)
			ON CONFLICT (id) DO NOTHING
		`

		result, err := r.db.ExecContext(ctx, insert, instance.ID, instance.TemplateID, instance.Status, document, now)
		if err != nil {
			return fmt.Errorf("failed to insert instance %s: %w", instance.ID, err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read insert result for %s: %w", instance.ID, err)
		}

		if affected == 0 {
			return persistence.NewStoreError("SaveInstance", instance.ID, persistence.ErrInstanceAlreadyExists)
		}

		return nil
	}

	update := `
		UPDATE workflow_instances
		SET status = $2
		  , version = version + 1
		  , document = $3
		  , updated_at = $4
		WHERE id = $1 AND version = $5
	`

	result, err := r.db.ExecContext(ctx, update, instance.ID, instance.Status, document, now, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to update instance %s: %w", instance.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result for %s: %w", instance.ID, err)
	}

	if affected == 0 {
		// Either the row is missing or a concurrent writer bumped the
		// version first; distinguish for the caller.
		var exists bool
		if err := r.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM workflow_instances WHERE id = $1)`, instance.ID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check instance %s: %w", instance.ID, err)
		}

		if !exists {
			return persistence.NewStoreError("SaveInstance", instance.ID, persistence.ErrInstanceNotFound)
		}

		return persistence.NewStoreError("SaveInstance", instance.ID, persistence.ErrVersionConflict)
	}

	return nil
}

func (r *InstanceRepository) List(ctx context.Context, filter persistence.InstanceFilter) ([]*models.WorkflowInstance, error) {
	query := `
		SELECT document
		FROM workflow_instances
		WHERE ($1 = '' OR status = $1)
		  AND ($2 = '' OR template_id = $2)
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, string(filter.Status), filter.TemplateID)
	if err != nil {
		return nil, fmt.Errorf("failed to query instances: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	instances := make([]*models.WorkflowInstance, 0)

	for rows.Next() {
		var document []byte
		if err := rows.Scan(&document); err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}

		var instance models.WorkflowInstance
		if err := json.Unmarshal(document, &instance); err != nil {
			return nil, fmt.Errorf("failed to decode instance: %w", err)
		}

		instances = append(instances, &instance)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating instances: %w", err)
	}

	return instances, nil
}

// Persistence interface forwarding.

func (p *Persistence) LoadInstance(ctx context.Context, id string) (*models.WorkflowInstance, int64, error) {
	return p.instanceRepo.Load(ctx, id)
}

func (p *Persistence) SaveInstance(ctx context.Context, instance *models.WorkflowInstance, expectedVersion int64) error {
	return p.instanceRepo.Save(ctx, instance, expectedVersion)
}

func (p *Persistence) Instances(ctx context.Context, filter persistence.InstanceFilter) ([]*models.WorkflowInstance, error) {
	return p.instanceRepo.List(ctx, filter)
}
