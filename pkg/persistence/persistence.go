// Package persistence provides the storage abstraction the engine
// commits instance state through.
package persistence

import (
	"context"

	"github.com/flowgate/flowgate/pkg/models"
)

// InstanceFilter narrows instance listings. Zero values match
// everything.
type InstanceFilter struct {
	Status     models.InstanceStatus
	TemplateID string
}

// Matches reports whether an instance passes the filter.
func (f InstanceFilter) Matches(instance *models.WorkflowInstance) bool {
	if f.Status != "" && instance.Status != f.Status {
		return false
	}

	if f.TemplateID != "" && instance.TemplateID != f.TemplateID {
		return false
	}

	return true
}

// InstanceStore is the single shared mutable resource of the engine.
// SaveInstance is an optimistic-concurrency write: it fails with
// ErrVersionConflict when expectedVersion no longer matches the stored
// version, making lost updates impossible. expectedVersion 0 creates
// the instance and fails if it already exists.
type InstanceStore interface {
	LoadInstance(ctx context.Context, id string) (*models.WorkflowInstance, int64, error)
	SaveInstance(ctx context.Context, instance *models.WorkflowInstance, expectedVersion int64) error
	Instances(ctx context.Context, filter InstanceFilter) ([]*models.WorkflowInstance, error)
}

// TemplateStore holds immutable-per-version template definitions.
type TemplateStore interface {
	TemplateByID(ctx context.Context, id string) (*models.WorkflowTemplate, error)
	SaveTemplate(ctx context.Context, template *models.WorkflowTemplate) error
	Templates(ctx context.Context) ([]*models.WorkflowTemplate, error)
}

type Persistence interface {
	InstanceStore
	TemplateStore

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
