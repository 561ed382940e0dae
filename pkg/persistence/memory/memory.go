// Package memory provides an in-process store, used by tests and by
// embedders that manage durability themselves.
package memory

import (
	"context"
	"sync"

	"github.com/flowgate/flowgate/pkg/models"
	"github.com/flowgate/flowgate/pkg/persistence"
)

type versionedInstance struct {
	instance *models.WorkflowInstance
	version  int64
}

type Persistence struct {
	mu        sync.RWMutex
	instances map[string]versionedInstance
	templates map[string]*models.WorkflowTemplate
}

func NewPersistence() *Persistence {
	return &Persistence{
		instances: make(map[string]versionedInstance),
		templates: make(map[string]*models.WorkflowTemplate),
	}
}

func (p *Persistence) LoadInstance(_ context.Context, id string) (*models.WorkflowInstance, int64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	entry, ok := p.instances[id]
	if !ok {
		return nil, 0, persistence.NewStoreError("LoadInstance", id, persistence.ErrInstanceNotFound)
	}

	return entry.instance.Clone(), entry.version, nil
}

func (p *Persistence) SaveInstance(_ context.Context, instance *models.WorkflowInstance, expectedVersion int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, exists := p.instances[instance.ID]

	if expectedVersion == 0 {
		if exists {
			return persistence.NewStoreError("SaveInstance", instance.ID, persistence.ErrInstanceAlreadyExists)
		}

		p.instances[instance.ID] = versionedInstance{instance: instance.Clone(), version: 1}

		return nil
	}

	if !exists {
		return persistence.NewStoreError("SaveInstance", instance.ID, persistence.ErrInstanceNotFound)
	}

	if entry.version != expectedVersion {
		return persistence.NewStoreError("SaveInstance", instance.ID, persistence.ErrVersionConflict)
	}

	p.instances[instance.ID] = versionedInstance{instance: instance.Clone(), version: expectedVersion + 1}

	return nil
}

func (p *Persistence) Instances(_ context.Context, filter persistence.InstanceFilter) ([]*models.WorkflowInstance, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*models.WorkflowInstance, 0, len(p.instances))

	for _, entry := range p.instances {
		if filter.Matches(entry.instance) {
			out = append(out, entry.instance.Clone())
		}
	}

	return out, nil
}

func (p *Persistence) TemplateByID(_ context.Context, id string) (*models.WorkflowTemplate, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	template, ok := p.templates[id]
	if !ok {
		return nil, persistence.NewStoreError("TemplateByID", id, persistence.ErrTemplateNotFound)
	}

	return template, nil
}

func (p *Persistence) SaveTemplate(_ context.Context, template *models.WorkflowTemplate) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.templates[template.ID] = template

	return nil
}

func (p *Persistence) Templates(_ context.Context) ([]*models.WorkflowTemplate, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*models.WorkflowTemplate, 0, len(p.templates))
	for _, template := range p.templates {
		out = append(out, template)
	}

	return out, nil
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}
