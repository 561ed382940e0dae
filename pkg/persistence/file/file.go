// Package file provides file-based persistence for templates and
// instances. Template documents are validated against a JSON schema
// before they are accepted, so malformed editor exports are rejected at
// save time instead of surfacing mid-run.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/flowgate/flowgate/pkg/models"
	"github.com/flowgate/flowgate/pkg/persistence"
)

type instanceDocument struct {
	Version  int64                    `json:"version"`
	Instance *models.WorkflowInstance `json:"instance"`
}

// Persistence implements persistence.Persistence on the file system.
// A single mutex serializes writes; cross-process coordination is out
// of scope for this backend.
type Persistence struct {
	root string
	mu   sync.Mutex
}

func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{root: cleanRoot}
}

func (p *Persistence) instancePath(id string) string {
	return filepath.Join(p.root, "instances", id+".json")
}

func (p *Persistence) templatePath(id string) string {
	return filepath.Join(p.root, "templates", id+".json")
}

func (p *Persistence) LoadInstance(_ context.Context, id string) (*models.WorkflowInstance, int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	doc, err := p.readInstance(id)
	if err != nil {
		return nil, 0, err
	}

	return doc.Instance, doc.Version, nil
}

func (p *Persistence) readInstance(id string) (*instanceDocument, error) {
	data, err := os.ReadFile(p.instancePath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewStoreError("LoadInstance", id, persistence.ErrInstanceNotFound)
		}

		return nil, fmt.Errorf("failed to read instance %s: %w", id, err)
	}

	var doc instanceDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode instance %s: %w", id, err)
	}

	return &doc, nil
}

func (p *Persistence) SaveInstance(_ context.Context, instance *models.WorkflowInstance, expectedVersion int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	existing, err := p.readInstance(instance.ID)

	switch {
	case expectedVersion == 0:
		if err == nil {
			return persistence.NewStoreError("SaveInstance", instance.ID, persistence.ErrInstanceAlreadyExists)
		}

		if !persistence.IsInstanceNotFound(err) {
			return err
		}
	case err != nil:
		return err
	case existing.Version != expectedVersion:
		return persistence.NewStoreError("SaveInstance", instance.ID, persistence.ErrVersionConflict)
	}

	return p.writeJSON(p.instancePath(instance.ID), instanceDocument{
		Version:  expectedVersion + 1,
		Instance: instance,
	})
}

func (p *Persistence) Instances(_ context.Context, filter persistence.InstanceFilter) ([]*models.WorkflowInstance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entries, err := os.ReadDir(filepath.Join(p.root, "instances"))
	if err != nil {
		if os.IsNotExist(err) {
			return []*models.WorkflowInstance{}, nil
		}

		return nil, fmt.Errorf("failed to list instances: %w", err)
	}

	instances := make([]*models.WorkflowInstance, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		doc, err := p.readInstance(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			return nil, err
		}

		if filter.Matches(doc.Instance) {
			instances = append(instances, doc.Instance)
		}
	}

	return instances, nil
}

func (p *Persistence) TemplateByID(_ context.Context, id string) (*models.WorkflowTemplate, error) {
	data, err := os.ReadFile(p.templatePath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewStoreError("TemplateByID", id, persistence.ErrTemplateNotFound)
		}

		return nil, fmt.Errorf("failed to read template %s: %w", id, err)
	}

	if err := validateTemplateDocument(data); err != nil {
		return nil, persistence.NewStoreError("TemplateByID", id, err)
	}

	var template models.WorkflowTemplate
	if err := json.Unmarshal(data, &template); err != nil {
		return nil, fmt.Errorf("failed to decode template %s: %w", id, err)
	}

	return &template, nil
}

func (p *Persistence) SaveTemplate(_ context.Context, template *models.WorkflowTemplate) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	data, err := json.MarshalIndent(template, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode template %s: %w", template.ID, err)
	}

	if err := validateTemplateDocument(data); err != nil {
		return persistence.NewStoreError("SaveTemplate", template.ID, err)
	}

	return p.writeFile(p.templatePath(template.ID), data)
}

func (p *Persistence) Templates(_ context.Context) ([]*models.WorkflowTemplate, error) {
	entries, err := os.ReadDir(filepath.Join(p.root, "templates"))
	if err != nil {
		if os.IsNotExist(err) {
			return []*models.WorkflowTemplate{}, nil
		}

		return nil, fmt.Errorf("failed to list templates: %w", err)
	}

	templates := make([]*models.WorkflowTemplate, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		template, err := p.TemplateByID(context.Background(), strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			return nil, err
		}

		templates = append(templates, template)
	}

	return templates, nil
}

func (p *Persistence) writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}

	return p.writeFile(path, data)
}

func (p *Persistence) writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return os.Rename(tmp, path)
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}
