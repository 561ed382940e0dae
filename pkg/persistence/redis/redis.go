// Package redis provides a Redis-backed store. Instance writes use
// WATCH/MULTI optimistic transactions so the compare-and-swap contract
// holds across processes.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	redis "github.com/redis/go-redis/v9"

	"github.com/flowgate/flowgate/pkg/models"
	"github.com/flowgate/flowgate/pkg/persistence"
)

const (
	instanceKeyPrefix = "flowgate:instance:"
	instanceIndexKey  = "flowgate:instances"
	templateKeyPrefix = "flowgate:template:"
	templateIndexKey  = "flowgate:templates"

	// watchRetries bounds how often a save is retried when the watched
	// key changes mid-transaction.
	watchRetries = 10
)

type instanceDocument struct {
	Version  int64                    `json:"version"`
	Instance *models.WorkflowInstance `json:"instance"`
}

type Persistence struct {
	client *redis.Client
	logger *slog.Logger
}

func NewPersistence(url string, logger *slog.Logger) (*Persistence, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	return &Persistence{
		client: redis.NewClient(opts),
		logger: logger,
	}, nil
}

func (p *Persistence) LoadInstance(ctx context.Context, id string) (*models.WorkflowInstance, int64, error) {
	data, err := p.client.Get(ctx, instanceKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, 0, persistence.NewStoreError("LoadInstance", id, persistence.ErrInstanceNotFound)
	}

	if err != nil {
		return nil, 0, fmt.Errorf("failed to load instance %s: %w", id, err)
	}

	var doc instanceDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, 0, fmt.Errorf("failed to decode instance %s: %w", id, err)
	}

	return doc.Instance, doc.Version, nil
}

func (p *Persistence) SaveInstance(ctx context.Context, instance *models.WorkflowInstance, expectedVersion int64) error {
	key := instanceKeyPrefix + instance.ID

	txf := func(tx *redis.Tx) error {
		current := int64(0)

		data, err := tx.Get(ctx, key).Bytes()

		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return fmt.Errorf("failed to read instance %s: %w", instance.ID, err)
		default:
			var doc instanceDocument
			if err := json.Unmarshal(data, &doc); err != nil {
				return fmt.Errorf("failed to decode instance %s: %w", instance.ID, err)
			}

			current = doc.Version
		}

		switch {
		case expectedVersion == 0 && current != 0:
			return persistence.NewStoreError("SaveInstance", instance.ID, persistence.ErrInstanceAlreadyExists)
		case expectedVersion != 0 && current == 0:
			return persistence.NewStoreError("SaveInstance", instance.ID, persistence.ErrInstanceNotFound)
		case expectedVersion != 0 && current != expectedVersion:
			return persistence.NewStoreError("SaveInstance", instance.ID, persistence.ErrVersionConflict)
		}

		payload, err := json.Marshal(instanceDocument{Version: expectedVersion + 1, Instance: instance})
		if err != nil {
			return fmt.Errorf("failed to encode instance %s: %w", instance.ID, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			pipe.SAdd(ctx, instanceIndexKey, instance.ID)

			return nil
		})

		return err
	}

	for attempt := 0; attempt < watchRetries; attempt++ {
		err := p.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			p.logger.DebugContext(ctx, "Instance save raced a concurrent writer, retrying watch",
				"instance_id", instance.ID, "attempt", attempt+1)

			continue
		}

		return err
	}

	return persistence.NewStoreError("SaveInstance", instance.ID, persistence.ErrVersionConflict)
}

func (p *Persistence) Instances(ctx context.Context, filter persistence.InstanceFilter) ([]*models.WorkflowInstance, error) {
	ids, err := p.client.SMembers(ctx, instanceIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}

	instances := make([]*models.WorkflowInstance, 0, len(ids))

	for _, id := range ids {
		instance, _, err := p.LoadInstance(ctx, id)
		if err != nil {
			if persistence.IsInstanceNotFound(err) {
				continue
			}

			return nil, err
		}

		if filter.Matches(instance) {
			instances = append(instances, instance)
		}
	}

	return instances, nil
}

func (p *Persistence) TemplateByID(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	data, err := p.client.Get(ctx, templateKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, persistence.NewStoreError("TemplateByID", id, persistence.ErrTemplateNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load template %s: %w", id, err)
	}

	var template models.WorkflowTemplate
	if err := json.Unmarshal(data, &template); err != nil {
		return nil, fmt.Errorf("failed to decode template %s: %w", id, err)
	}

	return &template, nil
}

func (p *Persistence) SaveTemplate(ctx context.Context, template *models.WorkflowTemplate) error {
	payload, err := json.Marshal(template)
	if err != nil {
		return fmt.Errorf("failed to encode template %s: %w", template.ID, err)
	}

	_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, templateKeyPrefix+template.ID, payload, 0)
		pipe.SAdd(ctx, templateIndexKey, template.ID)

		return nil
	})

	return err
}

func (p *Persistence) Templates(ctx context.Context) ([]*models.WorkflowTemplate, error) {
	ids, err := p.client.SMembers(ctx, templateIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}

	templates := make([]*models.WorkflowTemplate, 0, len(ids))

	for _, id := range ids {
		template, err := p.TemplateByID(ctx, id)
		if err != nil {
			if persistence.IsTemplateNotFound(err) {
				continue
			}

			return nil, err
		}

		templates = append(templates, template)
	}

	return templates, nil
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func (p *Persistence) Close(_ context.Context) error {
	return p.client.Close()
}
