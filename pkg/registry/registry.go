// Package registry maps action kinds to their executors.
package registry

import (
	"fmt"
	"log/slog"

	"github.com/flowgate/flowgate/pkg/models"
	"github.com/flowgate/flowgate/pkg/protocol"
)

type Registry struct {
	logger    *slog.Logger
	executors map[models.ActionType]protocol.ActionExecutor
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:    logger,
		executors: make(map[models.ActionType]protocol.ActionExecutor),
	}
}

// Register installs an executor for its action kind, replacing any
// previous registration.
func (r *Registry) Register(executor protocol.ActionExecutor) {
	r.logger.Debug("Registering action executor", "kind", executor.Kind())
	r.executors[executor.Kind()] = executor
}

// ExecutorFor returns the executor registered for the given kind.
func (r *Registry) ExecutorFor(kind models.ActionType) (protocol.ActionExecutor, error) {
	executor, ok := r.executors[kind]
	if !ok {
		return nil, fmt.Errorf("action kind %q not registered", kind)
	}

	return executor, nil
}
