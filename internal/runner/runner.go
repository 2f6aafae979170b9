package runner

import (
	"context"
	"fmt"

	"kernelboard/internal/apperr"
	"kernelboard/model"
)

// Runner executes one submission against one target and returns the raw
// output text. Calls are independent: no ordering or isolation guarantee
// between concurrent runs, and one call's failure says nothing about its
// siblings.
type Runner interface {
	Run(ctx context.Context, job model.RunJob) (string, error)
}

// Registry maps backend kinds to their runner implementation.
type Registry struct {
	runners map[model.BackendKind]Runner
}

func NewRegistry() *Registry {
	return &Registry{runners: make(map[model.BackendKind]Runner)}
}

func (r *Registry) Register(kind model.BackendKind, runner Runner) {
	r.runners[kind] = runner
}

func (r *Registry) Get(kind model.BackendKind) (Runner, error) {
	runner, ok := r.runners[kind]
	if !ok {
		return nil, fmt.Errorf("%w: no runner registered for backend %q", apperr.ErrRunnerFailed, kind)
	}
	return runner, nil
}
