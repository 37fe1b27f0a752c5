package lab

import "context"

// Service is the command-facing surface of the lab workflows.
type Service interface {
	Up(ctx context.Context) error
	Down(ctx context.Context, runID string, assumeYes bool) error
	List(ctx context.Context) error
}

var _ Service = (*Handler)(nil)

// ServiceFactory defers provider construction until flags and environment
// have been resolved.
type ServiceFactory func(ctx context.Context) (Service, error)
