package services

import (
	"context"
)

// Runner is the Run-until-canceled lifecycle shared by the audit relay
// dispatcher and the cache janitor.
type Runner interface {
	Run(ctx context.Context) error
}

// RunService wraps a Runner as a supervised service. Run is expected to
// return ctx.Err() on cancellation, which suture treats as a clean stop.
type RunService struct {
	runner Runner
	name   string
}

// NewRunService creates the wrapper.
func NewRunService(name string, runner Runner) *RunService {
	return &RunService{runner: runner, name: name}
}

// Serve implements suture.Service.
func (s *RunService) Serve(ctx context.Context) error {
	return s.runner.Run(ctx)
}

// String implements fmt.Stringer; suture uses it to identify the service.
func (s *RunService) String() string {
	return s.name
}
