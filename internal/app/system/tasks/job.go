// internal/app/system/tasks/job.go
package tasks

import (
	"context"
	"time"
)

// Job is a named unit of maintenance work run on a fixed interval by
// workers.Runner.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}
