package gcode

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
)

// Result is delivered once by Load.
type Result struct {
	Path string
	Job  *Job
	Err  error
}

// ReadFile interprets the program at path.
func ReadFile(ctx context.Context, path string, opt Options, log *zap.Logger) (*Job, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	job, err := NewInterpreter(opt, log).Run(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("interpret %s: %w", path, err)
	}
	return job, nil
}

// Load interprets the program at path on its own goroutine. The returned
// channel receives exactly one Result and is then closed.
func Load(ctx context.Context, path string, opt Options, log *zap.Logger) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		defer close(ch)
		if log == nil {
			log = zap.NewNop()
		}
		log.Info("gcode reader starting", zap.String("file", path))
		job, err := ReadFile(ctx, path, opt, log)
		if err != nil {
			log.Warn("gcode reader failed", zap.String("file", path), zap.Error(err))
		} else {
			log.Info("job paths ready",
				zap.String("file", path),
				zap.Int("segments", len(job.Segments)),
				zap.Duration("estimate", job.EstimatedTime()),
			)
		}
		ch <- Result{Path: path, Job: job, Err: err}
	}()
	return ch
}
