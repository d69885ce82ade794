package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// stage is one named step of an ordered task pipeline.
type stage struct {
	name string
	run  func(ctx context.Context) error
}

// pipeline runs stages in order under a single context. The first failing or
// cancelled stage stops the run.
type pipeline struct {
	name   string
	stages []stage
	logger *slog.Logger
}

func (p pipeline) run(ctx context.Context) error {
	for _, st := range p.stages {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: %s: %w", p.name, st.name, err)
		}
		started := time.Now()
		if err := st.run(ctx); err != nil {
			p.logger.ErrorContext(ctx, "pipeline stage failed",
				"pipeline", p.name,
				"stage", st.name,
				"error", err,
				"error_kind", ErrorKind(err),
			)
			return fmt.Errorf("%s: %s: %w", p.name, st.name, err)
		}
		p.logger.DebugContext(ctx, "pipeline stage completed",
			"pipeline", p.name,
			"stage", st.name,
			"duration_ms", time.Since(started).Milliseconds(),
		)
	}
	return nil
}
