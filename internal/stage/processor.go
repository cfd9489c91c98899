// Package stage defines the contract between the scheduler and the pipeline
// stage processors.
package stage

import (
	"context"
)

// Processor is one periodically-invoked pipeline stage. Tick performs one
// scan over the processor's pending records; the scheduler guarantees
// at-most-one concurrent Tick per processor.
type Processor interface {
	Name() string
	Tick(context.Context) error
	HealthCheck(context.Context) Health
}
