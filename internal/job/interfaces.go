package job

import "context"

// Handler executes one job of a given mode. Implementations must return exactly
// one outcome per call and honour ctx cancellation where they can.
type Handler interface {
	Run(ctx context.Context, d Descriptor) (Result, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, d Descriptor) (Result, error)

// Run calls f.
func (f HandlerFunc) Run(ctx context.Context, d Descriptor) (Result, error) {
	return f(ctx, d)
}
