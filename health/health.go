package health

import "context"

// ReadinessCheck is implemented by stores that can report whether their
// backing service is reachable.
type ReadinessCheck interface {
	IsReady(ctx context.Context) error
	Name() string
}
