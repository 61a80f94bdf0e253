package mock

import (
	"context"

	"github.com/fluxcd/rollout/pkg/cluster"
)

// Mock is a cluster.Runtime implementation whose behaviour is
// supplied per test via function fields.
type Mock struct {
	ObserveFunc func(ctx context.Context) (cluster.LiveState, error)
	ApplyFunc   func(ctx context.Context, action cluster.Action) error
	PingFunc    func(ctx context.Context) error
}

var _ cluster.Runtime = &Mock{}

func (m *Mock) Observe(ctx context.Context) (cluster.LiveState, error) {
	return m.ObserveFunc(ctx)
}

func (m *Mock) Apply(ctx context.Context, action cluster.Action) error {
	return m.ApplyFunc(ctx, action)
}

func (m *Mock) Ping(ctx context.Context) error {
	if m.PingFunc == nil {
		return nil
	}
	return m.PingFunc(ctx)
}
