package lock

import (
	"context"
	"time"
)

// emptyProvider grants every request and holds nothing.
type emptyProvider struct{}

func (emptyProvider) Acquire(_ context.Context, name string, _ ...AcquireOption) (*Handle, error) {
	return NewHandle(name, "", emptyProvider{}), nil
}
func (emptyProvider) IsLocked(context.Context, string) (bool, error)             { return false, nil }
func (emptyProvider) Release(context.Context, string, string) error              { return nil }
func (emptyProvider) Renew(context.Context, string, string, time.Duration) error { return nil }

// Empty is a Provider that never contends. Handlers that need no mutual
// exclusion lock through it.
var Empty Provider = emptyProvider{}

// EmptyHandle returns a held Handle backed by Empty.
func EmptyHandle(name string) *Handle {
	return NewHandle(name, "", Empty)
}
