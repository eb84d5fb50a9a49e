// Package testutil provides configurable test fakes for gateway interfaces.
package testutil

import (
	"context"
	"encoding/json"
	"sync"

	gateway "github.com/mediagate/mediagate/internal"
)

// QueryCall records one Execute invocation.
type QueryCall struct {
	Name string
	Vars map[string]any
}

// FakeQueryService is a configurable gateway.QueryService for testing.
type FakeQueryService struct {
	ExecuteFn func(ctx context.Context, name string, vars map[string]any) (json.RawMessage, error)

	mu    sync.Mutex
	calls []QueryCall
}

// RespondWith returns a FakeQueryService that answers every query with raw.
func RespondWith(raw string) *FakeQueryService {
	return &FakeQueryService{
		ExecuteFn: func(context.Context, string, map[string]any) (json.RawMessage, error) {
			return json.RawMessage(raw), nil
		},
	}
}

// FailWith returns a FakeQueryService that fails every query with err.
func FailWith(err error) *FakeQueryService {
	return &FakeQueryService{
		ExecuteFn: func(context.Context, string, map[string]any) (json.RawMessage, error) {
			return nil, err
		},
	}
}

// Execute records the call and delegates to ExecuteFn.
func (f *FakeQueryService) Execute(ctx context.Context, name string, vars map[string]any) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, QueryCall{Name: name, Vars: vars})
	f.mu.Unlock()
	if f.ExecuteFn != nil {
		return f.ExecuteFn(ctx, name, vars)
	}
	return nil, gateway.ErrUnavailable
}

// Calls returns a copy of the recorded calls.
func (f *FakeQueryService) Calls() []QueryCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]QueryCall, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallCount returns the number of Execute invocations.
func (f *FakeQueryService) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}
