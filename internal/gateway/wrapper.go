package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/LavishGent/callgate/internal/types"
)

// Factory builds the Manager the Wrapper delegates to.
type Factory func() (*Manager, error)

// Wrapper shields callers from manager failures. The manager is built on
// first use; if construction fails, or a managed call errors or panics, the
// call goes straight to the transport instead.
type Wrapper struct {
	factory   Factory
	transport types.Transport
	logger    *slog.Logger

	once    sync.Once
	manager *Manager
	initErr error

	fallbacks atomic.Int64
}

// NewWrapper creates a Wrapper. The factory is not invoked until the first call.
func NewWrapper(factory Factory, transport types.Transport, logger *slog.Logger) *Wrapper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Wrapper{
		factory:   factory,
		transport: transport,
		logger:    logger.With("component", "wrapper"),
	}
}

func (w *Wrapper) get() (*Manager, error) {
	w.once.Do(func() {
		defer func() {
			if r := recover(); r != nil {
				w.manager = nil
				w.initErr = fmt.Errorf("%w: factory panic: %v", types.ErrManagerUnavailable, r)
			}
			if w.initErr != nil {
				w.logger.Error("Manager construction failed, using direct calls", "error", w.initErr)
			}
		}()

		if w.factory == nil {
			w.initErr = fmt.Errorf("%w: no factory", types.ErrManagerUnavailable)
			return
		}
		m, err := w.factory()
		switch {
		case err != nil:
			w.initErr = fmt.Errorf("%w: %w", types.ErrManagerUnavailable, err)
		case m == nil:
			w.initErr = fmt.Errorf("%w: factory returned nil", types.ErrManagerUnavailable)
		default:
			w.manager = m
		}
	})
	return w.manager, w.initErr
}

// SafeCall resolves spec through the manager, falling back to a direct
// transport call if the manager is unavailable, returns an error, or panics.
// A failure of the direct call is returned unchanged.
func (w *Wrapper) SafeCall(ctx context.Context, spec types.RequestSpec, opts ...types.Option) (types.Result, error) {
	spec = types.ApplyOptions(spec, opts...)

	m, err := w.get()
	if err == nil {
		res, callErr := w.managedCall(ctx, m, spec)
		if callErr == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return res, callErr
		}
		err = callErr
	}

	w.fallbacks.Add(1)
	w.logger.Debug("Falling back to direct call", "endpoint", spec.Endpoint, "action", spec.Action, "error", err)
	return w.direct(ctx, spec)
}

func (w *Wrapper) managedCall(ctx context.Context, m *Manager, spec types.RequestSpec) (res types.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Managed call panicked", "endpoint", spec.Endpoint, "action", spec.Action, "panic", r)
			res = types.Result{}
			err = fmt.Errorf("managed call panic: %v", r)
		}
	}()
	return m.Call(ctx, spec)
}

func (w *Wrapper) direct(ctx context.Context, spec types.RequestSpec) (types.Result, error) {
	resp, err := w.transport.Invoke(ctx, spec)
	if err != nil {
		return types.Result{Err: err, Source: types.SourceFallback}, err
	}
	if resp == nil {
		return types.Result{Err: types.ErrNoResponse, Source: types.SourceFallback}, types.ErrNoResponse
	}
	if !resp.Success {
		return types.Result{
			Err:    &types.RemoteError{Message: resp.Error, Retryable: resp.Retryable},
			Source: types.SourceFallback,
		}, nil
	}
	return types.Result{Success: true, Data: resp.Data, Source: types.SourceFallback}, nil
}

// SafeBatchCall runs SafeCall for every spec concurrently. Results are in
// input order; the error is the first direct-call failure, if any.
func (w *Wrapper) SafeBatchCall(ctx context.Context, specs []types.RequestSpec) ([]types.Result, error) {
	results := make([]types.Result, len(specs))

	var g errgroup.Group
	for i := range specs {
		i := i
		g.Go(func() error {
			res, err := w.SafeCall(ctx, specs[i])
			results[i] = res
			return err
		})
	}
	return results, g.Wait()
}

// ClearCache clears the manager's caches. Errors are logged, not returned.
func (w *Wrapper) ClearCache(ctx context.Context, pattern string) {
	m, err := w.get()
	if err != nil {
		return
	}
	if err := m.ClearCache(ctx, pattern); err != nil {
		w.logger.Warn("Cache clear failed", "pattern", pattern, "error", err)
	}
}

// Warmup warms the manager's caches. Errors are logged, not returned.
func (w *Wrapper) Warmup(ctx context.Context) {
	m, err := w.get()
	if err != nil {
		return
	}
	if err := m.Warmup(ctx); err != nil {
		w.logger.Warn("Warmup failed", "error", err)
	}
}

// Manager returns the underlying manager, building it if necessary.
func (w *Wrapper) Manager() (*Manager, error) {
	return w.get()
}

// Degraded reports whether the wrapper is permanently on the direct path.
func (w *Wrapper) Degraded() bool {
	_, err := w.get()
	return err != nil
}

// Fallbacks returns how many calls took the direct path.
func (w *Wrapper) Fallbacks() int64 {
	return w.fallbacks.Load()
}

// Close closes the manager if one was built. A wrapper closed before first
// use never builds one.
func (w *Wrapper) Close() error {
	w.once.Do(func() {
		w.initErr = types.ErrClosed
	})
	if w.manager == nil {
		return nil
	}
	return w.manager.Close()
}
