// Package dashboard implements the end-user and admin ticket dashboards:
// fetch, client-side filtering, push plus poll refresh and optimistic updates.
package dashboard

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// reconciler serializes refreshes. Triggers arriving while a fetch runs
// collapse into a single follow-up fetch.
type reconciler struct {
	fetch   func(context.Context) error
	logger  *zap.Logger
	trigger chan struct{}

	once   sync.Once
	cancel context.CancelFunc
	done   chan struct{}
}

func newReconciler(fetch func(context.Context) error, logger *zap.Logger) *reconciler {
	return &reconciler{
		fetch:   fetch,
		logger:  logger,
		trigger: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Trigger requests a refresh without blocking.
func (r *reconciler) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

func (r *reconciler) start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	go r.run(ctx)
}

func (r *reconciler) run(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.trigger:
			if err := r.fetch(ctx); err != nil && ctx.Err() == nil {
				r.logger.Warn("dashboard refresh failed", zap.Error(err))
			}
		}
	}
}

// stop cancels the loop and waits for an in-flight fetch to return.
func (r *reconciler) stop() {
	r.once.Do(func() {
		if r.cancel == nil {
			close(r.done)
			return
		}
		r.cancel()
		<-r.done
	})
}
