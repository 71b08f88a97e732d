package service

import (
	"context"
	"runtime"
	"time"

	"github.com/vocdoni/wispy/types"
	"golang.org/x/sync/errgroup"
)

// warmer is implemented by the backends that load circuit keys.
type warmer interface {
	Warmup(ctx context.Context, kinds ...types.Kind) error
}

// LoadCircuitKeys loads the keys of every interaction circuit concurrently,
// generating or downloading the missing ones. Backends without keys return
// at once.
func LoadCircuitKeys(backend any, timeout time.Duration) error {
	w, ok := backend.(warmer)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for _, kind := range types.Kinds() {
		g.Go(func() error {
			return w.Warmup(ctx, kind)
		})
	}
	return g.Wait()
}
