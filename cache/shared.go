package cache

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultLoadTimeout bounds a load shared by concurrent callers.
const DefaultLoadTimeout = 30 * time.Second

// LoadShared runs load once per key for all callers that arrive while it is
// in flight. The load gets a context that keeps the values of ctx but not
// its cancellation, bounded by timeout, so a caller that gives up does not
// fail the ones that joined it. A caller whose ctx ends first returns its
// ctx error and leaves the load running for the others.
func LoadShared[T any](ctx context.Context, group *singleflight.Group, key string, timeout time.Duration, load func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		timeout = DefaultLoadTimeout
	}

	ch := group.DoChan(key, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		v, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		return v, nil
	})

	var zero T
	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		v, _ := res.Val.(T)
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
