package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/singleflight"
)

type ctxKey struct{}

func TestLoadShared_FirstCallerCancelled(t *testing.T) {
	var group singleflight.Group
	started := make(chan struct{})
	release := make(chan struct{})

	load := func(ctx context.Context) (string, error) {
		close(started)
		<-release
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return ctx.Value(ctxKey{}).(string), nil
	}

	firstCtx, cancel := context.WithCancel(context.WithValue(context.Background(), ctxKey{}, "loaded"))
	firstErr := make(chan error, 1)
	go func() {
		_, err := LoadShared(firstCtx, &group, "k", time.Minute, load)
		firstErr <- err
	}()
	<-started

	secondResult := make(chan string, 1)
	secondErr := make(chan error, 1)
	go func() {
		v, err := LoadShared(context.Background(), &group, "k", time.Minute, load)
		secondResult <- v
		secondErr <- err
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	require.NoError(t, <-secondErr)
	assert.Equal(t, "loaded", <-secondResult, "the joined caller gets the value loaded under the first caller's values")
}

func TestLoadShared_TimeoutBoundsLoad(t *testing.T) {
	var group singleflight.Group

	_, err := LoadShared(context.Background(), &group, "slow", 10*time.Millisecond,
		func(ctx context.Context) (int, error) {
			<-ctx.Done()
			return 0, ctx.Err()
		})
	assert.True(t, errors.Is(err, context.DeadlineExceeded), err)
}

func TestLoadShared_ErrorsReachEveryCaller(t *testing.T) {
	var group singleflight.Group
	errBoom := errors.New("boom")

	_, err := LoadShared(context.Background(), &group, "k", 0,
		func(context.Context) (int, error) { return 0, errBoom })
	assert.ErrorIs(t, err, errBoom)
}
