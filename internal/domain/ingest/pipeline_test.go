package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetryBackoffRetriesOnlyTemporary(t *testing.T) {
	attempts := 0
	err := retryBackoff(context.Background(), 3, time.Millisecond, func() error {
		attempts++
		if attempts < 3 {
			return Temporary("transient", errors.New("boom"))
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}

func TestRetryBackoffStopsOnPermanent(t *testing.T) {
	attempts := 0
	err := retryBackoff(context.Background(), 5, time.Millisecond, func() error {
		attempts++
		return Permanent("fatal", errors.New("nope"))
	})
	require.Error(t, err)
	require.Equal(t, 1, attempts)
}

func TestRetryBackoffExhaustsAttempts(t *testing.T) {
	attempts := 0
	err := retryBackoff(context.Background(), 2, time.Millisecond, func() error {
		attempts++
		return Temporary("still down", errors.New("down"))
	})
	require.Error(t, err)
	require.Equal(t, 2, attempts)
}

func TestSemaphoreBoundsConcurrency(t *testing.T) {
	sem := newSemaphore(2)
	ctx := context.Background()
	require.NoError(t, sem.acquire(ctx))
	require.NoError(t, sem.acquire(ctx))

	acquired := make(chan struct{})
	go func() {
		require.NoError(t, sem.acquire(ctx))
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("third acquire should have blocked while two are held")
	case <-time.After(20 * time.Millisecond):
	}

	sem.release()
	<-acquired
}
