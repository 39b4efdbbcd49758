package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errBoom = errors.New("boom")

func TestDo_SucceedsAfterRetries(t *testing.T) {
	asserter := assert.New(t)
	n := 0
	calls, err := Do(context.Background(), Exponential(5, time.Millisecond, 5*time.Millisecond), AlwaysError, func(ctx context.Context) error {
		n++
		if n < 3 {
			return errBoom
		}
		return nil
	})
	asserter.NoError(err)
	asserter.Equal(3, calls)
}

func TestDo_Exhausted(t *testing.T) {
	asserter := assert.New(t)
	calls, err := Do(context.Background(), Exponential(3, time.Millisecond, time.Millisecond), AlwaysError, func(ctx context.Context) error {
		return errBoom
	})
	asserter.ErrorIs(err, errBoom)
	asserter.Equal(3, calls)
}

func TestDo_NotRetryable(t *testing.T) {
	asserter := assert.New(t)
	calls, err := Do(context.Background(), Exponential(5, time.Millisecond, time.Millisecond), func(err error) bool { return false }, func(ctx context.Context) error {
		return errBoom
	})
	asserter.ErrorIs(err, errBoom)
	asserter.Equal(1, calls)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Do(ctx, Exponential(5, time.Millisecond, time.Millisecond), AlwaysError, func(ctx context.Context) error {
		return errBoom
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestJitter(t *testing.T) {
	asserter := assert.New(t)
	asserter.Equal(time.Second, Jitter(time.Second, 0))
	for i := 0; i < 20; i++ {
		d := Jitter(time.Second, 0.1)
		asserter.True(d >= time.Second && d <= 1100*time.Millisecond)
	}
}
