package poll

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunSucceedsOnKthTick(t *testing.T) {
	var calls int32
	fetch := func(context.Context) (any, error) {
		return int(atomic.AddInt32(&calls, 1)), nil
	}
	classify := func(v any) Outcome {
		if v.(int) >= 3 {
			return Succeed(v)
		}
		return Continue()
	}

	var succeeded any
	p := Poller{Interval: 5 * time.Millisecond, MaxAttempts: 30}
	p.Run(context.Background(), fetch, classify, Callbacks{
		OnSucceed: func(v any) { succeeded = v },
		OnFail:    func(any) { t.Fatal("unexpected fail") },
		OnTimeout: func() { t.Fatal("unexpected timeout") },
		OnError:   func(err error) { t.Fatalf("unexpected error: %v", err) },
	})

	require.Equal(t, 3, succeeded)
	require.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestRunFailureStopsLoop(t *testing.T) {
	fetch := func(context.Context) (any, error) { return "declined", nil }
	classify := func(v any) Outcome { return Fail(v) }

	var failed any
	p := Poller{Interval: 5 * time.Millisecond, MaxAttempts: 30}
	p.Run(context.Background(), fetch, classify, Callbacks{
		OnFail:    func(v any) { failed = v },
		OnSucceed: func(any) { t.Fatal("unexpected success") },
		OnTimeout: func() { t.Fatal("unexpected timeout") },
	})

	require.Equal(t, "declined", failed)
}

func TestRunExhaustsAttemptBudget(t *testing.T) {
	var calls int32
	fetch := func(context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		return nil, nil
	}
	classify := func(any) Outcome { return Continue() }

	timeouts := 0
	p := Poller{Interval: 5 * time.Millisecond, MaxAttempts: 5}
	p.Run(context.Background(), fetch, classify, Callbacks{
		OnTimeout: func() { timeouts++ },
		OnSucceed: func(any) { t.Fatal("unexpected success") },
		OnFail:    func(any) { t.Fatal("unexpected fail") },
	})

	require.Equal(t, 1, timeouts)
	require.EqualValues(t, 5, atomic.LoadInt32(&calls))
}

func TestRunCancellationFiresNoCallback(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	fetch := func(context.Context) (any, error) { return nil, nil }
	classify := func(any) Outcome { return Continue() }

	p := Poller{Interval: 5 * time.Millisecond, MaxAttempts: 1000}
	p.Run(ctx, fetch, classify, Callbacks{
		OnSucceed: func(any) { t.Fatal("unexpected success") },
		OnFail:    func(any) { t.Fatal("unexpected fail") },
		OnTimeout: func() { t.Fatal("unexpected timeout") },
		OnError:   func(err error) { t.Fatalf("unexpected error: %v", err) },
	})
}

func TestRunFetchErrorIsTerminal(t *testing.T) {
	boom := errors.New("status endpoint unreachable")
	var calls int32
	fetch := func(context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		return nil, boom
	}
	classify := func(any) Outcome { return Continue() }

	var got error
	p := Poller{Interval: 5 * time.Millisecond, MaxAttempts: 30}
	p.Run(context.Background(), fetch, classify, Callbacks{
		OnError:   func(err error) { got = err },
		OnTimeout: func() { t.Fatal("unexpected timeout") },
	})

	require.ErrorIs(t, got, boom)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestRunSlowFetchIsNotRunConcurrently(t *testing.T) {
	var calls int32
	fetch := func(context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(60 * time.Millisecond)
		return "settled", nil
	}
	classify := func(v any) Outcome { return Succeed(v) }

	var succeeded any
	p := Poller{Interval: 10 * time.Millisecond, MaxAttempts: 1}
	p.Run(context.Background(), fetch, classify, Callbacks{
		OnSucceed: func(v any) { succeeded = v },
		OnTimeout: func() { t.Fatal("pending fetch result must decide the session") },
	})

	// Ticks keep firing while the single fetch is in flight; none of them
	// may start a second fetch, and the late result still lands.
	require.Equal(t, "settled", succeeded)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestRunSkippedTicksConsumeAttempts(t *testing.T) {
	var calls int32
	fetch := func(context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(80 * time.Millisecond)
		return nil, nil
	}
	classify := func(any) Outcome { return Continue() }

	timeouts := 0
	p := Poller{Interval: 10 * time.Millisecond, MaxAttempts: 2}
	p.Run(context.Background(), fetch, classify, Callbacks{
		OnTimeout: func() { timeouts++ },
		OnSucceed: func(any) { t.Fatal("unexpected success") },
	})

	require.Equal(t, 1, timeouts)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
}
