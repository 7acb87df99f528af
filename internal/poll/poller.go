// Package poll provides a fixed-cadence, bounded-attempt status poller. Ticks
// are wall-clock paced rather than completion paced, which bounds worst-case
// wall time to interval times max attempts regardless of per-call latency.
package poll

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/gatepay/embedded-checkout/internal/obs"
)

// Decision classifies a fetched value.
type Decision int

const (
	// DecisionContinue keeps the loop ticking.
	DecisionContinue Decision = iota
	// DecisionSucceed terminates the loop successfully.
	DecisionSucceed
	// DecisionFail terminates the loop with a failure.
	DecisionFail
)

// Outcome is the classifier's verdict for one fetched value.
type Outcome struct {
	Decision Decision
	Value    any
}

// Continue keeps polling.
func Continue() Outcome { return Outcome{Decision: DecisionContinue} }

// Succeed stops the loop and delivers the value to OnSucceed.
func Succeed(v any) Outcome { return Outcome{Decision: DecisionSucceed, Value: v} }

// Fail stops the loop and delivers the value to OnFail.
func Fail(v any) Outcome { return Outcome{Decision: DecisionFail, Value: v} }

// Callbacks receive the single terminal outcome of a poll session. Exactly one
// of them fires per Run, and none fires when the context is cancelled first.
type Callbacks struct {
	OnSucceed func(any)
	OnFail    func(any)
	// OnTimeout fires when the attempt budget is exhausted without a
	// terminal classification.
	OnTimeout func()
	// OnError fires when the fetch itself fails. The loop stops without
	// retrying the tick.
	OnError func(error)
}

// Poller repeatedly invokes a fetch function on a fixed interval, feeding each
// result to a classifier, for at most MaxAttempts ticks.
type Poller struct {
	Interval    time.Duration
	MaxAttempts int
	Logger      zerolog.Logger
}

// Run drives the poll loop until a terminal outcome or context cancellation.
// A tick that fires while the previous fetch is still in flight is skipped but
// still consumes an attempt, so overlapping fetches never run concurrently and
// the wall-clock budget holds.
func (p Poller) Run(ctx context.Context, fetch func(context.Context) (any, error), classify func(any) Outcome, cb Callbacks) {
	interval := p.Interval
	if interval <= 0 {
		interval = time.Second
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 30
	}

	type fetchResult struct {
		value any
		err   error
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	results := make(chan fetchResult, 1)
	attempts := 0
	inFlight := false

	for {
		select {
		case <-ctx.Done():
			p.Logger.Debug().Int("attempts", attempts).Msg("poll cancelled")
			return

		case res := <-results:
			inFlight = false
			if res.err != nil {
				p.tick("error")
				p.finish("error")
				if cb.OnError != nil {
					cb.OnError(res.err)
				}
				return
			}
			outcome := classify(res.value)
			switch outcome.Decision {
			case DecisionSucceed:
				p.tick("succeed")
				p.finish("succeed")
				if cb.OnSucceed != nil {
					cb.OnSucceed(outcome.Value)
				}
				return
			case DecisionFail:
				p.tick("fail")
				p.finish("fail")
				if cb.OnFail != nil {
					cb.OnFail(outcome.Value)
				}
				return
			}
			p.tick("continue")
			if attempts >= maxAttempts {
				p.finish("timeout")
				if cb.OnTimeout != nil {
					cb.OnTimeout()
				}
				return
			}

		case <-ticker.C:
			if attempts >= maxAttempts {
				if inFlight {
					// Last fetch still pending; its result decides.
					continue
				}
				p.finish("timeout")
				if cb.OnTimeout != nil {
					cb.OnTimeout()
				}
				return
			}
			attempts++
			if inFlight {
				p.tick("skipped")
				continue
			}
			inFlight = true
			go func() {
				value, err := fetch(ctx)
				results <- fetchResult{value: value, err: err}
			}()
		}
	}
}

func (p Poller) tick(result string) {
	if obs.PollTicksTotal != nil {
		obs.PollTicksTotal.WithLabelValues(result).Inc()
	}
}

func (p Poller) finish(outcome string) {
	if obs.PollSessionsTotal != nil {
		obs.PollSessionsTotal.WithLabelValues(outcome).Inc()
	}
}
