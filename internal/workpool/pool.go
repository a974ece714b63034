package workpool

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/pgshift/pgshift/internal/pgshifterrors"
)

// killSwitch is a close-once broadcast channel. Closing it is the single
// cancellation primitive of the pool and is safe to invoke any number of
// times from any goroutine.
type killSwitch struct {
	once sync.Once
	c    chan struct{}
}

func newKillSwitch() *killSwitch {
	return &killSwitch{c: make(chan struct{})}
}

func (k *killSwitch) Close() { k.once.Do(func() { close(k.c) }) }

func (k *killSwitch) Done() <-chan struct{} { return k.c }

// Pool is the handle returned by Start. It exposes the kill switch, the
// live Signals, and a Done channel that closes once the supervisor and all
// workers have terminated.
type Pool struct {
	signals *Signals
	kill    *killSwitch
	done    chan struct{}
}

// Start wires workerCount workers and one supervisor together over a shared
// work channel and reply channel, seeds the pending queue with initial, and
// returns immediately. Execution proceeds asynchronously until the queue
// drains to quiescence, finalize reports an unrecoverable condition, or the
// caller kills the pool.
//
// ctx is handed to every WorkerFunc invocation. Killing the pool does not
// cancel ctx: in-flight statements run to completion, matching the
// stop-new-dispatch-only cancellation contract.
func Start(ctx context.Context, workerCount int, initial []Item, fn WorkerFunc, finalize FinalizeFunc) (*Pool, error) {
	return StartWithCounters(ctx, workerCount, initial, nil, fn, finalize)
}

// StartWithCounters is Start with the counter map pre-seeded. It exists for
// resuming persisted work: a finalize policy that gates follow-ups on
// accumulated counters (bulk-copy coverage) needs the previous run's values
// back, or the resumed items can never trigger the gated work.
func StartWithCounters(ctx context.Context, workerCount int, initial []Item, counters map[string]int64, fn WorkerFunc, finalize FinalizeFunc) (*Pool, error) {
	if workerCount < 1 {
		return nil, errors.WithStack(&pgshifterrors.ErrInvalidArgument{
			Name:    "workerCount",
			Value:   workerCount,
			Message: "at least one worker is required",
		})
	}
	if fn == nil {
		return nil, errors.WithStack(&pgshifterrors.ErrInvalidArgument{
			Name:    "fn",
			Value:   fn,
			Message: "a worker function is required",
		})
	}
	if finalize == nil {
		return nil, errors.WithStack(&pgshifterrors.ErrInvalidArgument{
			Name:    "finalize",
			Value:   finalize,
			Message: "a finalize function is required",
		})
	}

	signals := newSignals(initial)
	signals.seedCounters(counters)
	kill := newKillSwitch()
	work := make(chan Item)
	// Buffered to workerCount so a worker can always deliver its reply,
	// even when the supervisor has already wound down.
	replies := make(chan Result, workerCount)

	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		w := &worker{
			id:      i,
			ctx:     ctx,
			work:    work,
			replies: replies,
			kill:    kill.Done(),
			fn:      fn,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.run()
		}()
	}

	sup := &supervisor{
		signals:  signals,
		work:     work,
		replies:  replies,
		kill:     kill,
		finalize: finalize,
	}

	p := &Pool{
		signals: signals,
		kill:    kill,
		done:    make(chan struct{}),
	}
	go func() {
		sup.run()
		// All supervisor exit paths close the kill switch, which releases
		// every idle worker.
		kill.Close()
		wg.Wait()
		close(p.done)
		log.WithField("landed", signals.Snapshot().Landed).Debug("work pool terminated")
	}()
	return p, nil
}

// Kill stops dispatch of new work. In-flight items run to completion and
// still-pending items move to the cancelled list. Idempotent.
func (p *Pool) Kill() { p.kill.Close() }

// Killed returns a channel closed once the pool has stopped dispatching,
// whether by quiescence, unrecoverable error, or an explicit Kill.
func (p *Pool) Killed() <-chan struct{} { return p.kill.Done() }

// Signals returns the live shared state of the pool. Reads are safe at any
// time; the returned value remains readable after the pool terminates.
func (p *Pool) Signals() *Signals { return p.signals }

// Done returns a channel closed once the supervisor and every worker have
// terminated.
func (p *Pool) Done() <-chan struct{} { return p.done }

// Wait blocks until the pool has fully terminated or ctx is cancelled.
func (p *Pool) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
