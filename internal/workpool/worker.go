package workpool

import (
	"context"

	"github.com/pkg/errors"
)

type worker struct {
	id      int
	ctx     context.Context
	work    <-chan Item
	replies chan<- Result
	kill    <-chan struct{}
	fn      WorkerFunc
}

// run blocks on the work channel until the kill switch closes. Each
// received item is executed exactly once and its Result sent back to the
// supervisor.
func (w *worker) run() {
	for {
		select {
		case <-w.kill:
			return
		case item := <-w.work:
			// The reply channel is buffered to the worker count, so this
			// send never blocks even if the supervisor has already exited.
			w.replies <- w.execute(item)
		}
	}
}

func (w *worker) execute(item Item) Result {
	payload, err := invoke(w.ctx, w.fn, item)
	switch {
	case err == nil:
		return Result{Item: item, Status: StatusSuccess, Payload: payload}
	case IsTimeout(err):
		return Result{Item: item, Status: StatusTimeout, Err: err}
	default:
		return Result{Item: item, Status: StatusError, Err: err}
	}
}

// invoke runs the worker function, converting a panic into an Error outcome
// so a single bad item cannot take down the pool.
func invoke(ctx context.Context, fn WorkerFunc, item Item) (payload any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("worker panic executing %s: %v", item.Job, r)
		}
	}()
	return fn(ctx, item)
}
