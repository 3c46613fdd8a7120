package drain

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hexpipe/hexpipe/pkg/channel"
)

// Engine owns the drain workers for one spawned process. Output workers and
// input workers are joined as separate structured groups: waiting for the
// child's output to drain must not wait on an input feeder that is parked in
// a read nobody will ever satisfy (a terminal, say). A worker's failure is
// recorded against its role and never cancels a sibling.
type Engine struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	out errgroup.Group
	in  errgroup.Group

	mu           sync.Mutex
	errs         []*channel.Error
	outEndpoints []io.Closer
	inEndpoints  []io.Closer

	cancelOnce   sync.Once
	cancelInOnce sync.Once
}

// NewEngine creates an engine whose workers stop when ctx is canceled or
// Cancel is called. A nil logger uses slog.Default.
func NewEngine(ctx context.Context, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	ectx, cancel := context.WithCancel(ctx)
	return &Engine{ctx: ectx, cancel: cancel, logger: logger}
}

// Context returns the engine's lifetime context. Sources that must unblock
// on Cancel (follow readers, for instance) should derive from it.
func (e *Engine) Context() context.Context { return e.ctx }

// DrainOut starts a worker pumping an out-of-child endpoint into sink. The
// engine takes ownership of src and closes it when the worker exits.
func (e *Engine) DrainOut(role channel.Role, src io.ReadCloser, sink io.Writer) {
	e.mu.Lock()
	e.outEndpoints = append(e.outEndpoints, src)
	e.mu.Unlock()

	e.out.Go(func() error {
		defer src.Close()
		if err := pumpOut(e.ctx, role, src, sink, e.logger); err != nil {
			e.record(err)
		}
		// Worker errors are isolated; never fail the group.
		return nil
	})
}

// FeedIn starts a worker copying src into an into-child endpoint. The
// endpoint is closed when src is exhausted, propagating end-of-stream to
// the child.
func (e *Engine) FeedIn(role channel.Role, src io.Reader, dst io.WriteCloser) {
	e.mu.Lock()
	e.inEndpoints = append(e.inEndpoints, dst)
	e.mu.Unlock()

	e.in.Go(func() error {
		if err := pumpIn(e.ctx, role, src, dst, e.logger); err != nil {
			e.record(err)
		}
		return nil
	})
}

// WaitOutputs joins every output worker and returns the channel errors
// collected so far. Called after child exit; by then each output endpoint
// has end-of-stream pending, so the join is bounded.
func (e *Engine) WaitOutputs() []*channel.Error {
	e.out.Wait()
	e.mu.Lock()
	defer e.mu.Unlock()
	errs := make([]*channel.Error, len(e.errs))
	copy(errs, e.errs)
	return errs
}

// CancelInputs closes the into-child endpoints, unblocking input workers
// parked in endpoint writes. A worker parked in a read of its own source
// finishes when the source yields; there is no portable way to interrupt a
// generic read, so input workers are not joined here. Idempotent.
func (e *Engine) CancelInputs() {
	e.cancelInOnce.Do(func() {
		e.mu.Lock()
		endpoints := e.inEndpoints
		e.inEndpoints = nil
		e.mu.Unlock()
		for _, c := range endpoints {
			c.Close()
		}
	})
}

// Cancel requests early termination of every worker, independent of child
// exit. All parent-side endpoints are closed, which unblocks workers parked
// in endpoint reads and makes further child writes on those channels fail
// visibly in the child. A worker blocked on a slow sink abandons its
// in-flight write rather than waiting for it. Idempotent.
func (e *Engine) Cancel() {
	e.cancelOnce.Do(func() {
		e.cancel()
		e.CancelInputs()
		e.mu.Lock()
		endpoints := e.outEndpoints
		e.outEndpoints = nil
		e.mu.Unlock()
		for _, c := range endpoints {
			c.Close()
		}
	})
}

// Wait joins every worker, output and input both. Use after Cancel for full
// teardown; after a normal child exit prefer WaitOutputs.
func (e *Engine) Wait() []*channel.Error {
	e.out.Wait()
	e.in.Wait()
	e.mu.Lock()
	defer e.mu.Unlock()
	errs := make([]*channel.Error, len(e.errs))
	copy(errs, e.errs)
	return errs
}

func (e *Engine) record(err error) {
	cerr, ok := err.(*channel.Error)
	if !ok {
		return
	}
	e.logger.Debug("channel failed", "role", cerr.Role.String(), "op", cerr.Op, "err", cerr.Err)
	e.mu.Lock()
	e.errs = append(e.errs, cerr)
	e.mu.Unlock()
}
