// Package hexpipe spawns a child process wired through six directionally
// typed channels — interactive input/output/error, diagnostic output, and
// binary input/output — and ferries bytes on all six concurrently until the
// child exits, without deadlocking, blocking the child unexpectedly, or
// losing data on the channels that forbid loss.
//
// All six channels always exist from the child's point of view. Roles the
// caller leaves unconfigured are bound to inert sinks (immediate
// end-of-stream for inputs, drained-and-discarded for outputs) rather than
// left undrained, so the child can never block on a pipe nobody reads.
package hexpipe

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/hexpipe/hexpipe/pkg/channel"
	"github.com/hexpipe/hexpipe/pkg/drain"
	"github.com/hexpipe/hexpipe/pkg/transport"
)

// ExitStatus is the child's final status, written exactly once when
// termination is first observed.
type ExitStatus struct {
	// Code is the exit code, or -1 if the child was killed by a signal.
	Code int
	// Signaled reports whether the child died to a signal.
	Signaled bool
	// Signal is the terminating signal when Signaled is true.
	Signal syscall.Signal
}

// Process is the handle for one spawned child: the platform process, the six
// retained parent-side endpoints, and the drain workers pumping them.
type Process struct {
	cmd    *exec.Cmd
	set    *channel.Set
	engine *drain.Engine
	logger *slog.Logger

	diag       *drain.Ring
	data       *drain.Accumulator // nil when the caller supplied a data sink
	stdoutLine *drain.LineWriter
	stderrLine *drain.LineWriter

	stdinW  io.WriteCloser // caller-paced interactive input, if requested
	dataInW io.WriteCloser // caller-paced binary input, if requested

	inputSrc io.Closer // file or follow source feeding binary input

	recorder interface{ RecordExit(int) error }

	exitCh chan struct{} // closed when the monitor observes termination

	mu       sync.Mutex
	exit     ExitStatus
	waitErr  error
	reaped   bool
	chanErrs []*ChannelError
}

// Spawn starts path with args, establishing all six channels. On any error
// no child is left running and every endpoint created along the way has been
// closed.
func Spawn(path string, args []string, opts ...Option) (*Process, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	var (
		set *channel.Set
		err error
	)
	if o.pty {
		set, err = channel.NewTTYSet()
	} else {
		set, err = channel.NewSet()
	}
	if err != nil {
		return nil, &SpawnError{Kind: ChannelAllocation, Err: err}
	}

	engine := drain.NewEngine(context.Background(), logger)

	// Open the binary-input source before starting anything, so a bad path
	// fails the spawn instead of surfacing later as a channel error.
	dataSrc := o.dataIn
	var dataSrcCloser io.Closer
	if o.dataInPath != "" {
		if o.dataInFollow {
			fr, ferr := drain.OpenFollow(engine.Context(), o.dataInPath)
			if ferr != nil {
				engine.Cancel()
				set.Close()
				return nil, &SpawnError{Kind: ChannelAllocation, Err: ferr}
			}
			dataSrc, dataSrcCloser = fr, fr
		} else {
			f, ferr := os.Open(o.dataInPath)
			if ferr != nil {
				engine.Cancel()
				set.Close()
				return nil, &SpawnError{Kind: ChannelAllocation, Err: ferr}
			}
			dataSrc, dataSrcCloser = f, f
		}
	}

	cmd, err := transport.CreateAndStart(set, transport.Spec{
		Path: path,
		Args: args,
		Env:  o.env,
		Dir:  o.dir,
	})
	if err != nil {
		if dataSrcCloser != nil {
			dataSrcCloser.Close()
		}
		engine.Cancel()
		set.Close()
		return nil, err
	}
	logger.Debug("child started", "path", path, "pid", cmd.Process.Pid)

	p := &Process{
		cmd:      cmd,
		set:      set,
		engine:   engine,
		logger:   logger,
		diag:     drain.NewRing(o.diagCapacity),
		inputSrc: dataSrcCloser,
		exitCh:   make(chan struct{}),
	}
	if o.recorder != nil {
		p.recorder = o.recorder
	}

	p.wireOutputs(o)
	p.wireInputs(o, dataSrc)

	// The monitor is the single reap point: cmd.Wait operates on the child
	// handle, never a raw pid, so observing termination cannot race with
	// pid reuse.
	go func() {
		werr := cmd.Wait()
		st, serr := exitStatusFrom(werr)
		p.mu.Lock()
		p.exit = st
		p.waitErr = serr
		p.mu.Unlock()
		close(p.exitCh)
	}()

	return p, nil
}

func (p *Process) wireOutputs(o *options) {
	stdoutSink := o.stdout
	if stdoutSink == nil {
		stdoutSink = io.Discard
	}
	stderrSink := o.stderr
	if stderrSink == nil {
		stderrSink = io.Discard
	}
	p.stdoutLine = drain.NewLineWriter(stdoutSink)
	p.stderrLine = drain.NewLineWriter(stderrSink)

	var stdoutW io.Writer = p.stdoutLine
	var stderrW io.Writer = p.stderrLine
	var diagW io.Writer = p.diag

	var dataW io.Writer
	if o.dataOut != nil {
		dataW = o.dataOut
	} else {
		p.data = &drain.Accumulator{}
		dataW = p.data
	}

	if o.recorder != nil {
		stdoutW = io.MultiWriter(stdoutW, o.recorder.Sink(channel.Stdout))
		stderrW = io.MultiWriter(stderrW, o.recorder.Sink(channel.Stderr))
		diagW = io.MultiWriter(diagW, o.recorder.Sink(channel.Diag))
		dataW = io.MultiWriter(dataW, o.recorder.Sink(channel.DataOut))
	}

	p.engine.DrainOut(channel.Stdout, p.set.ParentFile(channel.Stdout), stdoutW)
	if ep := p.set.ParentFile(channel.Stderr); ep != nil {
		// In pty mode stderr is merged into stdout and has no endpoint.
		p.engine.DrainOut(channel.Stderr, ep, stderrW)
	}
	p.engine.DrainOut(channel.Diag, p.set.ParentFile(channel.Diag), diagW)
	p.engine.DrainOut(channel.DataOut, p.set.ParentFile(channel.DataOut), dataW)
}

func (p *Process) wireInputs(o *options, dataSrc io.Reader) {
	// Interactive input. In pty mode the endpoint is the shared master,
	// which the stdout drain already owns; writes ride it uncloseably.
	var stdinEp io.WriteCloser = p.set.ParentFile(channel.Stdin)
	if p.set.TTY() {
		stdinEp = nopCloseWriter{p.set.PTYMaster()}
	}
	switch {
	case o.stdinPipe:
		p.stdinW = stdinEp
	case o.stdin != nil:
		p.engine.FeedIn(channel.Stdin, o.stdin, stdinEp)
	case o.terminalStdin && term.IsTerminal(int(os.Stdin.Fd())):
		p.engine.FeedIn(channel.Stdin, os.Stdin, stdinEp)
	default:
		// No source and no terminal: immediate end-of-stream, the
		// documented default for fully automated invocations.
		stdinEp.Close()
	}

	dataEp := p.set.ParentFile(channel.DataIn)
	switch {
	case o.dataInPipe:
		p.dataInW = dataEp
	case dataSrc != nil:
		p.engine.FeedIn(channel.DataIn, dataSrc, dataEp)
	default:
		dataEp.Close()
	}
}

// Wait blocks until the child terminates and every output channel has
// drained to its sink, then returns the exit status. The status is reaped
// exactly once; later calls return the same status with ErrAlreadyReaped.
func (p *Process) Wait() (ExitStatus, error) {
	<-p.exitCh
	cerrs := p.engine.WaitOutputs()
	p.stdoutLine.Flush()
	p.stderrLine.Flush()
	p.engine.CancelInputs()
	if p.inputSrc != nil {
		p.inputSrc.Close()
	}

	p.mu.Lock()
	if p.reaped {
		st := p.exit
		p.mu.Unlock()
		return st, ErrAlreadyReaped
	}
	p.reaped = true
	p.chanErrs = cerrs
	st, werr := p.exit, p.waitErr
	p.mu.Unlock()

	if p.recorder != nil {
		_ = p.recorder.RecordExit(st.Code)
	}
	p.logger.Debug("child reaped", "pid", p.cmd.Process.Pid, "code", st.Code)
	return st, werr
}

// Signal delivers sig to the child's process group.
func (p *Process) Signal(sig os.Signal) error {
	select {
	case <-p.exitCh:
		return ErrNoSuchProcess
	default:
	}
	if err := p.signalGroup(sig); err != nil {
		switch {
		case errors.Is(err, os.ErrProcessDone), errors.Is(err, syscall.ESRCH):
			return ErrNoSuchProcess
		case errors.Is(err, syscall.EPERM):
			return ErrSignalDenied
		}
		return err
	}
	return nil
}

// IsRunning is a non-blocking liveness check.
func (p *Process) IsRunning() bool {
	select {
	case <-p.exitCh:
		return false
	default:
		return true
	}
}

// Stop requests graceful termination, escalating to a kill when ctx expires
// before the child exits. Returns once the child has terminated; the caller
// still calls Wait to reap the status and drain the channels.
func (p *Process) Stop(ctx context.Context) error {
	select {
	case <-p.exitCh:
		return nil
	default:
	}
	p.terminate()
	select {
	case <-p.exitCh:
		return nil
	case <-ctx.Done():
	}
	p.kill()
	select {
	case <-p.exitCh:
		return nil
	case <-time.After(5 * time.Second):
		return errors.New("hexpipe: child did not exit after kill")
	}
}

// Cancel tears down all drain workers independent of child exit: every
// parent-side endpoint is closed, so further child writes fail visibly in
// the child, and a worker blocked on a slow sink abandons its in-flight
// write rather than deadlocking teardown. Idempotent.
func (p *Process) Cancel() {
	p.engine.Cancel()
	if p.stdinW != nil {
		p.stdinW.Close()
	}
	if p.dataInW != nil {
		p.dataInW.Close()
	}
	if p.inputSrc != nil {
		p.inputSrc.Close()
	}
}

// PID returns the platform process identifier.
func (p *Process) PID() int { return p.cmd.Process.Pid }

// Done returns a channel closed when the child has terminated. Exit status
// becomes available through Wait.
func (p *Process) Done() <-chan struct{} { return p.exitCh }

// Stdin returns the caller-paced interactive input stream, or nil unless
// WithStdinPipe was used. Close it to send end-of-stream.
func (p *Process) Stdin() io.WriteCloser { return p.stdinW }

// DataIn returns the caller-paced binary input stream, or nil unless
// WithDataInPipe was used. Writes block when the child is not draining fast
// enough; that backpressure is caller-observable by design.
func (p *Process) DataIn() io.WriteCloser { return p.dataInW }

// DiagSnapshot returns a synchronized copy of the diagnostic ring buffer:
// the most recent bytes, oldest first. Overflow loss is silent by design.
func (p *Process) DiagSnapshot() []byte { return p.diag.Snapshot() }

// DataSnapshot returns a synchronized copy of the binary output accumulated
// so far, or nil when the caller routed binary output elsewhere with
// WithDataOut.
func (p *Process) DataSnapshot() []byte {
	if p.data == nil {
		return nil
	}
	return p.data.Snapshot()
}

// ChannelErrors returns the per-channel failures collected by the drain
// workers. Complete after Wait has returned. Channel failures never abort
// sibling channels; they are reported here as part of the aggregate outcome.
func (p *Process) ChannelErrors() []*ChannelError {
	p.mu.Lock()
	defer p.mu.Unlock()
	errs := make([]*ChannelError, len(p.chanErrs))
	copy(errs, p.chanErrs)
	return errs
}

func exitStatusFrom(werr error) (ExitStatus, error) {
	if werr == nil {
		return ExitStatus{Code: 0}, nil
	}
	var ee *exec.ExitError
	if errors.As(werr, &ee) {
		st := ExitStatus{Code: ee.ExitCode()}
		if ws, ok := ee.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			st.Signaled = true
			st.Signal = ws.Signal()
		}
		return st, nil
	}
	return ExitStatus{Code: -1}, werr
}

type nopCloseWriter struct{ io.Writer }

func (nopCloseWriter) Close() error { return nil }
