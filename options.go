package hexpipe

import (
	"io"
	"log/slog"

	"github.com/hexpipe/hexpipe/pkg/transcript"
)

// Option configures a spawn.
type Option func(*options)

type options struct {
	env []string
	dir string

	stdin         io.Reader
	terminalStdin bool
	stdinPipe     bool
	stdout        io.Writer
	stderr        io.Writer

	diagCapacity int

	dataIn       io.Reader
	dataInPath   string
	dataInFollow bool
	dataInPipe   bool
	dataOut      io.Writer

	pty      bool
	logger   *slog.Logger
	recorder *transcript.Recorder
}

// WithEnv sets the child environment ("key=value" entries). Nil inherits
// the parent's environment.
func WithEnv(env []string) Option {
	return func(o *options) { o.env = env }
}

// WithDir sets the child's working directory.
func WithDir(dir string) Option {
	return func(o *options) { o.dir = dir }
}

// WithStdin pumps r into the child's interactive input until EOF, then
// closes the channel so the child sees end-of-stream.
func WithStdin(r io.Reader) Option {
	return func(o *options) { o.stdin = r }
}

// WithTerminalStdin wires the parent's own stdin into the child's
// interactive input, but only when the parent's stdin is a terminal.
// Without a terminal this behaves like the default: immediate end-of-stream.
func WithTerminalStdin() Option {
	return func(o *options) { o.terminalStdin = true }
}

// WithStdinPipe keeps the interactive input open and exposes it through
// Process.Stdin for caller-paced writes. The caller must close it to send
// end-of-stream.
func WithStdinPipe() Option {
	return func(o *options) { o.stdinPipe = true }
}

// WithStdout sets the display sink for interactive output. Complete lines
// are forwarded as they arrive; a trailing partial line is flushed when the
// channel drains. Nil discards.
func WithStdout(w io.Writer) Option {
	return func(o *options) { o.stdout = w }
}

// WithStderr sets the display sink for interactive error output. Nil
// discards.
func WithStderr(w io.Writer) Option {
	return func(o *options) { o.stderr = w }
}

// WithDiagCapacity sets the diagnostic ring buffer size in bytes. The ring
// keeps the most recent bytes and drops the oldest on overflow; it never
// blocks the child.
func WithDiagCapacity(n int) Option {
	return func(o *options) { o.diagCapacity = n }
}

// WithDataIn pumps r into the child's binary input until EOF.
func WithDataIn(r io.Reader) Option {
	return func(o *options) { o.dataIn = r }
}

// WithDataInFile feeds the child's binary input from a file. With follow
// set, the file is tailed as it grows instead of stopping at its current
// end.
func WithDataInFile(path string, follow bool) Option {
	return func(o *options) {
		o.dataInPath = path
		o.dataInFollow = follow
	}
}

// WithDataInPipe keeps the binary input open and exposes it through
// Process.DataIn for caller-paced writes.
func WithDataInPipe() Option {
	return func(o *options) { o.dataInPipe = true }
}

// WithDataOut sends the child's binary output to w instead of the built-in
// accumulator. No data is lost: a slow w stalls the drain, fills the pipe,
// and blocks the child's writes until w catches up.
func WithDataOut(w io.Writer) Option {
	return func(o *options) { o.dataOut = w }
}

// WithPTY backs the three interactive channels with a pseudo-terminal
// instead of pipes. Interactive error output is merged into interactive
// output, as terminals do. The data and diagnostic channels stay pipes.
// Unix only.
func WithPTY() Option {
	return func(o *options) { o.pty = true }
}

// WithLogger sets the logger for worker lifecycle events. Nil uses
// slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithTranscript records every drained chunk to rec. The caller owns the
// recorder and closes it after Wait.
func WithTranscript(rec *transcript.Recorder) Option {
	return func(o *options) { o.recorder = rec }
}
