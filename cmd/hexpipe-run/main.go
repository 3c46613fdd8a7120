// hexpipe-run spawns a program with the full six-channel topology from the
// command line: a YAML spec file or flags pick the per-channel bindings, the
// child's interactive output streams through, and the exit code is
// propagated.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hexpipe/hexpipe"
	"github.com/hexpipe/hexpipe/pkg/config"
	"github.com/hexpipe/hexpipe/pkg/transcript"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		specPath       = flag.String("config", "", "YAML spawn spec (exclusive with a command line)")
		transcriptPath = flag.String("transcript", "", "record channel traffic to this SQLite file")
		diagCapacity   = flag.Int("diag-capacity", 0, "diagnostic ring size in bytes (0 = default)")
		dataOutPath    = flag.String("data-out", "", "write binary output to this file")
		dataInPath     = flag.String("data-in", "", "feed binary input from this file")
		stopTimeout    = flag.Duration("stop-timeout", 10*time.Second, "grace period before SIGKILL on interrupt")
		logLevel       = flag.String("log-level", "info", "debug, info, warn, or error")
		logJSON        = flag.Bool("log-json", false, "log as JSON")
	)
	flag.Parse()

	logger := newLogger(*logLevel, *logJSON)

	var opts []hexpipe.Option
	var exe string
	var args []string

	if *specPath != "" {
		spec, err := config.Load(*specPath)
		if err != nil {
			logger.Error("loading spec", "err", err)
			return 1
		}
		specOpts, closers, err := spec.Options()
		if err != nil {
			logger.Error("resolving spec", "err", err)
			return 1
		}
		defer func() {
			for _, c := range closers {
				c.Close()
			}
		}()
		opts = specOpts
		exe = spec.Exec
		args = spec.Args
		if *transcriptPath == "" {
			*transcriptPath = spec.Transcript
		}
	} else {
		if flag.NArg() == 0 {
			fmt.Fprintln(os.Stderr, "usage: hexpipe-run [flags] command [args...]")
			return 2
		}
		exe = flag.Arg(0)
		args = flag.Args()[1:]
		opts = append(opts,
			hexpipe.WithStdout(os.Stdout),
			hexpipe.WithStderr(os.Stderr),
			hexpipe.WithTerminalStdin(),
		)
		if *dataOutPath != "" {
			f, err := os.OpenFile(*dataOutPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
			if err != nil {
				logger.Error("opening data-out file", "err", err)
				return 1
			}
			defer f.Close()
			opts = append(opts, hexpipe.WithDataOut(f))
		}
		if *dataInPath != "" {
			opts = append(opts, hexpipe.WithDataInFile(*dataInPath, false))
		}
	}

	if *diagCapacity > 0 {
		opts = append(opts, hexpipe.WithDiagCapacity(*diagCapacity))
	}
	opts = append(opts, hexpipe.WithLogger(logger))

	if *transcriptPath != "" {
		rec, err := transcript.Open(*transcriptPath)
		if err != nil {
			logger.Error("opening transcript", "err", err)
			return 1
		}
		defer rec.Close()
		opts = append(opts, hexpipe.WithTranscript(rec))
	}

	p, err := hexpipe.Spawn(exe, args, opts...)
	if err != nil {
		logger.Error("spawn failed", "exe", exe, "err", err)
		return 1
	}

	// First interrupt asks the child to stop gracefully; a second one kills.
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("stopping child", "pid", p.PID())
		ctx, cancel := context.WithTimeout(context.Background(), *stopTimeout)
		defer cancel()
		if err := p.Stop(ctx); err != nil {
			logger.Warn("stop", "err", err)
		}
	}()

	status, err := p.Wait()
	signal.Stop(sigCh)
	if err != nil {
		logger.Error("wait failed", "err", err)
		return 1
	}
	for _, cerr := range p.ChannelErrors() {
		logger.Warn("channel error", "err", cerr)
	}
	if diag := p.DiagSnapshot(); len(diag) > 0 {
		logger.Debug("diagnostic tail", "bytes", len(diag))
	}
	if status.Signaled {
		logger.Info("child killed by signal", "signal", status.Signal.String())
		return 128 + int(status.Signal)
	}
	return status.Code
}

func newLogger(level string, json bool) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	h := slog.HandlerOptions{Level: l}
	if json {
		return slog.New(slog.NewJSONHandler(os.Stderr, &h))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &h))
}
