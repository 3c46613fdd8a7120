// Package config loads spawn specifications from YAML files and resolves
// them into spawn options: the program to run and the per-role sink and
// source bindings for its six channels.
package config

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hexpipe/hexpipe"
)

// Spec is one spawn specification.
type Spec struct {
	Exec string   `yaml:"exec"`
	Args []string `yaml:"args"`
	Env  []string `yaml:"env"`
	Dir  string   `yaml:"dir"`

	Channels   Channels `yaml:"channels"`
	Transcript string   `yaml:"transcript"`
	PTY        bool     `yaml:"pty"`
}

// Channels binds each role to a source or sink. Unbound roles keep their
// defaults: inputs see immediate end-of-stream, outputs drain to discard
// (or the built-in buffers for diag and data-out).
type Channels struct {
	Stdin   Input  `yaml:"stdin"`
	Stdout  Output `yaml:"stdout"`
	Stderr  Output `yaml:"stderr"`
	Diag    Diag   `yaml:"diag"`
	DataIn  Input  `yaml:"data_in"`
	DataOut Output `yaml:"data_out"`
}

// Input configures an into-child role.
//
// Source is one of:
//   - "" or "none": immediate end-of-stream
//   - "terminal": the parent's stdin, when it is a terminal
//   - "file": read Path (Follow tails it as it grows)
type Input struct {
	Source string `yaml:"source"`
	Path   string `yaml:"path"`
	Follow bool   `yaml:"follow"`
}

// Output configures an out-of-child role.
//
// Sink is one of:
//   - "" or "discard": drain and drop (data-out instead accumulates)
//   - "inherit": the parent's own stdout/stderr
//   - "file": append to Path
type Output struct {
	Sink string `yaml:"sink"`
	Path string `yaml:"path"`
}

// Diag configures the diagnostic ring.
type Diag struct {
	Capacity int `yaml:"capacity"`
}

// Load reads and validates a spec from path.
func Load(path string) (*Spec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Spec
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &s, nil
}

// Validate checks the spec for structural errors.
func (s *Spec) Validate() error {
	if s.Exec == "" {
		return fmt.Errorf("exec is required")
	}
	for role, in := range map[string]Input{"stdin": s.Channels.Stdin, "data_in": s.Channels.DataIn} {
		switch in.Source {
		case "", "none", "terminal", "file":
		default:
			return fmt.Errorf("%s: unknown source %q", role, in.Source)
		}
		if in.Source == "file" && in.Path == "" {
			return fmt.Errorf("%s: file source requires path", role)
		}
	}
	for role, out := range map[string]Output{"stdout": s.Channels.Stdout, "stderr": s.Channels.Stderr, "data_out": s.Channels.DataOut} {
		switch out.Sink {
		case "", "discard", "inherit", "file":
		default:
			return fmt.Errorf("%s: unknown sink %q", role, out.Sink)
		}
		if out.Sink == "file" && out.Path == "" {
			return fmt.Errorf("%s: file sink requires path", role)
		}
	}
	if s.Channels.Diag.Capacity < 0 {
		return fmt.Errorf("diag: negative capacity")
	}
	return nil
}

// Options resolves the spec into spawn options, opening any bound files.
// The returned closers must be closed after the process has been waited on.
func (s *Spec) Options() ([]hexpipe.Option, []io.Closer, error) {
	var opts []hexpipe.Option
	var closers []io.Closer
	fail := func(err error) ([]hexpipe.Option, []io.Closer, error) {
		for _, c := range closers {
			c.Close()
		}
		return nil, nil, err
	}

	if len(s.Env) > 0 {
		opts = append(opts, hexpipe.WithEnv(s.Env))
	}
	if s.Dir != "" {
		opts = append(opts, hexpipe.WithDir(s.Dir))
	}
	if s.PTY {
		opts = append(opts, hexpipe.WithPTY())
	}
	if s.Channels.Diag.Capacity > 0 {
		opts = append(opts, hexpipe.WithDiagCapacity(s.Channels.Diag.Capacity))
	}

	switch s.Channels.Stdin.Source {
	case "terminal":
		opts = append(opts, hexpipe.WithTerminalStdin())
	case "file":
		f, err := os.Open(s.Channels.Stdin.Path)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, f)
		opts = append(opts, hexpipe.WithStdin(f))
	}

	switch s.Channels.DataIn.Source {
	case "file":
		opts = append(opts, hexpipe.WithDataInFile(s.Channels.DataIn.Path, s.Channels.DataIn.Follow))
	case "terminal":
		return fail(fmt.Errorf("data_in: terminal source not supported"))
	}

	stdoutW, cs, err := s.Channels.Stdout.writer(os.Stdout)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, cs...)
	if stdoutW != nil {
		opts = append(opts, hexpipe.WithStdout(stdoutW))
	}

	stderrW, cs, err := s.Channels.Stderr.writer(os.Stderr)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, cs...)
	if stderrW != nil {
		opts = append(opts, hexpipe.WithStderr(stderrW))
	}

	if s.Channels.DataOut.Sink == "file" {
		f, err := os.OpenFile(s.Channels.DataOut.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, f)
		opts = append(opts, hexpipe.WithDataOut(f))
	}

	return opts, closers, nil
}

func (o Output) writer(inherit io.Writer) (io.Writer, []io.Closer, error) {
	switch o.Sink {
	case "inherit":
		return inherit, nil, nil
	case "file":
		f, err := os.OpenFile(o.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, err
		}
		return f, []io.Closer{f}, nil
	}
	return nil, nil, nil
}
