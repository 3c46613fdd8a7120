package drain

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"syscall"

	"github.com/hexpipe/hexpipe/pkg/channel"
)

const chunkSize = 32 * 1024

// pumpOut reads chunks from an out-of-child endpoint and forwards them to
// the sink until the endpoint reports end-of-stream. A slow sink stalls the
// loop; the pipe behind src fills and the child blocks on write. That is the
// backpressure path for Block-policy channels. Cancellation takes priority
// over a blocked sink: the in-flight write is abandoned and the pump
// returns.
func pumpOut(ctx context.Context, role channel.Role, src io.Reader, sink io.Writer, logger *slog.Logger) error {
	buf := make([]byte, chunkSize)
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if werr := writeContext(ctx, sink, buf[:n]); werr != nil {
				if ctx.Err() != nil {
					return nil
				}
				return &channel.Error{Role: role, Op: "write", Err: werr}
			}
		}
		if rerr != nil {
			switch {
			case rerr == io.EOF:
				logger.Debug("channel drained", "role", role.String())
				return nil
			case errors.Is(rerr, syscall.EIO):
				// A pty master reads EIO, not EOF, when the slave side is
				// gone. Same meaning here.
				return nil
			case errors.Is(rerr, fs.ErrClosed) && ctx.Err() != nil:
				// Endpoint closed under us by cancellation.
				return nil
			default:
				return &channel.Error{Role: role, Op: "read", Err: rerr}
			}
		}
	}
}

// pumpIn copies from a caller-provided source into an into-child endpoint,
// closing the endpoint on source end-of-stream so the child sees EOF. On
// cancellation the endpoint is closed to unblock the child; the goroutine
// then finishes when src yields. There is no portable way to forcibly
// unblock a generic src.Read.
func pumpIn(ctx context.Context, role channel.Role, src io.Reader, dst io.WriteCloser, logger *slog.Logger) error {
	defer dst.Close()

	buf := make([]byte, chunkSize)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		n, rerr := src.Read(buf)
		if n > 0 {
			written := 0
			for written < n {
				m, werr := dst.Write(buf[written:n])
				if werr != nil {
					if ctx.Err() != nil || errors.Is(werr, fs.ErrClosed) {
						return nil
					}
					return &channel.Error{Role: role, Op: "write", Err: werr}
				}
				written += m
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				logger.Debug("input source exhausted", "role", role.String())
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return &channel.Error{Role: role, Op: "read", Err: rerr}
		}
	}
}

// writeContext performs one sink write, abandoning the attempt if ctx is
// canceled first. The write goroutine may complete after abandonment; the
// caller must not reuse the buffer after a cancellation return, and the
// pumps never do (they return immediately).
func writeContext(ctx context.Context, w io.Writer, p []byte) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	done := make(chan error, 1)
	go func() {
		var err error
		written := 0
		for written < len(p) && err == nil {
			var m int
			m, err = w.Write(p[written:])
			written += m
		}
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
