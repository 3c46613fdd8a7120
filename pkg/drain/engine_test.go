package drain

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hexpipe/hexpipe/pkg/channel"
)

func TestEngineDrainToEOF(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}

	e := NewEngine(context.Background(), nil)
	var sink Accumulator
	e.DrainOut(channel.DataOut, r, &sink)

	w.Write([]byte("payload"))
	w.Close()

	if errs := e.WaitOutputs(); len(errs) != 0 {
		t.Fatalf("unexpected channel errors: %v", errs)
	}
	if got := string(sink.Snapshot()); got != "payload" {
		t.Fatalf("got %q", got)
	}
}

func TestEngineErrorIsolation(t *testing.T) {
	// One channel failing must not terminate its sibling.
	badR, badW, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	goodR, goodW, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}

	// Close the read end up front so the bad worker hits a read error
	// immediately rather than EOF.
	badR.Close()
	badW.Close()

	e := NewEngine(context.Background(), nil)
	var good Accumulator
	e.DrainOut(channel.Diag, badR, io.Discard)
	e.DrainOut(channel.DataOut, goodR, &good)

	goodW.Write([]byte("still flowing"))
	goodW.Close()

	errs := e.WaitOutputs()
	if len(errs) != 1 {
		t.Fatalf("expected exactly one channel error, got %v", errs)
	}
	if errs[0].Role != channel.Diag {
		t.Fatalf("error tagged with role %v, want diag", errs[0].Role)
	}
	if got := string(good.Snapshot()); got != "still flowing" {
		t.Fatalf("sibling channel lost data: %q", got)
	}
}

// blockingWriter blocks every Write until released.
type blockingWriter struct {
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func newBlockingWriter() *blockingWriter {
	return &blockingWriter{started: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingWriter) Write(p []byte) (int, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return len(p), nil
}

func TestEngineCancelUnblocksSlowSink(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer w.Close()

	e := NewEngine(context.Background(), nil)
	sink := newBlockingWriter()
	e.DrainOut(channel.DataOut, r, sink)

	w.Write([]byte("stuck"))
	<-sink.started

	// The worker is parked in the sink write. Cancellation must win.
	e.Cancel()

	done := make(chan struct{})
	go func() {
		e.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("cancel did not unblock worker stuck on slow sink")
	}
}

func TestEngineCancelIdempotent(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer w.Close()

	e := NewEngine(context.Background(), nil)
	e.DrainOut(channel.Stdout, r, io.Discard)
	e.Cancel()
	e.Cancel() // second cancel must be a no-op, not a double close
	e.Wait()
}

func TestEngineFeedInForwardsEOF(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}

	e := NewEngine(context.Background(), nil)
	e.FeedIn(channel.DataIn, strings.NewReader("input bytes"), w)

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "input bytes" {
		t.Fatalf("got %q", got)
	}
	r.Close()
	e.Wait()
}

func TestEngineOrderWithinChannel(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}

	e := NewEngine(context.Background(), nil)
	var sink Accumulator
	e.DrainOut(channel.DataOut, r, &sink)

	want := make([]byte, 0, 4096)
	for i := 0; i < 4096; i++ {
		b := byte(i % 251)
		w.Write([]byte{b})
		want = append(want, b)
	}
	w.Close()
	e.WaitOutputs()

	got := sink.Snapshot()
	if len(got) != len(want) {
		t.Fatalf("length %d want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d: got %d want %d", i, got[i], want[i])
		}
	}
}
