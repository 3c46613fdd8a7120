//go:build unix

package hexpipe

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/hexpipe/hexpipe/pkg/bootstrap"
	"github.com/hexpipe/hexpipe/pkg/channel"
)

// syncBuffer is a goroutine-safe bytes.Buffer for sinks read mid-run.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func shSpawn(t *testing.T, script string, opts ...Option) *Process {
	t.Helper()
	p, err := Spawn("/bin/sh", []string{"-c", script}, opts...)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	return p
}

func TestSixChannelScenario(t *testing.T) {
	// The child writes to three output channels and exits 0; all three must
	// be fully drained by the time Wait returns.
	script := `
echo OK
printf 'Processed 1024 bytes\n' >&3
i=0
while [ $i -lt 64 ]; do printf '0123456789abcdef'; i=$((i+1)); done >&5
`
	var stdout bytes.Buffer
	p := shSpawn(t, script, WithStdout(&stdout))

	st, err := p.Wait()
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if st.Code != 0 {
		t.Fatalf("exit code %d", st.Code)
	}
	if stdout.String() != "OK\n" {
		t.Fatalf("stdout %q", stdout.String())
	}
	if got := string(p.DiagSnapshot()); got != "Processed 1024 bytes\n" {
		t.Fatalf("diag %q", got)
	}
	data := p.DataSnapshot()
	if len(data) != 1024 {
		t.Fatalf("data length %d", len(data))
	}
	want := bytes.Repeat([]byte("0123456789abcdef"), 64)
	if !bytes.Equal(data, want) {
		t.Fatalf("data pattern mismatch")
	}
}

func TestDataRoundTrip(t *testing.T) {
	// Bytes pushed into binary input must come back on binary output in
	// order with no gaps, for any write pattern.
	p := shSpawn(t, "cat <&4 >&5", WithDataInPipe())

	var want bytes.Buffer
	w := p.DataIn()
	for i := 0; i < 300; i++ {
		b := byte(i % 256)
		w.Write([]byte{b}) // single-byte writes
		want.WriteByte(b)
	}
	w.Write(nil) // zero-byte write must be harmless
	chunk := bytes.Repeat([]byte{0xA5}, 10000)
	w.Write(chunk)
	want.Write(chunk)
	if err := w.Close(); err != nil {
		t.Fatalf("close data-in: %v", err)
	}

	st, err := p.Wait()
	if err != nil || st.Code != 0 {
		t.Fatalf("wait: st=%+v err=%v", st, err)
	}
	if !bytes.Equal(p.DataSnapshot(), want.Bytes()) {
		t.Fatalf("round trip mismatch: got %d bytes want %d", len(p.DataSnapshot()), want.Len())
	}
}

func TestDiagOverflowDropsOldest(t *testing.T) {
	p := shSpawn(t, "printf 'abcdefghijklmnopqrstuvwxyz' >&3", WithDiagCapacity(16))
	if _, err := p.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
	// 26 bytes through a 16-byte ring: exactly the newest 16 survive.
	if got := string(p.DiagSnapshot()); got != "klmnopqrstuvwxyz" {
		t.Fatalf("diag %q", got)
	}
}

func TestUnconfiguredChannelsStillDrain(t *testing.T) {
	// No sinks configured at all: the child must still be able to push
	// large volumes through diag and data-out without blocking.
	script := `
dd if=/dev/zero bs=1024 count=256 2>/dev/null >&3
dd if=/dev/zero bs=1024 count=256 2>/dev/null >&5
`
	p := shSpawn(t, script)
	st, err := p.Wait()
	if err != nil || st.Code != 0 {
		t.Fatalf("wait: st=%+v err=%v", st, err)
	}
	if got := len(p.DataSnapshot()); got != 256*1024 {
		t.Fatalf("data length %d", got)
	}
	// The ring kept only its capacity's worth.
	if got := len(p.DiagSnapshot()); got != 64*1024 {
		t.Fatalf("diag length %d", got)
	}
}

func TestWaitAfterReap(t *testing.T) {
	p := shSpawn(t, "exit 5")
	st, err := p.Wait()
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if st.Code != 5 {
		t.Fatalf("code %d", st.Code)
	}

	st2, err := p.Wait()
	if !errors.Is(err, ErrAlreadyReaped) {
		t.Fatalf("second wait: err=%v", err)
	}
	if st2.Code != 5 {
		t.Fatalf("second wait lost the status: %+v", st2)
	}
}

func TestSignalAfterExit(t *testing.T) {
	p := shSpawn(t, ":")
	if _, err := p.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if err := p.Signal(syscall.SIGTERM); !errors.Is(err, ErrNoSuchProcess) {
		t.Fatalf("signal after exit: err=%v", err)
	}
}

func TestSignalTerminates(t *testing.T) {
	p := shSpawn(t, "sleep 30")
	if !p.IsRunning() {
		t.Fatalf("child not running")
	}
	if err := p.Signal(syscall.SIGTERM); err != nil {
		t.Fatalf("signal: %v", err)
	}
	st, err := p.Wait()
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if !st.Signaled || st.Signal != syscall.SIGTERM {
		t.Fatalf("status %+v", st)
	}
	if p.IsRunning() {
		t.Fatalf("IsRunning true after exit")
	}
}

func TestStopEscalatesToKill(t *testing.T) {
	// The ignored-TERM trap is inherited across the group, so the graceful
	// phase cannot succeed and Stop must escalate.
	p := shSpawn(t, `trap '' TERM; while :; do sleep 1; done`)
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	if err := p.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	st, err := p.Wait()
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if !st.Signaled || st.Signal != syscall.SIGKILL {
		t.Fatalf("status %+v", st)
	}
}

func TestSpawnNotFound(t *testing.T) {
	_, err := Spawn("/no/such/executable", nil)
	if err == nil {
		t.Fatalf("expected spawn error")
	}
	var se *SpawnError
	if !errors.As(err, &se) {
		t.Fatalf("error type %T", err)
	}
	if se.Kind != ExecutableNotFound {
		t.Fatalf("kind %v", se.Kind)
	}
}

func TestCancelIdempotent(t *testing.T) {
	p := shSpawn(t, "sleep 30")
	p.Cancel()
	p.Cancel() // second cancel must be a no-op

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := p.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if _, err := p.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
}

func TestStdinPump(t *testing.T) {
	var stdout bytes.Buffer
	p := shSpawn(t, "cat", WithStdin(strings.NewReader("hello\n")), WithStdout(&stdout))
	st, err := p.Wait()
	if err != nil || st.Code != 0 {
		t.Fatalf("wait: st=%+v err=%v", st, err)
	}
	if stdout.String() != "hello\n" {
		t.Fatalf("stdout %q", stdout.String())
	}
}

func TestStdinDefaultsToEOF(t *testing.T) {
	// With no stdin source and no terminal, the child sees immediate
	// end-of-stream rather than a blocking read.
	var stdout bytes.Buffer
	p := shSpawn(t, "cat", WithStdout(&stdout))

	done := make(chan struct{})
	go func() {
		p.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("child blocked on unconfigured stdin")
	}
	if stdout.Len() != 0 {
		t.Fatalf("stdout %q", stdout.String())
	}
}

// markerWriter closes hit the first time the marker appears in its input.
type markerWriter struct {
	marker []byte
	hit    chan struct{}
	once   sync.Once
	seen   []byte
}

func (m *markerWriter) Write(p []byte) (int, error) {
	m.seen = append(m.seen, p...)
	if bytes.Contains(m.seen, m.marker) {
		m.once.Do(func() { close(m.hit) })
	}
	return len(p), nil
}

// stuckWriter accepts nothing, ever.
type stuckWriter struct {
	started chan struct{}
	once    sync.Once
}

func (s *stuckWriter) Write(p []byte) (int, error) {
	s.once.Do(func() { close(s.started) })
	select {} // never returns
}

func TestBinaryBackpressureBlocksChild(t *testing.T) {
	// A data-out sink that never drains must stall the child's writes (the
	// pipe fills, the child blocks) rather than dropping bytes. The child
	// only prints DONE after its data writes complete, so DONE appearing
	// early would mean the backpressure path leaked.
	script := `
dd if=/dev/zero bs=65536 count=16 2>/dev/null >&5
echo DONE
`
	sink := &stuckWriter{started: make(chan struct{})}
	marker := &markerWriter{marker: []byte("DONE"), hit: make(chan struct{})}
	p := shSpawn(t, script, WithDataOut(sink), WithStdout(marker))

	select {
	case <-sink.started:
	case <-time.After(5 * time.Second):
		t.Fatalf("data never reached the sink")
	}

	select {
	case <-marker.hit:
		t.Fatalf("child completed its data writes despite a stuck sink")
	case <-time.After(700 * time.Millisecond):
		// Blocked, as required.
	}

	// Cancellation takes priority over the stuck sink.
	p.Cancel()

	done := make(chan struct{})
	go func() {
		p.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("wait deadlocked after cancel with stuck sink")
	}
}

func TestPTYMode(t *testing.T) {
	out := &syncBuffer{}
	p, err := Spawn("/bin/sh", []string{"-c", "echo hi"}, WithPTY(), WithStdout(out))
	if err != nil {
		t.Skipf("pty unavailable: %v", err)
	}
	st, err := p.Wait()
	if err != nil || st.Code != 0 {
		t.Fatalf("wait: st=%+v err=%v", st, err)
	}
	if !strings.Contains(out.String(), "hi") {
		t.Fatalf("pty output %q", out.String())
	}
}

// TestHelperProcess is not a real test: it is re-executed as a child to
// exercise the child-side channel resolution end to end.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("HEXPIPE_WANT_HELPER") != "1" {
		return
	}
	defer os.Exit(0)

	cs, err := bootstrap.Child()
	if err != nil {
		os.Exit(3)
	}
	cs.Writer(channel.Diag).Write([]byte("helper diag"))
	if _, err := io.Copy(cs.Writer(channel.DataOut), cs.Reader(channel.DataIn)); err != nil {
		os.Exit(4)
	}
	cs.Close()
}

func TestChildSideResolution(t *testing.T) {
	p, err := Spawn(os.Args[0],
		[]string{"-test.run=^TestHelperProcess$", "--"},
		WithEnv(append(os.Environ(), "HEXPIPE_WANT_HELPER=1")),
		WithDataInPipe(),
	)
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}

	w := p.DataIn()
	w.Write([]byte("ping across the data channels"))
	w.Close()

	st, err := p.Wait()
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if st.Code != 0 {
		t.Fatalf("helper exit code %d", st.Code)
	}
	if got := string(p.DataSnapshot()); got != "ping across the data channels" {
		t.Fatalf("data %q", got)
	}
	if got := string(p.DiagSnapshot()); got != "helper diag" {
		t.Fatalf("diag %q", got)
	}
}
