package transcript

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/hexpipe/hexpipe/pkg/channel"
)

func openTestRecorder(t *testing.T) *Recorder {
	t.Helper()
	rec, err := Open(filepath.Join(t.TempDir(), "transcript.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return rec
}

func TestRecordAndQuery(t *testing.T) {
	rec := openTestRecorder(t)
	defer rec.Close()

	sink := rec.Sink(channel.DataOut)
	sink.Write([]byte("chunk-1"))
	sink.Write([]byte("chunk-2"))
	rec.Sink(channel.Stdout).Write([]byte("other role"))

	// The writer goroutine is asynchronous; give it a moment to land.
	deadline := time.Now().Add(2 * time.Second)
	var chunks []Chunk
	for time.Now().Before(deadline) {
		var err error
		chunks, err = rec.Chunks(context.Background(), channel.DataOut, 0, 0)
		if err != nil {
			t.Fatalf("Chunks: %v", err)
		}
		if len(chunks) == 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if !bytes.Equal(chunks[0].Data, []byte("chunk-1")) || !bytes.Equal(chunks[1].Data, []byte("chunk-2")) {
		t.Fatalf("chunk content/order wrong: %q %q", chunks[0].Data, chunks[1].Data)
	}
	if chunks[0].Seq >= chunks[1].Seq {
		t.Fatalf("sequence not increasing: %d %d", chunks[0].Seq, chunks[1].Seq)
	}
}

func TestChunksAfterSeq(t *testing.T) {
	rec := openTestRecorder(t)
	defer rec.Close()

	sink := rec.Sink(channel.Diag)
	for i := 0; i < 5; i++ {
		sink.Write([]byte{byte('a' + i)})
	}

	deadline := time.Now().Add(2 * time.Second)
	var all []Chunk
	for time.Now().Before(deadline) {
		all, _ = rec.Chunks(context.Background(), channel.Diag, 0, 0)
		if len(all) == 5 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(all) != 5 {
		t.Fatalf("expected 5 chunks, got %d", len(all))
	}

	tail, err := rec.Chunks(context.Background(), channel.Diag, all[2].Seq, 0)
	if err != nil {
		t.Fatalf("Chunks: %v", err)
	}
	if len(tail) != 2 {
		t.Fatalf("expected 2 chunks after seq %d, got %d", all[2].Seq, len(tail))
	}
}

func TestExitCodeRoundTrip(t *testing.T) {
	rec := openTestRecorder(t)
	defer rec.Close()

	if _, ok, err := rec.ExitCode(context.Background()); err != nil || ok {
		t.Fatalf("expected no exit code yet: ok=%v err=%v", ok, err)
	}
	if err := rec.RecordExit(42); err != nil {
		t.Fatalf("RecordExit: %v", err)
	}
	code, ok, err := rec.ExitCode(context.Background())
	if err != nil || !ok || code != 42 {
		t.Fatalf("got code=%d ok=%v err=%v", code, ok, err)
	}
	// Overwrite is allowed; last value wins.
	if err := rec.RecordExit(7); err != nil {
		t.Fatalf("RecordExit: %v", err)
	}
	code, _, _ = rec.ExitCode(context.Background())
	if code != 7 {
		t.Fatalf("got code=%d", code)
	}
}

func TestCloseIsIdempotentForWriters(t *testing.T) {
	rec := openTestRecorder(t)
	sink := rec.Sink(channel.Stdout)
	sink.Write([]byte("before close"))
	rec.Close()
	// Writes after close are dropped, not a panic.
	if _, err := sink.Write([]byte("after close")); err != nil {
		t.Fatalf("write after close: %v", err)
	}
}
