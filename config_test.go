package asyncleak

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"testing"
)

func TestConfig_WithDefaults(t *testing.T) {
	c := Config{}.withDefaults()
	if c.Source != AsyncSource {
		t.Errorf("Source = %q, want AsyncSource", c.Source)
	}
	if c.EntryName != "main" || c.Expected != "hello world" {
		t.Errorf("EntryName/Expected = %q/%q", c.EntryName, c.Expected)
	}
	if c.BatchSize != 5 || c.SampleEvery != 10000 {
		t.Errorf("BatchSize/SampleEvery = %d/%d, want 5/10000", c.BatchSize, c.SampleEvery)
	}
	if c.Rejections != RetainRejected {
		t.Errorf("Rejections = %s, want retain", c.Rejections)
	}
	if c.Output != os.Stdout {
		t.Error("Output should default to stdout")
	}
}

func TestConfig_WithDefaultsKeepsOverrides(t *testing.T) {
	var buf bytes.Buffer
	c := Config{
		Source:        SyncSource,
		EntryName:     "run",
		Expected:      "ok",
		BatchSize:     2,
		SampleEvery:   7,
		MemoryLimitMB: 64,
		Rejections:    FailOnRejected,
		Output:        &buf,
	}.withDefaults()
	if c.Source != SyncSource || c.EntryName != "run" || c.Expected != "ok" ||
		c.BatchSize != 2 || c.SampleEvery != 7 || c.MemoryLimitMB != 64 ||
		c.Rejections != FailOnRejected || c.Output != &buf {
		t.Errorf("overrides lost: %+v", c)
	}
}

func TestFatalError_Unwrap(t *testing.T) {
	cause := errors.New("SyntaxError")
	err := fmt.Errorf("starting: %w", &FatalError{Kind: FatalStartup, Err: cause})

	if !errors.Is(err, cause) {
		t.Error("cause not reachable through errors.Is")
	}
	if !IsFatal(err, FatalStartup) {
		t.Error("IsFatal should see through wrapping")
	}
	if IsFatal(err, FatalCall) {
		t.Error("IsFatal matched the wrong kind")
	}
	if got, want := (&FatalError{Kind: FatalInvariant, Err: cause}).Error(), "invariant violation: SyntaxError"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestWriteSnapshot(t *testing.T) {
	var buf bytes.Buffer
	if err := writeSnapshot(&buf, HeapSnapshot{UsedBytes: 1, TotalBytes: 2, Outstanding: 3}); err != nil {
		t.Fatalf("writeSnapshot: %v", err)
	}
	want := "Used Heap Size: 1\nTotal Heap Size: 2\nUnresolved Promises: 3\n----------------\n\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}
