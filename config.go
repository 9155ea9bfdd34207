package asyncleak

import (
	"io"
	"os"
)

// AsyncSource exports an async main. Calling it in a loop against one
// long-lived context is what grows the heap.
const AsyncSource = "export let main = async () => { return 'hello world' }"

// SyncSource is the same module with a plain function. Nothing is tracked.
// On QuickJS the heap stays flat; v8go roots every value it returns until
// the context closes, so the V8 heap still grows with each call.
const SyncSource = "export let main = () => 'hello world'"

// RejectionPolicy decides what a drain pass does with a rejected result.
type RejectionPolicy int

const (
	// RetainRejected treats a rejected result like a pending one: it stays
	// outstanding and is never checked against Expected.
	RetainRejected RejectionPolicy = iota
	// FailOnRejected stops the harness with a FatalRejection error.
	FailOnRejected
)

func (p RejectionPolicy) String() string {
	switch p {
	case RetainRejected:
		return "retain"
	case FailOnRejected:
		return "fail"
	default:
		return "unknown"
	}
}

// Config holds harness settings. Zero fields take the defaults from
// DefaultConfig.
type Config struct {
	Source        string          // ES module source
	EntryName     string          // exported function called each iteration
	Expected      string          // value every fulfilled result must stringify to
	BatchSize     int             // calls per iteration
	SampleEvery   int             // iterations between heap snapshots
	MemoryLimitMB int             // engine heap cap, 0 keeps the engine default
	Rejections    RejectionPolicy // what to do with rejected results
	Output        io.Writer       // where heap snapshots are written
}

// DefaultConfig returns the configuration the command runs with.
func DefaultConfig() Config {
	return Config{
		Source:      AsyncSource,
		EntryName:   "main",
		Expected:    "hello world",
		BatchSize:   5,
		SampleEvery: 10000,
		Rejections:  RetainRejected,
		Output:      os.Stdout,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Source == "" {
		c.Source = d.Source
	}
	if c.EntryName == "" {
		c.EntryName = d.EntryName
	}
	if c.Expected == "" {
		c.Expected = d.Expected
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.SampleEvery <= 0 {
		c.SampleEvery = d.SampleEvery
	}
	if c.MemoryLimitMB < 0 {
		c.MemoryLimitMB = 0
	}
	if c.Output == nil {
		c.Output = d.Output
	}
	return c
}
