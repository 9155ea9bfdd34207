package asyncleak

import (
	"fmt"
	"io"
)

// HeapSnapshot is one telemetry reading.
type HeapSnapshot struct {
	UsedBytes   uint64
	TotalBytes  uint64
	Outstanding int
}

// writeSnapshot prints s in the harness's plain-text format.
func writeSnapshot(w io.Writer, s HeapSnapshot) error {
	_, err := fmt.Fprintf(w,
		"Used Heap Size: %d\nTotal Heap Size: %d\nUnresolved Promises: %d\n----------------\n\n",
		s.UsedBytes, s.TotalBytes, s.Outstanding)
	return err
}
