// Command asyncleak calls an async JavaScript function in a tight loop
// inside one long-lived engine context and prints heap statistics every
// 10,000 iterations. It takes no arguments and runs until it crashes or is
// killed.
package main

import (
	"context"
	"log"

	"github.com/cryguy/asyncleak"
)

func main() {
	h, err := asyncleak.New(asyncleak.DefaultConfig())
	if err != nil {
		log.Fatalf("asyncleak: %v", err)
	}
	log.Printf("module loaded, entering loop")

	err = h.Run(context.Background())
	h.Close()
	log.Fatalf("asyncleak: %v", err)
}
