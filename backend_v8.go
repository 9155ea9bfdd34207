//go:build v8

package asyncleak

import (
	"github.com/cryguy/asyncleak/internal/core"
	"github.com/cryguy/asyncleak/internal/v8engine"
)

func newBackend(cfg core.EngineConfig) (core.Backend, error) {
	b, err := v8engine.New(cfg)
	if err != nil {
		return nil, err
	}
	return b, nil
}
