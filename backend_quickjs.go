//go:build !v8

package asyncleak

import (
	"github.com/cryguy/asyncleak/internal/core"
	"github.com/cryguy/asyncleak/internal/quickjs"
)

func newBackend(cfg core.EngineConfig) (core.Backend, error) {
	b, err := quickjs.New(cfg)
	if err != nil {
		return nil, err
	}
	return b, nil
}
