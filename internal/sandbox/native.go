package sandbox

import (
	"context"
	"fmt"

	"indexer-engine/internal/block"
	"indexer-engine/internal/db"
)

// NativeBridge dispatches to a registry of trusted, in-process handlers
// keyed by name (the manifest's module.native field). No timeout is
// enforced — the handler is trusted code (spec.md §4.5).
type NativeBridge struct {
	handlers map[string]HandlerFunc
}

// NewNativeBridge builds a bridge around the given handler name. The
// handler must already be present in registry under name (see
// NewHandlerRegistry).
func NewNativeBridge(registry map[string]HandlerFunc, name string) (*NativeBridge, error) {
	fn, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("sandbox: no native handler registered as %q", name)
	}
	return &NativeBridge{handlers: map[string]HandlerFunc{name: fn}}, nil
}

// NewHandlerRegistry returns an empty registry for first-party/test
// indexers to populate before building a NativeBridge.
func NewHandlerRegistry() map[string]HandlerFunc {
	return make(map[string]HandlerFunc)
}

// HandleEvents runs the registered handler under the session's transaction
// boundary (spec.md §4.5: same transaction contract as §4.4).
func (b *NativeBridge) HandleEvents(ctx context.Context, session *db.Session, blocks []block.Block) error {
	var fn HandlerFunc
	for _, h := range b.handlers {
		fn = h
		break
	}
	return runTransactional(ctx, session, func() error {
		return fn(ctx, session, blocks)
	})
}
