// Package sandbox runs one indexer handler invocation per block batch and
// manages its transaction boundary. Two interchangeable backends satisfy
// the same Bridge contract: WasmBridge (sandboxed bytecode, wasmer-go) and
// NativeBridge (a trusted in-process function).
package sandbox

import (
	"context"
	"fmt"

	"indexer-engine/internal/block"
	"indexer-engine/internal/db"
)

// Bridge invokes a handler against one batch of canonical blocks, under the
// session's transaction, and reports the outcome.
type Bridge interface {
	HandleEvents(ctx context.Context, session *db.Session, blocks []block.Block) error
}

// RunTimeLimitExceededError is surfaced when a handler invocation exceeds
// its configured wall-clock budget (spec.md §4.4 step 5).
type RunTimeLimitExceededError struct {
	Budget string
}

func (e RunTimeLimitExceededError) Error() string {
	return fmt.Sprintf("sandbox: handler exceeded run time limit (%s)", e.Budget)
}

// HandlerFunc is the signature a native (trusted, in-process) handler
// implements. It runs inside the session's already-open transaction and
// appends records via session.PutObject / session.PutManyToManyRecord.
type HandlerFunc func(ctx context.Context, session *db.Session, blocks []block.Block) error

// runTransactional opens a transaction, runs fn, and commits on success or
// reverts on any error — the transaction contract shared by both bridges
// (spec.md §4.4 steps 3-5, §4.5).
func runTransactional(ctx context.Context, session *db.Session, fn func() error) error {
	if err := session.StartTransaction(ctx); err != nil {
		return fmt.Errorf("sandbox: open transaction: %w", err)
	}

	if err := fn(); err != nil {
		if revErr := session.RevertTransaction(ctx); revErr != nil {
			return fmt.Errorf("%w (revert also failed: %v)", err, revErr)
		}
		return err
	}

	if err := session.CommitTransaction(ctx); err != nil {
		return fmt.Errorf("sandbox: commit transaction: %w", err)
	}
	return nil
}
