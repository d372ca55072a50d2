package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/wasmerio/wasmer-go/wasmer"

	"indexer-engine/internal/block"
	"indexer-engine/internal/db"
)

// WasmBridge runs a handler compiled to a sandboxed WebAssembly module
// under wasmer-go, grounded on the teacher's HeavyVM (core/virtual_machine.go)
// store/module/instance/import-object wiring, generalized from a contract
// VM's opcode handler to the indexer's handle_events entry point.
type WasmBridge struct {
	store   *wasmer.Store
	module  *wasmer.Module
	timeout time.Duration
}

// NewWasmBridge compiles code once; HandleEvents instantiates it fresh for
// every batch so one handler invocation never observes another's linear
// memory state.
func NewWasmBridge(code []byte, timeout time.Duration) (*WasmBridge, error) {
	engine := wasmer.NewEngine()
	store := wasmer.NewStore(engine)
	mod, err := wasmer.NewModule(store, code)
	if err != nil {
		return nil, fmt.Errorf("sandbox: compile module: %w", err)
	}
	return &WasmBridge{store: store, module: mod, timeout: timeout}, nil
}

// hostState is the per-invocation state the env-namespace host callbacks
// close over. It is not safe for concurrent use, matching one bridge
// serving one in-flight handler invocation at a time (spec.md §4.7: a
// pull loop owns exactly one bridge).
type hostState struct {
	ctx       context.Context
	mem       *wasmer.Memory
	session   *db.Session
	err       error
	earlyExit bool
}

func (h *hostState) read(ptr, length int32) []byte {
	data := h.mem.Data()
	out := make([]byte, length)
	copy(out, data[ptr:ptr+length])
	return out
}

func (h *hostState) setErr(err error) {
	if h.err == nil {
		h.err = err
	}
}

// HandleEvents serializes blocks, transfers them into the sandbox, invokes
// handle_events under the configured timeout, and classifies the outcome
// per spec.md §4.4 step 5.
func (b *WasmBridge) HandleEvents(ctx context.Context, session *db.Session, blocks []block.Block) error {
	payload, err := json.Marshal(blocks)
	if err != nil {
		return fmt.Errorf("sandbox: serialize block batch: %w", err)
	}

	hs := &hostState{ctx: ctx, session: session}
	imports := b.registerHost(hs)

	instance, err := wasmer.NewInstance(b.module, imports)
	if err != nil {
		return fmt.Errorf("sandbox: instantiate module: %w", err)
	}
	defer instance.Close()

	mem, err := instance.Exports.GetMemory("memory")
	if err != nil {
		return errors.New("sandbox: module missing memory export")
	}
	hs.mem = mem

	allocFn, err := instance.Exports.GetFunction("alloc_fn")
	if err != nil {
		return errors.New("sandbox: module missing alloc_fn export")
	}
	deallocFn, err := instance.Exports.GetFunction("dealloc_fn")
	if err != nil {
		return errors.New("sandbox: module missing dealloc_fn export")
	}
	handleEvents, err := instance.Exports.GetFunction("handle_events")
	if err != nil {
		return errors.New("sandbox: module missing handle_events export")
	}

	rawPtr, err := allocFn(int32(len(payload)))
	if err != nil {
		return fmt.Errorf("sandbox: alloc_fn: %w", err)
	}
	ptr, ok := rawPtr.(int32)
	if !ok {
		return fmt.Errorf("sandbox: alloc_fn returned non-i32 result %T", rawPtr)
	}
	copy(mem.Data()[ptr:], payload)

	return runTransactional(ctx, session, func() error {
		done := make(chan error, 1)
		go func() {
			_, callErr := handleEvents(ptr, int32(len(payload)))
			if callErr == nil {
				callErr = hs.err
			}
			done <- callErr
		}()

		select {
		case callErr := <-done:
			if _, derr := deallocFn(ptr, int32(len(payload))); derr != nil {
				logrus.WithError(derr).Warn("sandbox: dealloc_fn failed")
			}
			if callErr != nil {
				return callErr
			}
			if hs.earlyExit {
				logrus.Debug("sandbox: handler requested early exit")
			}
			return nil
		case <-time.After(b.timeout):
			// The blocking worker goroutine above is abandoned; it may
			// still be running when this invocation's instance is
			// closed. Cancellation here is cooperative, not preemptive
			// (spec.md §5).
			return RunTimeLimitExceededError{Budget: b.timeout.String()}
		}
	})
}

// registerHost wires the env-namespace callbacks a handler module calls to
// emit records, mirroring the teacher's registerHost (core/virtual_machine.go)
// generalized from contract-VM host functions to the indexer's ff_* set.
func (b *WasmBridge) registerHost(hs *hostState) *wasmer.ImportObject {
	imports := wasmer.NewImportObject()

	ffPutObject := wasmer.NewFunction(
		b.store,
		wasmer.NewFunctionType(
			wasmer.NewValueTypes(wasmer.ValueKind(wasmer.I32), wasmer.ValueKind(wasmer.I32)),
			wasmer.NewValueTypes(wasmer.ValueKind(wasmer.I32)),
		),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			ptr, length := args[0].I32(), args[1].I32()
			call, err := decodePutObjectCall(hs.read(ptr, length))
			if err != nil {
				hs.setErr(err)
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			columns, err := decodeColumns(call.Columns)
			if err != nil {
				hs.setErr(fmt.Errorf("sandbox: ff_put_object: %w", err))
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			if err := hs.session.PutObject(hs.ctx, call.TypeID, columns); err != nil {
				hs.setErr(err)
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			return []wasmer.Value{wasmer.NewI32(0)}, nil
		},
	)

	ffPutManyToMany := wasmer.NewFunction(
		b.store,
		wasmer.NewFunctionType(
			wasmer.NewValueTypes(wasmer.ValueKind(wasmer.I32), wasmer.ValueKind(wasmer.I32)),
			wasmer.NewValueTypes(wasmer.ValueKind(wasmer.I32)),
		),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			ptr, length := args[0].I32(), args[1].I32()
			call, err := decodePutManyToManyCall(hs.read(ptr, length))
			if err != nil {
				hs.setErr(err)
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			columns, err := decodeColumns(call.Columns)
			if err != nil {
				hs.setErr(fmt.Errorf("sandbox: ff_put_many_to_many_record: %w", err))
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			if err := hs.session.PutManyToManyRecord(hs.ctx, call.Table, columns); err != nil {
				hs.setErr(err)
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			return []wasmer.Value{wasmer.NewI32(0)}, nil
		},
	)

	ffLogData := wasmer.NewFunction(
		b.store,
		wasmer.NewFunctionType(
			wasmer.NewValueTypes(wasmer.ValueKind(wasmer.I32), wasmer.ValueKind(wasmer.I32)),
			wasmer.NewValueTypes(),
		),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			ptr, length := args[0].I32(), args[1].I32()
			logrus.WithField("handler", true).Info(string(hs.read(ptr, length)))
			return []wasmer.Value{}, nil
		},
	)

	ffEarlyExit := wasmer.NewFunction(
		b.store,
		wasmer.NewFunctionType(
			wasmer.NewValueTypes(wasmer.ValueKind(wasmer.I32), wasmer.ValueKind(wasmer.I32)),
			wasmer.NewValueTypes(),
		),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			ptr, length := args[0].I32(), args[1].I32()
			hs.earlyExit = true
			logrus.WithField("reason", string(hs.read(ptr, length))).Debug("sandbox: ff_early_exit")
			return []wasmer.Value{}, nil
		},
	)

	imports.Register("env", map[string]wasmer.IntoExtern{
		"ff_put_object":              ffPutObject,
		"ff_put_many_to_many_record": ffPutManyToMany,
		"ff_log_data":                ffLogData,
		"ff_early_exit":              ffEarlyExit,
	})

	return imports
}
