package engine

import (
	"github.com/wasmerio/wasmer-go/wasmer"

	"github.com/empower1/enclavecore/internal/coreerr"
	"github.com/empower1/enclavecore/internal/envelope"
)

// Module is a compiled wasm module, cached by code hash. Compilation is the
// sole responsibility of the module cache (internal/enclave); the
// dispatcher never calls wasmer.NewModule directly.
type Module struct {
	store  *wasmer.Store
	module *wasmer.Module
	hash   envelope.CodeHash
}

// Compile compiles raw wasm bytes into a Module. Each Module owns its own
// store, matching the teacher's one-store-per-unit-of-work convention.
func Compile(wasm []byte) (*Module, error) {
	store := wasmer.NewStore(wasmer.NewEngine())
	mod, err := wasmer.NewModule(store, wasm)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.KindFailedFunctionCall, "wasm compile failed: %w", err)
	}
	return &Module{
		store:  store,
		module: mod,
		hash:   envelope.HashCode(wasm),
	}, nil
}

// Hash returns the code hash this module was compiled from.
func (m *Module) Hash() envelope.CodeHash { return m.hash }

// Close releases the underlying wasmer module and store.
func (m *Module) Close() {
	m.module.Close()
	m.store.Close()
}
