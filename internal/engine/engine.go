package engine

import (
	"github.com/wasmerio/wasmer-go/wasmer"

	"github.com/empower1/enclavecore/internal/coreerr"
	"github.com/empower1/enclavecore/internal/envelope"
	"github.com/empower1/enclavecore/internal/hostapi"
)

// Operation identifies which CosmWasm entry point a call is driving.
type Operation int

const (
	OperationInit Operation = iota
	OperationHandle
	OperationQuery
)

// ContractInstance carries the per-call parameters passed to an Engine
// beyond the compiled Module: the host context, the gas limit, which entry
// point is being driven, the user's nonce/public key, and the API version.
// It carries no contract key, so the Engine's host callbacks reach the host
// Context without any per-contract key. Start reads only Context and
// GasLimit.
type ContractInstance struct {
	Context       hostapi.Context
	GasLimit      uint64
	Operation     Operation
	Nonce         [32]byte
	UserPublicKey [32]byte
	ApiVersion    envelope.ApiVersion
}

// Engine owns one wasmer instance for the duration of a single call. Memory
// is released when Close is called at the end of the call, matching the
// teacher's per-execution engine/store lifecycle.
type Engine struct {
	module   *Module
	instance *wasmer.Instance
	memory   *wasmer.Memory
	env      *hostEnv
	gas      *GasTank
}

// Start builds a fresh wasmer instance bound to module and ci, registering
// the host-call imports. The cache (internal/enclave) is the sole authority
// on compilation; Start only ever instantiates an already-compiled Module.
func Start(module *Module, ci *ContractInstance) (*Engine, error) {
	gas := NewGasTank(ci.GasLimit)
	he := &hostEnv{ctx: ci.Context, gas: gas}
	importObject := buildImportObject(module.store, he)

	instance, err := wasmer.NewInstance(module.module, importObject)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.KindFailedFunctionCall, "wasm instantiate failed: %w", err)
	}
	memory, err := instance.Exports.GetMemory("memory")
	if err != nil {
		instance.Close()
		return nil, coreerr.Wrap(coreerr.KindFailedFunctionCall, "wasm module exports no memory: %w", err)
	}
	return &Engine{module: module, instance: instance, memory: memory, env: he, gas: gas}, nil
}

// Close releases the wasmer instance backing this Engine.
func (e *Engine) Close() {
	e.instance.Close()
}

// GasUsed returns the gas consumed so far by this Engine, clamped to its
// limit.
func (e *Engine) GasUsed() uint64 {
	return e.gas.Consumed()
}

// WriteToMemory stages data into the contract's linear memory via its
// "allocate" export and returns the pointer the contract can read from.
func (e *Engine) WriteToMemory(data []byte) (int32, error) {
	allocate, err := e.instance.Exports.GetFunction("allocate")
	if err != nil {
		return 0, coreerr.Wrap(coreerr.KindFailedFunctionCall, "contract exports no allocate: %w", err)
	}
	raw, err := allocate(int32(len(data)))
	if err != nil {
		return 0, coreerr.Wrap(coreerr.KindFailedFunctionCall, "allocate call failed: %w", err)
	}
	ptr, ok := raw.(int32)
	if !ok {
		return 0, coreerr.Wrap(coreerr.KindFailedFunctionCall, "allocate returned non-i32 value")
	}
	mem := e.memory.Data()
	if int(ptr)+len(data) > len(mem) {
		return 0, coreerr.Wrap(coreerr.KindFailedFunctionCall, "allocated region out of bounds")
	}
	copy(mem[ptr:], data)
	return ptr, nil
}

// ExtractVector reads a length-prefixed CosmWasm region back out of linear
// memory. CosmWasm regions are { offset u32, capacity u32, length u32 } laid
// out at ptr.
func (e *Engine) ExtractVector(ptr int32) ([]byte, error) {
	mem := e.memory.Data()
	if ptr < 0 || int(ptr)+12 > len(mem) {
		return nil, coreerr.Wrap(coreerr.KindFailedFunctionCall, "region pointer out of bounds")
	}
	offset := le32(mem[ptr : ptr+4])
	length := le32(mem[ptr+8 : ptr+12])
	if int(offset)+int(length) > len(mem) {
		return nil, coreerr.Wrap(coreerr.KindFailedFunctionCall, "region data out of bounds")
	}
	out := make([]byte, length)
	copy(out, mem[offset:offset+length])
	return out, nil
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func (e *Engine) callEntryPoint(name string, ptrs ...int32) (int32, error) {
	fn, err := e.instance.Exports.GetFunction(name)
	if err != nil {
		return 0, coreerr.Wrap(coreerr.KindFailedFunctionCall, "contract exports no %s: %w", name, err)
	}
	args := make([]interface{}, len(ptrs))
	for i, p := range ptrs {
		args[i] = p
	}
	raw, err := fn(args...)
	if err != nil {
		if _, ok := err.(*wasmer.TrapError); ok {
			return 0, coreerr.Wrap(coreerr.KindFailedFunctionCall, "wasm trap in %s: %w", name, err)
		}
		return 0, coreerr.Wrap(coreerr.KindFailedFunctionCall, "%s execution failed: %w", name, err)
	}
	ptr, ok := raw.(int32)
	if !ok {
		return 0, coreerr.Wrap(coreerr.KindFailedFunctionCall, "%s returned non-i32 value", name)
	}
	return ptr, nil
}

// Init invokes the contract's init export with pointers to the staged env
// and message buffers, returning a pointer to the output region.
func (e *Engine) Init(envPtr, msgPtr int32) (int32, error) {
	return e.callEntryPoint("init", envPtr, msgPtr)
}

// Handle invokes the contract's handle export.
func (e *Engine) Handle(envPtr, msgPtr int32) (int32, error) {
	return e.callEntryPoint("handle", envPtr, msgPtr)
}

// Query invokes the contract's query export. Queries receive no env.
func (e *Engine) Query(msgPtr int32) (int32, error) {
	return e.callEntryPoint("query", msgPtr)
}
