package engine

import (
	"github.com/wasmerio/wasmer-go/wasmer"

	"github.com/empower1/enclavecore/internal/hostapi"
)

// Host-function result codes returned to the wasm guest. These are internal
// to the Engine Adapter; the dispatcher never sees them directly.
const (
	errCodeSuccess             int32 = 0
	errCodeFailure             int32 = 1
	errCodeInvalidMemoryAccess int32 = 2
	errCodeBufferTooSmall      int32 = 3
)

// hostEnv is the WasmerEnv passed to every registered host import. It binds
// the instance's linear memory (available only after OnInstantiated fires)
// to the opaque hostapi.Context the dispatcher supplied for this call.
type hostEnv struct {
	ctx     hostapi.Context
	gas     *GasTank
	memory  *wasmer.Memory
	instance *wasmer.Instance
}

var _ wasmer.WasmerEnv = (*hostEnv)(nil)

func (e *hostEnv) OnInstantiated(instance *wasmer.Instance) error {
	memory, err := instance.Exports.GetMemory("memory")
	if err != nil {
		return err
	}
	e.memory = memory
	e.instance = instance
	return nil
}

func readMemory(e *hostEnv, ptr, length int32) ([]byte, bool) {
	data := e.memory.Data()
	if ptr < 0 || length < 0 || int(ptr)+int(length) > len(data) {
		return nil, false
	}
	return data[ptr : ptr+length], true
}

func writeMemory(e *hostEnv, ptr int32, value []byte) bool {
	data := e.memory.Data()
	if ptr < 0 || int(ptr)+len(value) > len(data) {
		return false
	}
	copy(data[ptr:], value)
	return true
}

const hostCallGasCost = 10

func hostReadDB(e *hostEnv) func([]wasmer.Value) ([]wasmer.Value, error) {
	return func(args []wasmer.Value) ([]wasmer.Value, error) {
		if err := e.gas.Consume(hostCallGasCost); err != nil {
			return []wasmer.Value{wasmer.NewI32(errCodeFailure)}, nil
		}
		keyPtr, keyLen := args[0].I32(), args[1].I32()
		outPtr, outCap := args[2].I32(), args[3].I32()
		key, ok := readMemory(e, keyPtr, keyLen)
		if !ok {
			return []wasmer.Value{wasmer.NewI32(errCodeInvalidMemoryAccess)}, nil
		}
		value, err := e.ctx.ReadDB(key)
		if err != nil {
			return []wasmer.Value{wasmer.NewI32(errCodeFailure)}, nil
		}
		if int32(len(value)) > outCap {
			return []wasmer.Value{wasmer.NewI32(errCodeBufferTooSmall)}, nil
		}
		if !writeMemory(e, outPtr, value) {
			return []wasmer.Value{wasmer.NewI32(errCodeInvalidMemoryAccess)}, nil
		}
		return []wasmer.Value{wasmer.NewI32(int32(len(value)))}, nil
	}
}

func hostWriteDB(e *hostEnv) func([]wasmer.Value) ([]wasmer.Value, error) {
	return func(args []wasmer.Value) ([]wasmer.Value, error) {
		if err := e.gas.Consume(hostCallGasCost); err != nil {
			return []wasmer.Value{wasmer.NewI32(errCodeFailure)}, nil
		}
		keyPtr, keyLen := args[0].I32(), args[1].I32()
		valPtr, valLen := args[2].I32(), args[3].I32()
		key, ok := readMemory(e, keyPtr, keyLen)
		if !ok {
			return []wasmer.Value{wasmer.NewI32(errCodeInvalidMemoryAccess)}, nil
		}
		value, ok := readMemory(e, valPtr, valLen)
		if !ok {
			return []wasmer.Value{wasmer.NewI32(errCodeInvalidMemoryAccess)}, nil
		}
		if err := e.ctx.WriteDB(key, value); err != nil {
			return []wasmer.Value{wasmer.NewI32(errCodeFailure)}, nil
		}
		return []wasmer.Value{wasmer.NewI32(errCodeSuccess)}, nil
	}
}

func hostRemoveDB(e *hostEnv) func([]wasmer.Value) ([]wasmer.Value, error) {
	return func(args []wasmer.Value) ([]wasmer.Value, error) {
		if err := e.gas.Consume(hostCallGasCost); err != nil {
			return []wasmer.Value{wasmer.NewI32(errCodeFailure)}, nil
		}
		keyPtr, keyLen := args[0].I32(), args[1].I32()
		key, ok := readMemory(e, keyPtr, keyLen)
		if !ok {
			return []wasmer.Value{wasmer.NewI32(errCodeInvalidMemoryAccess)}, nil
		}
		if err := e.ctx.RemoveDB(key); err != nil {
			return []wasmer.Value{wasmer.NewI32(errCodeFailure)}, nil
		}
		return []wasmer.Value{wasmer.NewI32(errCodeSuccess)}, nil
	}
}

func hostCanonicalizeAddress(e *hostEnv) func([]wasmer.Value) ([]wasmer.Value, error) {
	return func(args []wasmer.Value) ([]wasmer.Value, error) {
		if err := e.gas.Consume(hostCallGasCost); err != nil {
			return []wasmer.Value{wasmer.NewI32(errCodeFailure)}, nil
		}
		humanPtr, humanLen := args[0].I32(), args[1].I32()
		outPtr, outCap := args[2].I32(), args[3].I32()
		human, ok := readMemory(e, humanPtr, humanLen)
		if !ok {
			return []wasmer.Value{wasmer.NewI32(errCodeInvalidMemoryAccess)}, nil
		}
		canonical, err := e.ctx.CanonicalizeAddress(string(human))
		if err != nil {
			return []wasmer.Value{wasmer.NewI32(errCodeFailure)}, nil
		}
		if int32(len(canonical)) > outCap {
			return []wasmer.Value{wasmer.NewI32(errCodeBufferTooSmall)}, nil
		}
		if !writeMemory(e, outPtr, canonical) {
			return []wasmer.Value{wasmer.NewI32(errCodeInvalidMemoryAccess)}, nil
		}
		return []wasmer.Value{wasmer.NewI32(int32(len(canonical)))}, nil
	}
}

func hostHumanizeAddress(e *hostEnv) func([]wasmer.Value) ([]wasmer.Value, error) {
	return func(args []wasmer.Value) ([]wasmer.Value, error) {
		if err := e.gas.Consume(hostCallGasCost); err != nil {
			return []wasmer.Value{wasmer.NewI32(errCodeFailure)}, nil
		}
		canonPtr, canonLen := args[0].I32(), args[1].I32()
		outPtr, outCap := args[2].I32(), args[3].I32()
		canonical, ok := readMemory(e, canonPtr, canonLen)
		if !ok {
			return []wasmer.Value{wasmer.NewI32(errCodeInvalidMemoryAccess)}, nil
		}
		human, err := e.ctx.HumanizeAddress(canonical)
		if err != nil {
			return []wasmer.Value{wasmer.NewI32(errCodeFailure)}, nil
		}
		if int32(len(human)) > outCap {
			return []wasmer.Value{wasmer.NewI32(errCodeBufferTooSmall)}, nil
		}
		if !writeMemory(e, outPtr, []byte(human)) {
			return []wasmer.Value{wasmer.NewI32(errCodeInvalidMemoryAccess)}, nil
		}
		return []wasmer.Value{wasmer.NewI32(int32(len(human)))}, nil
	}
}

func hostQueryChain(e *hostEnv) func([]wasmer.Value) ([]wasmer.Value, error) {
	return func(args []wasmer.Value) ([]wasmer.Value, error) {
		if err := e.gas.Consume(hostCallGasCost); err != nil {
			return []wasmer.Value{wasmer.NewI32(errCodeFailure)}, nil
		}
		reqPtr, reqLen := args[0].I32(), args[1].I32()
		outPtr, outCap := args[2].I32(), args[3].I32()
		req, ok := readMemory(e, reqPtr, reqLen)
		if !ok {
			return []wasmer.Value{wasmer.NewI32(errCodeInvalidMemoryAccess)}, nil
		}
		resp, err := e.ctx.QueryChain(req)
		if err != nil {
			return []wasmer.Value{wasmer.NewI32(errCodeFailure)}, nil
		}
		if int32(len(resp)) > outCap {
			return []wasmer.Value{wasmer.NewI32(errCodeBufferTooSmall)}, nil
		}
		if !writeMemory(e, outPtr, resp) {
			return []wasmer.Value{wasmer.NewI32(errCodeInvalidMemoryAccess)}, nil
		}
		return []wasmer.Value{wasmer.NewI32(int32(len(resp)))}, nil
	}
}

func buildImportObject(store *wasmer.Store, env *hostEnv) *wasmer.ImportObject {
	io := wasmer.NewImportObject()
	io.Register("env", map[string]wasmer.IntoExtern{
		"read_db": wasmer.NewFunctionWithEnvironment(store,
			wasmer.NewFunctionType(wasmer.NewValueTypes(wasmer.I32, wasmer.I32, wasmer.I32, wasmer.I32), wasmer.NewValueTypes(wasmer.I32)),
			env, hostReadDB(env)),
		"write_db": wasmer.NewFunctionWithEnvironment(store,
			wasmer.NewFunctionType(wasmer.NewValueTypes(wasmer.I32, wasmer.I32, wasmer.I32, wasmer.I32), wasmer.NewValueTypes(wasmer.I32)),
			env, hostWriteDB(env)),
		"remove_db": wasmer.NewFunctionWithEnvironment(store,
			wasmer.NewFunctionType(wasmer.NewValueTypes(wasmer.I32, wasmer.I32), wasmer.NewValueTypes(wasmer.I32)),
			env, hostRemoveDB(env)),
		"canonicalize_address": wasmer.NewFunctionWithEnvironment(store,
			wasmer.NewFunctionType(wasmer.NewValueTypes(wasmer.I32, wasmer.I32, wasmer.I32, wasmer.I32), wasmer.NewValueTypes(wasmer.I32)),
			env, hostCanonicalizeAddress(env)),
		"humanize_address": wasmer.NewFunctionWithEnvironment(store,
			wasmer.NewFunctionType(wasmer.NewValueTypes(wasmer.I32, wasmer.I32, wasmer.I32, wasmer.I32), wasmer.NewValueTypes(wasmer.I32)),
			env, hostHumanizeAddress(env)),
		"query_chain": wasmer.NewFunctionWithEnvironment(store,
			wasmer.NewFunctionType(wasmer.NewValueTypes(wasmer.I32, wasmer.I32, wasmer.I32, wasmer.I32), wasmer.NewValueTypes(wasmer.I32)),
			env, hostQueryChain(env)),
	})
	return io
}
