package main

import (
	"fmt"
	"sync"

	"github.com/empower1/enclavecore/internal/hostapi"
)

// memContext is a minimal in-memory hostapi.Context for exercising the
// dispatcher from the command line. It is not part of the core: a real
// host supplies its own Context backed by chain state. Its storage-map
// shape is adapted from the teacher's contract-storage map
// (internal/state/contract_state.go StoreContractCode/GetContractStorage).
type memContext struct {
	mu      sync.RWMutex
	storage map[string][]byte
}

var _ hostapi.Context = (*memContext)(nil)

func newMemContext() *memContext {
	return &memContext{storage: make(map[string][]byte)}
}

func (c *memContext) ReadDB(key []byte) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.storage[string(key)]
	if !ok {
		return nil, nil
	}
	return v, nil
}

func (c *memContext) WriteDB(key, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.storage[string(key)] = append([]byte(nil), value...)
	return nil
}

func (c *memContext) RemoveDB(key []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.storage, string(key))
	return nil
}

func (c *memContext) CanonicalizeAddress(human string) ([]byte, error) {
	return []byte(human), nil
}

func (c *memContext) HumanizeAddress(canonical []byte) (string, error) {
	return string(canonical), nil
}

func (c *memContext) QueryChain(request []byte) ([]byte, error) {
	return nil, fmt.Errorf("query_chain not supported by demo harness context")
}
