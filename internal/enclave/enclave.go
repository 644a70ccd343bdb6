// Package enclave holds the two pieces of process-wide state the core is
// allowed to keep across calls: the enclave master secret and the compiled
// module cache. Both are created at a single initialization point, modeled
// as a lazily-initialized singleton behind accessors; afterwards the master
// secret never changes and the cache only gains entries, the
// way the teacher's ContractRegistry guards its own process-wide state.
package enclave

import (
	"crypto/rand"
	"sync"

	"github.com/empower1/enclavecore/internal/coreerr"
	"github.com/empower1/enclavecore/internal/engine"
	"github.com/empower1/enclavecore/internal/envelope"
)

// Mode distinguishes a simulated enclave (development, no real hardware
// isolation) from one backed by actual TEE hardware. The core treats both
// identically; attestation's cryptographic proof generation is out of
// scope here and lives entirely in the host.
type Mode int

const (
	ModeSimulation Mode = iota
	ModeHardware
)

type state struct {
	mu            sync.RWMutex
	mode          Mode
	masterSecret  []byte
	moduleCache   map[envelope.CodeHash]*engine.Module
}

var (
	once    sync.Once
	current *state
)

// Init performs the enclave's single initialization point. Calling it more
// than once is a no-op: the master secret, once created, is immutable for
// the process lifetime, and the cache is never replaced.
func Init(mode Mode) error {
	var initErr error
	once.Do(func() {
		secret := make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			initErr = coreerr.Wrap(coreerr.KindFailedFunctionCall, "failed to seed master secret: %w", err)
			return
		}
		current = &state{
			mode:         mode,
			masterSecret: secret,
			moduleCache:  make(map[envelope.CodeHash]*engine.Module),
		}
	})
	return initErr
}

func mustCurrent() *state {
	if current == nil {
		panic("enclave: Init was never called")
	}
	return current
}

// MasterSecret returns the enclave's immutable master secret.
func MasterSecret() []byte {
	return mustCurrent().masterSecret
}

// CurrentMode reports whether this process is a simulated or hardware
// enclave.
func CurrentMode() Mode {
	return mustCurrent().mode
}

// GetOrCompileModule returns the cached Module for wasm's code hash,
// compiling and caching it on first use. This is the only path by which
// wasm is compiled; the dispatcher never calls engine.Compile directly.
func GetOrCompileModule(wasm []byte) (*engine.Module, error) {
	hash := envelope.HashCode(wasm)
	s := mustCurrent()

	s.mu.RLock()
	if m, ok := s.moduleCache[hash]; ok {
		s.mu.RUnlock()
		return m, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.moduleCache[hash]; ok {
		return m, nil
	}
	m, err := engine.Compile(wasm)
	if err != nil {
		return nil, err
	}
	s.moduleCache[hash] = m
	return m, nil
}
