package dispatcher

// gasGuard models the "coalesced error handling" design note: once an
// Engine exists, used_gas must be written on every exit from the call,
// exactly once, regardless of which step fails. Before an Engine exists,
// used_gas is left untouched.
type gasGuard struct {
	usedGas *uint64
	gasUsed func() uint64
}

func newGasGuard(usedGas *uint64) *gasGuard {
	return &gasGuard{usedGas: usedGas}
}

// bind attaches the Engine's gas accessor once the Engine is constructed.
// Before bind is called, release is a no-op.
func (g *gasGuard) bind(gasUsed func() uint64) {
	g.gasUsed = gasUsed
}

// release is deferred immediately after bind succeeds (i.e. from the moment
// EngineReady is reached) so it fires on every subsequent return path,
// success or failure.
func (g *gasGuard) release() {
	if g.gasUsed == nil {
		return
	}
	*g.usedGas = g.gasUsed()
}
