package vm

// GasMeter enforces a strictly non-increasing budget: every metered
// operation is checked before it is applied, never after.
type GasMeter struct {
	used  uint64
	limit uint64
}

// NewGasMeter builds a meter already carrying usedSoFar, the gas a
// parent frame has charged before handing control to this one.
func NewGasMeter(limit, usedSoFar uint64) *GasMeter {
	return &GasMeter{used: usedSoFar, limit: limit}
}

// Consume charges amount against the budget. It fails closed: on
// overflow the meter's used counter is left unchanged so a caller that
// ignores the error cannot under-charge by retrying.
func (g *GasMeter) Consume(amount uint64) error {
	if g.used+amount > g.limit {
		return errOutOfGas
	}
	g.used += amount
	return nil
}

// Used returns total gas charged against this meter so far.
func (g *GasMeter) Used() uint64 { return g.used }

// Remaining returns the unspent budget.
func (g *GasMeter) Remaining() uint64 { return g.limit - g.used }
