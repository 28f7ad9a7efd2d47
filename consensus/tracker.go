package consensus

import (
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/opnet-labs/opnetd/errkind"
)

// Tracker holds an ordered table of consensus Params and answers
// ActiveAt(height) as a pure function of that table. A transition to
// Params.NextConsensus at NextConsensusBlock that finds
// IsReadyForNextConsensus false drives the tracker into lockdown: a
// halted state surfaced to every caller until an operator intervenes.
type Tracker struct {
	mu    sync.RWMutex
	table []Params // sorted ascending by EnabledAtBlock

	lockedDown    bool
	lockdownError error
}

// NewTracker builds a Tracker over table, which must contain at least
// one entry enabled at block 0. The table is copied and sorted; the
// caller's slice is never retained.
func NewTracker(table []Params) (*Tracker, error) {
	if len(table) == 0 {
		return nil, errkind.New(errkind.KindConsensus, "EmptyTable", true, nil)
	}
	sorted := append([]Params(nil), table...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].EnabledAtBlock < sorted[j].EnabledAtBlock })
	if sorted[0].EnabledAtBlock != 0 {
		return nil, errkind.New(errkind.KindConsensus, "MissingGenesisEntry", true, nil)
	}
	return &Tracker{table: sorted}, nil
}

// LoadOverrides parses a YAML file of []Params, the same
// embed-a-table-then-override-from-disk pattern chaincfg uses for
// per-network defaults.
func LoadOverrides(path string) ([]Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errkind.New(errkind.KindConsensus, "OverrideFileUnreadable", true, err)
	}
	var table []Params
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, errkind.New(errkind.KindConsensus, "OverrideFileInvalid", true, err)
	}
	return table, nil
}

// ActiveAt returns the Params with the maximum EnabledAtBlock <=
// height. It does not evaluate pending transitions itself: once
// CheckTransition has put the tracker into lockdown, every call
// returns that error instead of a Params.
func (t *Tracker) ActiveAt(height uint64) (Params, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.lockedDown {
		return Params{}, t.lockdownError
	}

	active := t.table[0]
	for _, p := range t.table {
		if p.EnabledAtBlock > height {
			break
		}
		active = p
	}
	return active, nil
}

// CheckTransition evaluates whether height has reached the active
// consensus's NextConsensusBlock and, if so, enforces
// IsReadyForNextConsensus. A not-ready transition is fatal: the
// tracker enters lockdown and returns errkind.KindConsensus("NotReady")
// from every subsequent ActiveAt call, matching S6.
func (t *Tracker) CheckTransition(height uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.lockedDown {
		return t.lockdownError
	}

	active := t.table[0]
	for _, p := range t.table {
		if p.EnabledAtBlock > height {
			break
		}
		active = p
	}

	if active.NextConsensus == "" || active.NextConsensusBlock > height {
		return nil
	}
	if !active.IsReadyForNextConsensus {
		t.lockedDown = true
		t.lockdownError = errkind.New(errkind.KindConsensus, "NotReady", true, nil)
		log.Errorf("consensus transition to %q at height %d not ready, entering lockdown", active.NextConsensus, active.NextConsensusBlock)
		return t.lockdownError
	}
	return nil
}

// InLockdown reports whether the tracker has halted, and why.
func (t *Tracker) InLockdown() (bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lockedDown, t.lockdownError
}
