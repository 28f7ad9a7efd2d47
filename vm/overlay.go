package vm

import "github.com/opnet-labs/opnetd/contract"

// SnapshotReader is the read side of the storage engine a frame falls
// back to once the overlay and preload set are both exhausted. It is
// narrowed to exactly what execution needs so the vm package never
// imports the storage engine directly.
type SnapshotReader interface {
	GetPointer(contract contract.Address, pointer contract.Pointer, atHeight uint64) (*contract.StorageEntry, error)
}

// Overlay is a per-frame write buffer shared by a frame and every
// child frame spawned from it via external calls. Reads consult the
// overlay first, then the frame's preload set, then the snapshot;
// writes only ever land in the overlay. The Block Processor promotes
// overlay deltas to the snapshot after a successful top-level commit.
type Overlay struct {
	writes map[StorageKey]contract.Value
	newKey map[StorageKey]bool
}

// NewOverlay returns an empty overlay for a new top-level frame.
func NewOverlay() *Overlay {
	return &Overlay{
		writes: make(map[StorageKey]contract.Value),
		newKey: make(map[StorageKey]bool),
	}
}

// Get returns the overlay's value for key, if any has been written.
func (o *Overlay) Get(key StorageKey) (contract.Value, bool) {
	v, ok := o.writes[key]
	return v, ok
}

// Set records a write. isNewEntry reports whether key had never been
// written in this frame tree before, which is what storage-cost gas
// accounting keys off.
func (o *Overlay) Set(key StorageKey, value contract.Value) (isNewEntry bool) {
	_, existed := o.writes[key]
	o.writes[key] = value
	if !existed {
		o.newKey[key] = true
	}
	return !existed
}

// Checkpoint captures the overlay's current writes so a failed child
// frame's writes can be rolled back without disturbing its parent's.
func (o *Overlay) Checkpoint() map[StorageKey]contract.Value {
	return o.Snapshot()
}

// Rollback restores the overlay to a previously captured checkpoint.
func (o *Overlay) Rollback(checkpoint map[StorageKey]contract.Value) {
	o.writes = make(map[StorageKey]contract.Value, len(checkpoint))
	for k, v := range checkpoint {
		o.writes[k] = v
	}
}

// Snapshot returns a defensive copy of everything written so far,
// keyed the way ExecutionResult.StorageDeltas is reported.
func (o *Overlay) Snapshot() map[StorageKey]contract.Value {
	out := make(map[StorageKey]contract.Value, len(o.writes))
	for k, v := range o.writes {
		out[k] = v
	}
	return out
}

// Read resolves key through overlay, then preload, then the snapshot
// reader at the frame's block height.
func Read(overlay *Overlay, preload map[StorageKey]contract.Value, reader SnapshotReader, height uint64, key StorageKey) (contract.Value, bool, error) {
	if v, ok := overlay.Get(key); ok {
		return v, true, nil
	}
	if v, ok := preload[key]; ok {
		return v, true, nil
	}
	if reader == nil {
		return contract.Value{}, false, nil
	}
	entry, err := reader.GetPointer(key.Contract, key.Pointer, height)
	if err != nil {
		return contract.Value{}, false, err
	}
	if entry == nil {
		return contract.Value{}, false, nil
	}
	return entry.Value, true, nil
}
