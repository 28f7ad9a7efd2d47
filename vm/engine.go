package vm

import (
	"github.com/wasmerio/wasmer-go/wasmer"

	"github.com/opnet-labs/opnetd/contract"
)

// Limits is the subset of consensus parameters execution enforces.
// The caller (the consensus tracker, via active_at(height)) resolves
// these before invoking Execute; the engine never looks height up
// itself.
type Limits struct {
	MaxCallDepth       uint32
	MaxDeployDepth     uint32
	MaxEventLen        uint64
	MaxReceiptLen      uint64
	StorageCostPerByte uint64
}

// Engine runs contract bytecode under a shared wasmer engine instance.
// One Engine is reused across every frame in a block; frames never
// share a wasmer.Store, since a store is not safe for concurrent use
// across recursive calls.
type Engine struct {
	wasmEngine *wasmer.Engine
	reader     SnapshotReader
	limits     Limits
	resolver   ExternalCallResolver
}

// NewEngine builds an Engine reading through reader and enforcing
// limits. resolver may be nil, in which case external calls always
// fail closed; the indexer wires a real resolver once the contract
// sub-store exists.
func NewEngine(reader SnapshotReader, limits Limits, resolver ExternalCallResolver) *Engine {
	return &Engine{wasmEngine: wasmer.NewEngine(), reader: reader, limits: limits, resolver: resolver}
}

// Execute runs bytecode for frame. It never returns a non-nil error
// for contract-level failures; those are reported as
// ExecutionResult.Status == StatusReverted. A malformed module, a
// failed instantiation, missing exports and traps are reported the
// same way, so the returned error is always nil.
func (e *Engine) Execute(frame *Frame, bytecode []byte) (*ExecutionResult, error) {
	// State progresses Created -> Loading -> Running -> (Reverted |
	// Completed); each branch below returns from the state it names
	// rather than tracking a field, since nothing outlives this call.
	if frame.CallDepth > e.limits.MaxCallDepth {
		return revertedResult(frame, "DepthExceeded"), nil
	}
	if frame.IsConstructor && frame.DeployDepth > e.limits.MaxDeployDepth {
		return revertedResult(frame, "DepthExceeded"), nil
	}

	store := wasmer.NewStore(e.wasmEngine)
	module, err := wasmer.NewModule(store, bytecode)
	if err != nil {
		return revertedResult(frame, "invalid bytecode: "+err.Error()), nil
	}

	meter := NewGasMeter(frame.MaxGas, frame.GasUsedSoFar)
	hctx := &hostContext{
		engine: e,
		frame:  frame,
		meter:  meter,
		store:  store,
	}

	imports := e.registerHost(store, hctx)
	instance, err := wasmer.NewInstance(module, imports)
	if err != nil {
		return revertedResult(frame, "instantiate: "+err.Error()), nil
	}

	mem, err := instance.Exports.GetMemory("memory")
	if err != nil {
		return revertedResult(frame, "missing memory export"), nil
	}
	hctx.mem = mem

	entry, err := instance.Exports.GetFunction("_start")
	if err != nil {
		return revertedResult(frame, "missing _start export"), nil
	}

	_, callErr := entry()

	if hctx.reverted {
		return &ExecutionResult{
			Status:       StatusReverted,
			GasUsed:      meter.Used(),
			RevertReason: hctx.revertReason,
		}, nil
	}
	if callErr != nil {
		return revertedResultWithGas(meter.Used(), "trap: "+callErr.Error()), nil
	}
	if hctx.outOfGas {
		return revertedResultWithGas(frame.MaxGas, "OutOfGas"), nil
	}

	if uint64(len(hctx.returnData)) > e.limits.MaxReceiptLen {
		return revertedResultWithGas(meter.Used(), "ReceiptTooLarge"), nil
	}
	for _, ev := range hctx.events {
		if uint64(len(ev.Data)) > e.limits.MaxEventLen {
			return revertedResultWithGas(meter.Used(), "ReceiptTooLarge"), nil
		}
	}

	return &ExecutionResult{
		Status:            StatusCompleted,
		GasUsed:           meter.Used(),
		Events:            hctx.events,
		StorageDeltas:     frame.Overlay.Snapshot(),
		ReturnData:        hctx.returnData,
		DeployedContracts: hctx.deployed,
	}, nil
}

func revertedResult(frame *Frame, reason string) *ExecutionResult {
	return &ExecutionResult{
		Status:       StatusReverted,
		GasUsed:      frame.GasUsedSoFar,
		RevertReason: reason,
	}
}

func revertedResultWithGas(gasUsed uint64, reason string) *ExecutionResult {
	return &ExecutionResult{
		Status:       StatusReverted,
		GasUsed:      gasUsed,
		RevertReason: reason,
	}
}

// hostContext is the Go-side state backing the "env" imports a
// contract module links against.
type hostContext struct {
	engine *Engine
	frame  *Frame
	meter  *GasMeter
	store  *wasmer.Store
	mem    *wasmer.Memory

	events       []Event
	returnData   []byte
	deployed     []contract.Contract
	reverted     bool
	revertReason string
	outOfGas     bool
}

func (h *hostContext) read(ptr, length int32) []byte {
	data := h.mem.Data()
	if int(ptr) < 0 || int(ptr)+int(length) > len(data) {
		return nil
	}
	out := make([]byte, length)
	copy(out, data[ptr:int(ptr)+int(length)])
	return out
}

func (h *hostContext) write(ptr int32, data []byte) {
	mem := h.mem.Data()
	if int(ptr) < 0 || int(ptr)+len(data) > len(mem) {
		return
	}
	copy(mem[ptr:], data)
}

func (e *Engine) registerHost(store *wasmer.Store, h *hostContext) *wasmer.ImportObject {
	imports := wasmer.NewImportObject()

	i32 := wasmer.ValueKind(wasmer.I32)

	hostConsumeGas := wasmer.NewFunction(store,
		wasmer.NewFunctionType(wasmer.NewValueTypes(i32), wasmer.NewValueTypes(i32)),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			amount := uint64(args[0].I32())
			if err := h.meter.Consume(amount); err != nil {
				h.outOfGas = true
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			return []wasmer.Value{wasmer.NewI32(0)}, nil
		})

	hostStorageLoad := wasmer.NewFunction(store,
		wasmer.NewFunctionType(wasmer.NewValueTypes(i32, i32), wasmer.NewValueTypes(i32)),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			pointerPtr, outPtr := args[0].I32(), args[1].I32()
			var pointer contract.Pointer
			copy(pointer[:], h.read(pointerPtr, 32))

			key := StorageKey{Contract: h.frame.ContractAddress, Pointer: pointer}
			value, found, err := Read(h.frame.Overlay, h.frame.PreloadStorage, e.reader, h.frame.BlockHeight, key)
			if err != nil || !found {
				return []wasmer.Value{wasmer.NewI32(0)}, nil
			}
			h.write(outPtr, value[:])
			return []wasmer.Value{wasmer.NewI32(1)}, nil
		})

	hostStorageStore := wasmer.NewFunction(store,
		wasmer.NewFunctionType(wasmer.NewValueTypes(i32, i32), wasmer.NewValueTypes(i32)),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			pointerPtr, valuePtr := args[0].I32(), args[1].I32()
			var pointer contract.Pointer
			var value contract.Value
			copy(pointer[:], h.read(pointerPtr, 32))
			copy(value[:], h.read(valuePtr, 32))

			key := StorageKey{Contract: h.frame.ContractAddress, Pointer: pointer}
			isNew := h.frame.Overlay.Set(key, value)
			if isNew {
				cost := e.limits.StorageCostPerByte * 32
				if err := h.meter.Consume(cost); err != nil {
					h.outOfGas = true
					return []wasmer.Value{wasmer.NewI32(-1)}, nil
				}
			}
			return []wasmer.Value{wasmer.NewI32(0)}, nil
		})

	hostEmitEvent := wasmer.NewFunction(store,
		wasmer.NewFunctionType(wasmer.NewValueTypes(i32, i32, i32, i32), wasmer.NewValueTypes(i32)),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			topicPtr, topicLen, dataPtr, dataLen := args[0].I32(), args[1].I32(), args[2].I32(), args[3].I32()
			h.events = append(h.events, Event{
				Topic: h.read(topicPtr, topicLen),
				Data:  h.read(dataPtr, dataLen),
			})
			return []wasmer.Value{wasmer.NewI32(0)}, nil
		})

	hostReturn := wasmer.NewFunction(store,
		wasmer.NewFunctionType(wasmer.NewValueTypes(i32, i32), wasmer.NewValueTypes()),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			h.returnData = h.read(args[0].I32(), args[1].I32())
			return []wasmer.Value{}, nil
		})

	hostRevert := wasmer.NewFunction(store,
		wasmer.NewFunctionType(wasmer.NewValueTypes(i32, i32), wasmer.NewValueTypes()),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			h.reverted = true
			h.revertReason = string(h.read(args[0].I32(), args[1].I32()))
			return []wasmer.Value{}, nil
		})

	hostCall := wasmer.NewFunction(store,
		wasmer.NewFunctionType(wasmer.NewValueTypes(i32, i32, i32, i32, i32), wasmer.NewValueTypes(i32)),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			addrPtr, calldataPtr, calldataLen, outPtr, outMaxLen := args[0].I32(), args[1].I32(), args[2].I32(), args[3].I32(), args[4].I32()
			return []wasmer.Value{wasmer.NewI32(e.hostExternalCall(h, addrPtr, calldataPtr, calldataLen, outPtr, outMaxLen))}, nil
		})

	imports.Register("env", map[string]wasmer.IntoExtern{
		"host_consume_gas": hostConsumeGas,
		"host_storage_load": hostStorageLoad,
		"host_storage_store": hostStorageStore,
		"host_emit_event":  hostEmitEvent,
		"host_return":      hostReturn,
		"host_revert":      hostRevert,
		"host_call":        hostCall,
	})

	return imports
}

// hostExternalCall is invoked from a contract's host_call import. The
// child frame shares the parent's overlay so a successful child's
// writes are visible to the parent immediately; a reverted child's
// writes are rolled back to the pre-call checkpoint, but its gas
// consumption is kept on the shared meter regardless.
func (e *Engine) hostExternalCall(h *hostContext, addrPtr, calldataPtr, calldataLen, outPtr, outMaxLen int32) int32 {
	var target contract.Address
	copy(target[:], h.read(addrPtr, 32))
	calldata := h.read(calldataPtr, calldataLen)

	if e.resolver == nil {
		return -1
	}
	childBytecode, ok := e.resolver.ResolveBytecode(target)
	if !ok {
		return -1
	}

	checkpoint := h.frame.Overlay.Checkpoint()
	child := &Frame{
		ContractAddress: target,
		Calldata:        calldata,
		TxOrigin:        h.frame.TxOrigin,
		MsgSender:       h.frame.ContractAddress,
		BlockHeight:     h.frame.BlockHeight,
		BlockMedianTime: h.frame.BlockMedianTime,
		MaxGas:          h.frame.MaxGas,
		GasUsedSoFar:    h.meter.Used(),
		CallDepth:       h.frame.CallDepth + 1,
		DeployDepth:     h.frame.DeployDepth,
		Overlay:         h.frame.Overlay,
		PreloadStorage:  h.frame.PreloadStorage,
	}

	result, err := e.Execute(child, childBytecode)
	if err != nil {
		return -1
	}

	h.meter.used = result.GasUsed
	if result.Status == StatusReverted {
		h.frame.Overlay.Rollback(checkpoint)
		return -1
	}

	n := int32(len(result.ReturnData))
	if n > outMaxLen {
		n = outMaxLen
	}
	h.write(outPtr, result.ReturnData[:n])
	return n
}

// ExternalCallResolver supplies the bytecode for a contract address a
// running frame calls into. The indexer wires this to the contract
// sub-store.
type ExternalCallResolver interface {
	ResolveBytecode(addr contract.Address) ([]byte, bool)
}
