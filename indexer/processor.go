// Package indexer is the Block Processor: it drives the block
// fetcher, transaction parser, sorter, and execution engine against
// one storage snapshot per height, committing at most once per height
// and retrying the whole attempt from height resolution on any
// transient failure.
package indexer

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/wire"

	"github.com/opnet-labs/opnetd/bus"
	"github.com/opnet-labs/opnetd/consensus"
	"github.com/opnet-labs/opnetd/contract"
	"github.com/opnet-labs/opnetd/contract/parser"
	"github.com/opnet-labs/opnetd/contract/sorter"
	"github.com/opnet-labs/opnetd/errkind"
	"github.com/opnet-labs/opnetd/rpcchain"
	"github.com/opnet-labs/opnetd/storage"
	"github.com/opnet-labs/opnetd/vm"
)

// Processor orchestrates one height's worth of work end to end. It
// holds no per-block state between calls; everything a single
// attempt needs is threaded through its own call stack, so a retried
// attempt starts clean.
type Processor struct {
	cfg Config
}

// NewProcessor builds a Processor over cfg, filling in conservative
// defaults for any retry/reorg bound left at zero.
func NewProcessor(cfg Config) *Processor {
	cfg.setDefaults()
	return &Processor{cfg: cfg}
}

// Run drives the processor forever, one height at a time, until ctx
// is cancelled or a fatal error halts the pipeline. Transient
// Upstream and Storage(Conflict) errors retry from height resolution
// (step 1) with exponential backoff, up to MaxRetries consecutive
// failures before giving up entirely.
func (p *Processor) Run(ctx context.Context) error {
	delay := p.cfg.RetryBaseDelay
	failures := 0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := p.step(ctx)
		if err == nil {
			failures = 0
			delay = p.cfg.RetryBaseDelay
			continue
		}

		if errkind.IsFatal(err) {
			return err
		}

		kind, ok := errkind.KindOf(err)
		if !ok || (kind != errkind.KindUpstream && kind != errkind.KindStorage) {
			return err
		}

		failures++
		if failures > p.cfg.MaxRetries {
			return err
		}
		log.Warnf("block processor retrying after %v (attempt %d/%d): %v", delay, failures, p.cfg.MaxRetries, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}

// step performs one full attempt at advancing the chain by exactly
// one height: resolve the next height, fetch its block, detect and
// handle reorgs, open a snapshot, process the block, and commit. A
// non-nil return is always one of the retry-classified errkind.Error
// kinds Run understands.
func (p *Processor) step(ctx context.Context) error {
	height := p.nextHeight()

	block, err := p.cfg.Fetcher.GetBlock(height)
	if err != nil {
		return err
	}

	if err := p.checkReorg(height, block); err != nil {
		return err
	}

	sn, err := p.cfg.Store.OpenSnapshot(height)
	if err != nil {
		return err
	}

	header, err := p.processBlock(sn, height, block)
	if err != nil {
		sn.Revert()
		return err
	}

	if err := p.cfg.Store.PutHeader(sn, *header); err != nil {
		sn.Revert()
		return err
	}

	if err := sn.Commit(); err != nil {
		sn.Revert()
		return err
	}

	log.Infof("committed block %d (%x)", height, header.Hash)
	p.notify(ctx, header)
	return nil
}

func (p *Processor) nextHeight() uint64 {
	tip, ok := p.cfg.Store.CommittedTip()
	if !ok {
		return 0
	}
	return tip + 1
}

// notify publishes NEW_BLOCK_NOTIFY on the bus, best-effort: a bus
// timeout or a nil bus never fails the commit that already happened.
func (p *Processor) notify(ctx context.Context, header *storage.BlockHeader) {
	if p.cfg.Bus == nil {
		return
	}
	notifyCtx, cancel := bus.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := p.cfg.Bus.Broadcast(notifyCtx, bus.WorkerIndexer, bus.NewBlockNotify, header); err != nil {
		log.Warnf("new block notify for height %d did not reach every worker: %v", header.Height, err)
	}
}

// checkReorg compares the fetched block's declared parent against the
// header already committed at height-1. A mismatch means the upstream
// chain has reorganized since the last commit.
func (p *Processor) checkReorg(height uint64, block *rpcchain.BlockData) error {
	if height == 0 {
		return nil
	}
	prev, err := p.cfg.Store.GetHeader(height - 1)
	if err != nil {
		return err
	}
	if prev == nil {
		return errkind.New(errkind.KindStorage, "PreconditionViolation", true, nil)
	}
	if [32]byte(block.Header.PrevHash) == prev.Hash {
		return nil
	}
	return p.handleReorg(height - 1)
}

// handleReorg walks committed headers backward from knownBadHeight,
// asking the upstream node for its hash at each height, until it finds
// one that still matches what opnetd has stored. It rewinds the
// committed tip to that common ancestor and reports a retryable
// Conflict so step() re-resolves the next height from the new tip.
// Exceeding MaxReorgDepth without finding a common ancestor is fatal:
// a reorg that deep very likely means opnetd is following the wrong
// chain entirely, not a routine chain-tip swap.
func (p *Processor) handleReorg(knownBadHeight uint64) error {
	cursor := knownBadHeight
	for depth := uint64(0); ; depth++ {
		if depth > p.cfg.MaxReorgDepth {
			return errkind.New(errkind.KindStorage, "FatalUpstream", true,
				fmt.Errorf("reorg exceeds max depth %d", p.cfg.MaxReorgDepth))
		}

		ours, err := p.cfg.Store.GetHeader(cursor)
		if err != nil {
			return err
		}
		if ours == nil {
			break
		}

		theirHash, err := p.cfg.Client.GetBlockHash(cursor)
		if err != nil {
			return errkind.New(errkind.KindUpstream, "transient", false, err)
		}
		if [32]byte(*theirHash) == ours.Hash {
			break
		}

		if cursor == 0 {
			return errkind.New(errkind.KindStorage, "FatalUpstream", true,
				fmt.Errorf("reorg search reached genesis without a common ancestor"))
		}
		cursor--
	}

	if err := p.cfg.Store.RewindTo(cursor); err != nil {
		return err
	}
	log.Warnf("reorg detected, rewound committed tip to height %d", cursor)
	return errkind.New(errkind.KindStorage, "Conflict", false,
		fmt.Errorf("reorg: rewound tip to height %d", cursor))
}

// blockWork is one OPNet-relevant transaction's working state through
// parse, sort, and execution. Generic transactions never get a
// blockWork: they contributed nothing to step 4's "filter to
// OPNet-relevant" and are dropped before sorting.
type blockWork struct {
	tx       *wire.MsgTx
	txHash   [32]byte
	envelope *parser.Envelope

	targetAddress contract.Address
	hasTarget     bool
}

// processBlock parses and classifies every transaction against sn,
// orders the OPNet-relevant ones with the sorter, fold-executes them
// in that order, and builds the resulting block header with its
// derived roots. It never calls sn.Commit; step() owns the
// commit/retry decision.
func (p *Processor) processBlock(sn *storage.Snapshot, height uint64, block *rpcchain.BlockData) (*storage.BlockHeader, error) {
	params, err := p.cfg.Consensus.ActiveAt(height)
	if err != nil {
		return nil, err
	}
	if err := p.cfg.Consensus.CheckTransition(height); err != nil {
		return nil, err
	}

	blockHash := [32]byte(block.Header.Hash)

	works := make([]*blockWork, 0, len(block.Transactions))

	for _, tx := range block.Transactions {
		env, err := parser.ParseTransaction(tx, params.Transactions.MaxPriorityFeeSat)
		if err != nil {
			// MalformedWitness (or any other parse rejection) demotes the
			// transaction to Generic rather than failing the block.
			env = &parser.Envelope{Kind: contract.KindGeneric}
		}
		if env.Kind == contract.KindGeneric {
			continue
		}

		w := &blockWork{tx: tx, txHash: [32]byte(tx.TxHash()), envelope: env}
		if env.Kind == contract.KindInteraction {
			target, err := p.cfg.Store.GetContractBySecretHash(env.ContractSecretHash160)
			if err != nil {
				return nil, err
			}
			if target != nil {
				w.targetAddress = target.Address
				w.hasTarget = true
			}
		}

		works = append(works, w)
	}

	sortInput := make([]sorter.Tx, len(works))
	for i, w := range works {
		sortInput[i] = sorter.Tx{
			ID:           string(w.txHash[:]),
			PriorityFee:  w.envelope.PriorityFeeSat,
			Parents:      parentIDs(works, w.tx),
			IndexingHash: indexingHashOf(w.txHash, blockHash),
		}
	}

	ordered, err := sorter.Sort(sortInput)
	if err != nil {
		return nil, err
	}

	workByID := make(map[string]*blockWork, len(works))
	for _, w := range works {
		workByID[string(w.txHash[:])] = w
	}

	engine := vm.NewEngine(p.cfg.Store, vm.Limits{
		MaxCallDepth:       params.Transactions.MaxCallDepth,
		MaxDeployDepth:     params.Transactions.MaxDeployDepth,
		MaxEventLen:        params.Transactions.MaxEventLen,
		MaxReceiptLen:      params.Transactions.MaxReceiptLen,
		StorageCostPerByte: params.Transactions.StorageCostPerByte,
	}, p.cfg.Store)

	overlay := vm.NewOverlay()
	receipts := make([]*receiptRecord, 0, len(ordered))

	for _, st := range ordered {
		w := workByID[st.ID]
		cp := overlay.Checkpoint()
		receipt, deployed, err := p.executeOne(height, block, params, engine, overlay, w, st.IndexingHash)
		if err != nil {
			return nil, err
		}
		if receipt.Reverted {
			overlay.Rollback(cp)
			receipts = append(receipts, receipt)
			continue
		}
		receipts = append(receipts, receipt)

		for _, c := range deployed {
			if err := p.cfg.Store.PutContract(sn, c); err != nil {
				return nil, err
			}
		}
	}

	deltas := overlay.Snapshot()
	if len(deltas) > 0 {
		entries := make([]contract.StorageEntry, 0, len(deltas))
		for key, val := range deltas {
			entries = append(entries, contract.StorageEntry{
				Contract:   key.Contract,
				Pointer:    key.Pointer,
				Value:      val,
				LastSeenAt: height,
			})
		}
		if err := p.cfg.Store.PutPointers(sn, entries); err != nil {
			return nil, err
		}
	}

	flatDeltas := make(map[[64]byte]contract.Value, len(deltas))
	for key, val := range deltas {
		var dk [64]byte
		copy(dk[:32], key.Contract[:])
		copy(dk[32:], key.Pointer[:])
		flatDeltas[dk] = val
	}

	storageRoot := storageRootOf(flatDeltas)
	receiptRoot := receiptRootOf(receipts)
	checksumRoot := checksumRootOf(storageRoot, receiptRoot, blockHash)

	return &storage.BlockHeader{
		Hash:         blockHash,
		Height:       height,
		PrevHash:     [32]byte(block.Header.PrevHash),
		MerkleRoot:   [32]byte(block.Header.MerkleRoot),
		Time:         uint64(block.Header.Time),
		MedianTime:   uint64(block.Header.MedianTime),
		NumTx:        block.Header.NumTx,
		Weight:       block.Header.Weight,
		Bits:         block.Header.Bits,
		Nonce:        block.Header.Nonce,
		Difficulty:   block.Header.Difficulty,
		Version:      block.Header.Version,
		StorageRoot:  storageRoot,
		ReceiptRoot:  receiptRoot,
		ChecksumRoot: checksumRoot,
	}, nil
}

func parentIDs(works []*blockWork, tx *wire.MsgTx) []string {
	byHash := make(map[[32]byte]bool, len(works))
	for _, w := range works {
		byHash[w.txHash] = true
	}
	var parents []string
	for _, in := range tx.TxIn {
		h := [32]byte(in.PreviousOutPoint.Hash)
		if byHash[h] {
			parents = append(parents, string(h[:]))
		}
	}
	return parents
}

func indexingHashOf(txHash, blockHash [32]byte) [32]byte {
	buf := make([]byte, 0, 64)
	buf = append(buf, txHash[:]...)
	buf = append(buf, blockHash[:]...)
	return sha256.Sum256(buf)
}

// senderAddress widens a 20-byte pubkey hash into the 32-byte address
// space contract storage keys on, zero-padded on the left the way a
// P2PKH-style hash is conventionally widened into a 32-byte slot. The
// data model has no externally-owned-account type of its own; this is
// only ever used as TxOrigin/MsgSender, never stored as a Contract.
func senderAddress(hash160 [20]byte) contract.Address {
	var out contract.Address
	copy(out[12:], hash160[:])
	return out
}

// executeOne runs a single ordered transaction's contract frame and
// reports its receipt plus any contracts it deployed. It never returns
// a non-nil error for a contract-level failure (that is a Reverted
// receipt, a normal outcome, and so is a trap inside the execution
// engine); a non-nil error means the block itself cannot proceed (a
// storage failure or an error returned by Engine.Execute).
func (p *Processor) executeOne(
	height uint64,
	block *rpcchain.BlockData,
	params consensus.Params,
	engine *vm.Engine,
	overlay *vm.Overlay,
	w *blockWork,
	indexingHash [32]byte,
) (*receiptRecord, []contract.Contract, error) {
	origin := senderAddress(w.envelope.SenderPubkeyHash160)

	switch w.envelope.Kind {
	case contract.KindInteraction:
		if !w.hasTarget {
			return &receiptRecord{IndexingHash: indexingHash, Reverted: true}, nil, nil
		}
		target, err := p.cfg.Store.GetContract(w.targetAddress)
		if err != nil {
			return nil, nil, err
		}
		if target == nil || len(target.Bytecode) == 0 {
			return &receiptRecord{IndexingHash: indexingHash, Reverted: true}, nil, nil
		}

		frame := &vm.Frame{
			ContractAddress: w.targetAddress,
			Calldata:        w.envelope.Calldata,
			TxOrigin:        origin,
			MsgSender:       origin,
			BlockHeight:     height,
			BlockMedianTime: uint64(block.Header.MedianTime),
			MaxGas:          params.Transactions.MaxGas,
			Overlay:         overlay,
		}
		result, err := engine.Execute(frame, target.Bytecode)
		if err != nil {
			return nil, nil, errkind.New(errkind.KindExecution, "Trap", false, err)
		}
		return &receiptRecord{
			IndexingHash: indexingHash,
			GasUsed:      result.GasUsed,
			Reverted:     result.Status == vm.StatusReverted,
			ReturnHash:   sha256.Sum256(result.ReturnData),
		}, nil, nil

	case contract.KindDeployment:
		newContract, err := contract.DeriveAddress(w.envelope.SenderPubkey, w.txHash)
		if err != nil {
			return &receiptRecord{IndexingHash: indexingHash, Reverted: true}, nil, nil
		}
		newContract.Bytecode = w.envelope.Calldata
		newContract.DeployedAtBlock = height

		frame := &vm.Frame{
			ContractAddress: newContract.Address,
			TxOrigin:        origin,
			MsgSender:       origin,
			BlockHeight:     height,
			BlockMedianTime: uint64(block.Header.MedianTime),
			MaxGas:          params.Transactions.EmulationMaxGas,
			IsConstructor:   true,
			Overlay:         overlay,
		}
		result, err := engine.Execute(frame, newContract.Bytecode)
		if err != nil {
			return nil, nil, errkind.New(errkind.KindExecution, "Trap", false, err)
		}
		receipt := &receiptRecord{
			IndexingHash: indexingHash,
			GasUsed:      result.GasUsed,
			Reverted:     result.Status == vm.StatusReverted,
			ReturnHash:   sha256.Sum256(result.ReturnData),
		}
		if result.Status == vm.StatusReverted {
			return receipt, nil, nil
		}
		deployed := append([]contract.Contract{newContract}, result.DeployedContracts...)
		return receipt, deployed, nil

	default:
		return &receiptRecord{IndexingHash: indexingHash, Reverted: true}, nil, nil
	}
}
