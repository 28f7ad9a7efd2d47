package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/btcsuite/btcd/wire"

	"github.com/opnet-labs/opnetd/bus"
	"github.com/opnet-labs/opnetd/consensus"
	"github.com/opnet-labs/opnetd/contract/parser"
	"github.com/opnet-labs/opnetd/epoch"
	"github.com/opnet-labs/opnetd/errkind"
	"github.com/opnet-labs/opnetd/indexer"
	"github.com/opnet-labs/opnetd/mempool"
	"github.com/opnet-labs/opnetd/netparams"
	"github.com/opnet-labs/opnetd/rpcchain"
	"github.com/opnet-labs/opnetd/storage"

	"gopkg.in/yaml.v3"
)

// exit codes, per the daemon's documented shutdown contract.
const (
	exitClean              = 0
	exitFatal              = 1
	exitConfigurationError = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitConfigurationError
	}

	if err := initLogRotator(fmt.Sprintf("%s/%s", cfg.LogDir, defaultLogFilename)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitConfigurationError
	}
	wireLoggers()
	setLogLevels(debugLevelToString(cfg.DebugLevel))

	netp, err := netparams.ForNetwork(cfg.Network)
	if err != nil {
		mainLog.Errorf("%v", err)
		return exitConfigurationError
	}

	store, err := storage.Open(fmt.Sprintf("%s/%s", cfg.DataDir, cfg.Database.Name))
	if err != nil {
		mainLog.Errorf("failed to open storage: %v", err)
		return exitFatal
	}
	defer store.Close()

	tracker, err := buildConsensusTracker(cfg)
	if err != nil {
		mainLog.Errorf("%v", err)
		return exitConfigurationError
	}

	rpcClient := rpcchain.NewHTTPClient(rpcchain.HTTPConfig{
		Host:                  cfg.RPC.Host,
		Port:                  cfg.RPC.Port,
		User:                  cfg.RPC.User,
		Pass:                  cfg.RPC.Pass,
		MaxConcurrentInFlight: cfg.RPC.MaxConcurrentReqs,
	})
	fetcher := rpcchain.NewFetcher(rpcClient, cfg.Indexer.MaxPrefetchBlocks)

	messageBus := bus.New()

	proc := indexer.NewProcessor(indexer.Config{
		Fetcher:   fetcher,
		Client:    rpcClient,
		Consensus: tracker,
		Store:     store,
		Bus:       messageBus,
	})

	attestorClient, err := buildAttestorClient(cfg, tracker)
	if err != nil {
		mainLog.Errorf("%v", err)
		return exitConfigurationError
	}
	if attestorClient != nil {
		active, err := tracker.ActiveAt(0)
		if err != nil {
			mainLog.Errorf("%v", err)
			return exitFatal
		}
		epochMgr := epoch.NewManager(store, attestorClient, active.Epoch.BlocksPerEpoch)
		messageBus.Register(bus.WorkerSync, epochNotifyHandler{mgr: epochMgr})
	}

	pool := mempool.New(mempool.Config{
		Policy:          mempool.DefaultPolicy,
		UTXOs:           storeUTXOSource{store},
		Parser:          envelopeParserFunc{},
		Signatures:      mempool.MLDSAVerifier{},
		MaxPriorityFee:  active1OrZero(tracker),
		MinFeeRateVByte: 1,
		CurrentHeight:   func() uint64 { tip, _ := store.CommittedTip(); return tip },
	})
	messageBus.Register(bus.WorkerMempool, mempoolNotifyHandler{pool: pool})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if netp != nil {
		mainLog.Infof("starting opnetd on %s", netp.Network)
	}

	if err := proc.Run(ctx); err != nil {
		if errkind.IsFatal(err) {
			mainLog.Errorf("fatal error, halting: %v", err)
			return exitFatal
		}
		mainLog.Infof("shutting down: %v", err)
	}
	return exitClean
}

func buildConsensusTracker(cfg *config) (*consensus.Tracker, error) {
	table := []consensus.Params{consensus.Genesis}
	if cfg.ConsensusOverrides != "" {
		overrides, err := consensus.LoadOverrides(cfg.ConsensusOverrides)
		if err != nil {
			return nil, err
		}
		table = overrides
	}
	return consensus.NewTracker(table)
}

func buildAttestorClient(cfg *config, tracker *consensus.Tracker) (*epoch.AttestorClient, error) {
	if cfg.Attestors == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(cfg.Attestors)
	if err != nil {
		return nil, fmt.Errorf("failed to read attestors file: %w", err)
	}
	var attestors []epoch.AttestorInfo
	if err := yaml.Unmarshal(raw, &attestors); err != nil {
		return nil, fmt.Errorf("failed to parse attestors file: %w", err)
	}
	active, err := tracker.ActiveAt(0)
	if err != nil {
		return nil, err
	}
	return epoch.NewAttestorClient(attestors, active.Epoch.MinAttestorQuorum), nil
}

func active1OrZero(tracker *consensus.Tracker) uint64 {
	active, err := tracker.ActiveAt(0)
	if err != nil {
		return 0
	}
	return active.Transactions.MaxPriorityFeeSat
}

// storeUTXOSource adapts storage.Store to mempool.UTXOSource.
type storeUTXOSource struct {
	store *storage.Store
}

func (s storeUTXOSource) IsSpent(txid [32]byte, vout uint32) (bool, error) {
	rec, err := s.store.GetUTXO(txid, vout)
	if err != nil {
		return false, err
	}
	if rec == nil {
		return false, nil
	}
	return rec.SpentAt != nil, nil
}

// envelopeParserFunc adapts the package-level contract/parser.ParseTransaction
// function to mempool.EnvelopeParser.
type envelopeParserFunc struct{}

func (envelopeParserFunc) ParseTransaction(tx *wire.MsgTx, maxPriorityFee uint64) (*parser.Envelope, error) {
	return parser.ParseTransaction(tx, maxPriorityFee)
}

// mempoolNotifyHandler lets the Block Processor's NEW_BLOCK_NOTIFY
// broadcast reach the mempool worker over the bus rather than through
// a direct call, keeping the two components decoupled the way every
// other cross-worker edge in the daemon is. Each notification rebases
// the pool with no confirmed identifiers, evicting every entry whose
// input the UTXO source now reports spent.
type mempoolNotifyHandler struct {
	pool *mempool.Pool
}

func (h mempoolNotifyHandler) OnMessage(ctx context.Context, msg bus.Message) (any, error) {
	if msg.Type != bus.NewBlockNotify {
		return nil, nil
	}
	header, ok := msg.Data.(*storage.BlockHeader)
	if !ok {
		return nil, nil
	}
	mainLog.Debugf("mempool observed new tip at height %d", header.Height)
	h.pool.Rebase(nil)
	return nil, nil
}

func (h mempoolNotifyHandler) OnLinkMessage(ctx context.Context, peer bus.WorkerType, msg bus.Message) (any, error) {
	return h.OnMessage(ctx, msg)
}

// epochNotifyHandler watches the same NEW_BLOCK_NOTIFY stream the
// mempool rebases from and logs when a committed block is the last one
// of its epoch's window. It does not call Manager.Finalize, so the
// epoch is not closed here.
type epochNotifyHandler struct {
	mgr *epoch.Manager
}

func (h epochNotifyHandler) OnMessage(ctx context.Context, msg bus.Message) (any, error) {
	if msg.Type != bus.NewBlockNotify {
		return nil, nil
	}
	header, ok := msg.Data.(*storage.BlockHeader)
	if !ok {
		return nil, nil
	}
	epochNumber, _, end := h.mgr.EpochBounds(header.Height)
	if header.Height != end {
		return nil, nil
	}
	mainLog.Infof("block %d closes epoch %d, awaiting attestor quorum", header.Height, epochNumber)
	return nil, nil
}

func (h epochNotifyHandler) OnLinkMessage(ctx context.Context, peer bus.WorkerType, msg bus.Message) (any, error) {
	return h.OnMessage(ctx, msg)
}
