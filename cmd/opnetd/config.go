package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jessevdk/go-flags"
)

const (
	defaultConfigFilename = "opnetd.conf"
	defaultLogFilename    = "opnetd.log"
	defaultDataDirname    = "data"
)

// rpcConfig is the base-chain RPC client's connection record.
type rpcConfig struct {
	Host              string `long:"rpchost" description:"base-chain RPC host"`
	Port              int    `long:"rpcport" description:"base-chain RPC port"`
	User              string `long:"rpcuser" description:"base-chain RPC username"`
	Pass              string `long:"rpcpass" description:"base-chain RPC password"`
	Threads           int    `long:"rpcthreads" description:"base-chain RPC client worker count"`
	MaxConcurrentReqs int    `long:"rpcmaxconcurrentrequests" description:"max in-flight base-chain RPC calls"`
}

// zeromqConfig is the tip-notification subscription record.
type zeromqConfig struct {
	Address string `long:"zmqaddress" description:"ZeroMQ publisher address"`
	Port    int    `long:"zmqport" description:"ZeroMQ publisher port"`
	Topic   string `long:"zmqtopic" description:"subscription topic: rawblock, rawtx, hashblock, hashtx, or everything"`
}

// indexerConfig drives the block processing scheduler.
type indexerConfig struct {
	BlockQueryIntervalMS int    `long:"blockqueryintervalms" description:"poll interval between tip checks, in milliseconds"`
	MaxPrefetchBlocks    int    `long:"maxprefetchblocks" description:"number of blocks the fetcher stays ahead of the processor"`
	Reindex              bool   `long:"reindex" description:"discard the committed tip and reprocess from reindexfromblock"`
	ReindexFromBlock     uint64 `long:"reindexfromblock" description:"height to resume from when reindex is set"`
	EnabledAtBlock       uint64 `long:"enabledatblock" description:"height opnetd begins indexing at"`
}

// databaseConfig names the storage backend.
type databaseConfig struct {
	ConnectionURI string `long:"dbconnectionuri" description:"storage engine connection string or filesystem path"`
	Name          string `long:"dbname" description:"database or directory name"`
}

// p2pConfig configures the gossip layer.
type p2pConfig struct {
	Listen          string   `long:"p2plisten" description:"gossip listen address"`
	BootstrapNodes  []string `long:"p2pbootstrapnode" description:"bootstrap peer address (may be given multiple times)"`
	IsBootstrapNode bool     `long:"p2pisbootstrapnode" description:"advertise this node as a bootstrap peer"`
}

// apiConfig configures the external JSON-RPC/HTTP service.
type apiConfig struct {
	Port    int `long:"apiport" description:"API listen port"`
	Threads int `long:"apithreads" description:"API worker count"`
}

// config is the single configuration record opnetd reads at boot,
// using jessevdk/go-flags' INI-plus-CLI overlay: a config file
// supplies defaults, command-line flags override them.
type config struct {
	ConfigFile string `short:"C" long:"configfile" description:"path to configuration file"`
	DataDir    string `short:"b" long:"datadir" description:"directory to store the indexed database and logs"`
	LogDir     string `long:"logdir" description:"directory to log output to"`

	Network string `long:"network" description:"mainnet, testnet, regtest, or signet"`

	RPC        rpcConfig      `group:"RPC"`
	ZeroMQ     zeromqConfig   `group:"ZeroMQ"`
	Indexer    indexerConfig  `group:"Indexer"`
	Database   databaseConfig `group:"Database"`
	P2P        p2pConfig      `group:"P2P"`
	API        apiConfig      `group:"API"`
	RPCWorkers int            `long:"rpcworkers" description:"bus worker fan-out for RPC_METHOD dispatch"`

	DebugLevel int  `long:"debuglevel" description:"logging verbosity, 0 (off) through 5 (trace)"`
	DevMode    bool `long:"devmode" description:"enable extra runtime assertions"`

	ConsensusOverrides string `long:"consensusoverrides" description:"path to a YAML consensus parameter table overriding the embedded genesis table"`
	Attestors          string `long:"attestors" description:"path to a YAML list of epoch attestor endpoints"`
}

// defaultConfig returns a config populated with opnetd's conservative
// defaults, the same shape loadConfig in btcd-family daemons returns
// before applying the file and CLI overlay.
func defaultConfig() config {
	return config{
		DataDir: defaultHomeDir(),
		Network: "mainnet",
		RPC: rpcConfig{
			Host:              "127.0.0.1",
			Port:              8332,
			Threads:           4,
			MaxConcurrentReqs: 8,
		},
		ZeroMQ: zeromqConfig{
			Port:  28332,
			Topic: "hashblock",
		},
		Indexer: indexerConfig{
			BlockQueryIntervalMS: 2000,
			MaxPrefetchBlocks:    16,
		},
		Database: databaseConfig{
			Name: defaultDataDirname,
		},
		API: apiConfig{
			Port:    9001,
			Threads: 4,
		},
		RPCWorkers: 4,
		DebugLevel: 3,
	}
}

// defaultHomeDir returns ~/.opnetd, falling back to the working
// directory if the user's home directory cannot be resolved.
func defaultHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".opnetd")
	}
	return filepath.Join(home, ".opnetd")
}

// loadConfig parses the configuration file named by -C/--configfile
// (defaulting to <datadir>/opnetd.conf) and then overlays any
// command-line flags on top of it, matching the two-pass
// file-then-flags parse btcd's own loadConfig performs.
func loadConfig() (*config, error) {
	preCfg := defaultConfig()
	preParser := flags.NewParser(&preCfg, flags.Default)
	if _, err := preParser.Parse(); err != nil {
		return nil, err
	}

	if preCfg.ConfigFile == "" {
		preCfg.ConfigFile = filepath.Join(preCfg.DataDir, defaultConfigFilename)
	}

	cfg := preCfg
	if _, err := os.Stat(cfg.ConfigFile); err == nil {
		fileParser := flags.NewParser(&cfg, flags.Default)
		if err := flags.NewIniParser(fileParser).ParseFile(cfg.ConfigFile); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	parser := flags.NewParser(&cfg, flags.Default)
	if _, err := parser.Parse(); err != nil {
		return nil, err
	}

	if cfg.LogDir == "" {
		cfg.LogDir = filepath.Join(cfg.DataDir, "logs")
	}
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validateConfig rejects configuration records loadConfig cannot act
// on, surfacing exit code 2 per the daemon's configuration-error
// contract.
func validateConfig(cfg *config) error {
	switch cfg.Network {
	case "mainnet", "testnet", "regtest", "signet":
	default:
		return fmt.Errorf("unrecognized network %q", cfg.Network)
	}
	if cfg.DebugLevel < 0 || cfg.DebugLevel > 5 {
		return fmt.Errorf("debuglevel must be between 0 and 5, got %d", cfg.DebugLevel)
	}
	if cfg.RPC.Host == "" {
		return fmt.Errorf("rpchost must not be empty")
	}
	return nil
}
