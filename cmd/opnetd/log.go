package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"

	"github.com/opnet-labs/opnetd/bus"
	"github.com/opnet-labs/opnetd/consensus"
	"github.com/opnet-labs/opnetd/epoch"
	"github.com/opnet-labs/opnetd/indexer"
	"github.com/opnet-labs/opnetd/mempool"
	"github.com/opnet-labs/opnetd/rpcchain"
	"github.com/opnet-labs/opnetd/storage"
)

// logWriter mirrors logging output to both stdout and the rotating
// log file, the same dual-sink approach btcd-family daemons use so an
// operator watching a terminal sees the same lines the on-disk log
// carries.
type logWriter struct{}

func (logWriter) Write(p []byte) (int, error) {
	os.Stdout.Write(p)
	logRotator.Write(p)
	return len(p), nil
}

var (
	backendLog = btclog.NewBackend(logWriter{})
	logRotator *rotator.Rotator

	mainLog = backendLog.Logger("MAIN")
	rpccLog = backendLog.Logger("RPCC")
	strgLog = backendLog.Logger("STRG")
	cnsnLog = backendLog.Logger("CNSN")
	indxLog = backendLog.Logger("INDX")
	mpolLog = backendLog.Logger("MPOL")
	busLog  = backendLog.Logger("BUS ")
	epchLog = backendLog.Logger("EPCH")
)

// subsystemLoggers maps each subsystem's short tag, as printed in log
// lines, to the Logger instance that controls its verbosity.
var subsystemLoggers = map[string]btclog.Logger{
	"MAIN": mainLog,
	"RPCC": rpccLog,
	"STRG": strgLog,
	"CNSN": cnsnLog,
	"INDX": indxLog,
	"MPOL": mpolLog,
	"BUS":  busLog,
	"EPCH": epchLog,
}

// initLogRotator opens logFile for rotating writes, creating its
// parent directory if necessary. It must be called before any logger
// is used, since logWriter passes every log line to logRotator
// unconditionally.
func initLogRotator(logFile string) error {
	logDir := filepath.Dir(logFile)
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	r, err := rotator.New(logFile, 10*1024, false, 3)
	if err != nil {
		return fmt.Errorf("failed to create file rotator: %w", err)
	}
	logRotator = r
	return nil
}

// setLogLevels raises or lowers every subsystem logger to levelStr at
// once, the coarse-grained control behind the config record's
// debug_level field.
func setLogLevels(levelStr string) {
	level, ok := btclog.LevelFromString(levelStr)
	if !ok {
		return
	}
	for _, logger := range subsystemLoggers {
		logger.SetLevel(level)
	}
}

// wireLoggers hands each package's logger to its UseLogger setter, so
// the rest of the process never imports btclog directly.
func wireLoggers() {
	storage.UseLogger(strgLog)
	rpcchain.UseLogger(rpccLog)
	consensus.UseLogger(cnsnLog)
	indexer.UseLogger(indxLog)
	mempool.UseLogger(mpolLog)
	bus.UseLogger(busLog)
	epoch.UseLogger(epchLog)
}

// debugLevelToString maps the config record's 0..5 debug_level scale
// to btclog's named levels, trace being the most verbose.
func debugLevelToString(level int) string {
	switch {
	case level <= 0:
		return "off"
	case level == 1:
		return "error"
	case level == 2:
		return "warn"
	case level == 3:
		return "info"
	case level == 4:
		return "debug"
	default:
		return "trace"
	}
}
