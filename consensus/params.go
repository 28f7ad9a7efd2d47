// Package consensus holds the active consensus parameters keyed by
// height: an immutable, height-sorted parameter table and a pure
// active_at(height) lookup, the same shape chaincfg.Params uses to key
// soft-fork activation by height, in place of a shared mutable global.
package consensus

// NetworkLimits bounds what the Mempool and API may broadcast.
type NetworkLimits struct {
	MaxTxBroadcastSize  uint64 `yaml:"max_tx_broadcast_size"`
	PSBTMaxBroadcastSize uint64 `yaml:"psbt_max_broadcast_size"`
}

// PSBTLimits gates mempool admission of PSBT-encoded entries. The fee
// rate denominator is fixed to vbyte.
type PSBTLimits struct {
	MinFeeRateVBPerSat uint64 `yaml:"min_fee_rate_vb_per_sat"`
}

// TransactionLimits gates contract execution and receipt shape.
type TransactionLimits struct {
	MaxGas             uint64 `yaml:"max_gas"`
	EmulationMaxGas    uint64 `yaml:"emulation_max_gas"`
	SatToGasRatio      uint64 `yaml:"sat_to_gas_ratio"`
	MaxReceiptLen      uint64 `yaml:"max_receipt_len"`
	MaxEventLen        uint64 `yaml:"max_event_len"`
	MaxDeployDepth     uint32 `yaml:"max_deploy_depth"`
	MaxCallDepth       uint32 `yaml:"max_call_depth"`
	StorageCostPerByte uint64 `yaml:"storage_cost_per_byte"`
	MaxCalldata        uint64 `yaml:"max_calldata"`
	MaxPriorityFeeSat  uint64 `yaml:"max_priority_fee_sat"`
}

// EpochLimits sizes the Epoch Manager's fixed windows.
type EpochLimits struct {
	BlocksPerEpoch uint64 `yaml:"blocks_per_epoch"`
	MinAttestorQuorum int  `yaml:"min_attestor_quorum"`
}

// Params is one named consensus's full parameter set, activated at a
// height and optionally scheduling a transition to the next one.
type Params struct {
	Name                    string `yaml:"name"`
	EnabledAtBlock          uint64 `yaml:"enabled_at_block"`
	NextConsensus           string `yaml:"next_consensus"`
	NextConsensusBlock      uint64 `yaml:"next_consensus_block"`
	IsReadyForNextConsensus bool   `yaml:"is_ready_for_next"`

	Network      NetworkLimits     `yaml:"network"`
	PSBT         PSBTLimits        `yaml:"psbt"`
	Transactions TransactionLimits `yaml:"transactions"`
	Epoch        EpochLimits       `yaml:"epoch"`
}

// Genesis is opnetd's embedded default consensus, active from block 0
// until an operator-supplied override table replaces it. Values are
// deliberately conservative; production deployments are expected to
// supply their own table via LoadOverrides.
var Genesis = Params{
	Name:           "genesis",
	EnabledAtBlock: 0,
	Network: NetworkLimits{
		MaxTxBroadcastSize:   400_000,
		PSBTMaxBroadcastSize: 400_000,
	},
	PSBT: PSBTLimits{
		MinFeeRateVBPerSat: 1,
	},
	Transactions: TransactionLimits{
		MaxGas:             100_000_000,
		EmulationMaxGas:    500_000_000,
		SatToGasRatio:      1000,
		MaxReceiptLen:      65_536,
		MaxEventLen:        16_384,
		MaxDeployDepth:     4,
		MaxCallDepth:       16,
		StorageCostPerByte: 50,
		MaxCalldata:        1_048_576,
		MaxPriorityFeeSat:  1_000_000,
	},
	Epoch: EpochLimits{
		BlocksPerEpoch:    1008,
		MinAttestorQuorum: 3,
	},
}
