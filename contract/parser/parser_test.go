package parser

import (
	"encoding/binary"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/opnet-labs/opnetd/contract"
)

func buildEnvelopeScript(t *testing.T, discriminator byte, priorityFee uint64, calldata []byte) []byte {
	t.Helper()

	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	senderPubkey := priv.PubKey().SerializeCompressed()

	var contractSecretHash, senderPubkeyHash [20]byte
	copy(contractSecretHash[:], []byte("contract-secret-hsh"))
	copy(senderPubkeyHash[:], []byte("sender-pubkey-hash-x"))

	header := make([]byte, opnetHeaderLen)
	header[0] = senderPubkey[0]
	header[1], header[2], header[3] = 0x00, 0x00, 0x01 // feature flags = FeatureAccessList
	binary.BigEndian.PutUint64(header[4:12], priorityFee)

	builder := txscript.NewScriptBuilder()
	builder.AddData(senderPubkey)
	builder.AddOp(txscript.OP_CHECKSIGVERIFY)
	builder.AddData(contractSecretHash[:])
	builder.AddOp(txscript.OP_EQUALVERIFY)
	builder.AddData(senderPubkeyHash[:])
	builder.AddOp(txscript.OP_EQUALVERIFY)
	builder.AddData(opnetMagic[:])
	builder.AddData([]byte{discriminator})
	builder.AddData(header)
	builder.AddOp(txscript.OP_IF)
	builder.AddData(calldata)
	builder.AddOp(txscript.OP_ENDIF)

	script, err := builder.Script()
	require.NoError(t, err)
	return script
}

func txWithWitness(witness wire.TxWitness) *wire.MsgTx {
	tx := wire.NewMsgTx(2)
	in := wire.NewTxIn(&wire.OutPoint{}, nil, nil)
	in.Witness = witness
	tx.AddTxIn(in)
	return tx
}

func TestParseTransactionInteraction(t *testing.T) {
	calldata := []byte{0xde, 0xad, 0xbe, 0xef, 0x01, 0x02}
	script := buildEnvelopeScript(t, discriminatorInteraction, 1500, calldata)

	tx := txWithWitness(wire.TxWitness{
		[]byte("sig"),
		script,
		[]byte("control-block-placeholder-33by!!"),
	})

	env, err := ParseTransaction(tx, 10_000_000)
	require.NoError(t, err)
	require.Equal(t, contract.KindInteraction, env.Kind)
	require.Equal(t, calldata, env.Calldata)
	require.Equal(t, uint64(1500), env.PriorityFeeSat)
	require.True(t, env.FeatureFlags.Has(contract.FeatureAccessList))
}

func TestParseTransactionDeployment(t *testing.T) {
	script := buildEnvelopeScript(t, discriminatorDeployment, 200, []byte{0x01})

	tx := txWithWitness(wire.TxWitness{
		[]byte("sig"),
		script,
		[]byte("control-block-placeholder-33by!!"),
	})

	env, err := ParseTransaction(tx, 10_000_000)
	require.NoError(t, err)
	require.Equal(t, contract.KindDeployment, env.Kind)
}

func TestParseTransactionGenericFallback(t *testing.T) {
	tx := txWithWitness(wire.TxWitness{
		[]byte("sig"),
		[]byte("not-an-envelope-script"),
	})

	env, err := ParseTransaction(tx, 10_000_000)
	require.NoError(t, err)
	require.Equal(t, contract.KindGeneric, env.Kind)
}

func TestParseTransactionNoWitness(t *testing.T) {
	tx := txWithWitness(nil)

	env, err := ParseTransaction(tx, 10_000_000)
	require.NoError(t, err)
	require.Equal(t, contract.KindGeneric, env.Kind)
}

func TestParseTransactionExcessivePriorityFee(t *testing.T) {
	script := buildEnvelopeScript(t, discriminatorInteraction, 50_000, []byte{0x01})

	tx := txWithWitness(wire.TxWitness{
		[]byte("sig"),
		script,
		[]byte("control-block-placeholder-33by!!"),
	})

	_, err := ParseTransaction(tx, 1000)
	require.Error(t, err)
}
