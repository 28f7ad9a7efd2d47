// Package parser lifts a base-chain transaction into a typed OPNet
// envelope: it decompiles the first input's witness, recognizes the
// OPNet magic envelope, classifies the transaction into
// {Generic, Interaction, Deployment}, and extracts calldata and sender
// material. It never touches the network or storage; it is pure
// decode logic over already-fetched transaction bytes.
package parser

import (
	"bytes"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/golang/snappy"
	"github.com/kkdai/bstream"
	"golang.org/x/crypto/ripemd160"

	"github.com/opnet-labs/opnetd/contract"
	"github.com/opnet-labs/opnetd/errkind"
)

// opnetMagic is the 3-byte constant that must prefix the envelope
// discriminator in an OPNet-tagged tap leaf script.
var opnetMagic = [3]byte{0x62, 0x73, 0x63}

const (
	opnetHeaderLen   = 12
	discriminatorLen = 1

	// compressedFlag, masked against the discriminator byte, marks
	// calldata as snappy-compressed on the wire.
	compressedFlag = 0x80
	kindMask       = 0x7f

	discriminatorInteraction = 0x01
	discriminatorDeployment  = 0x02
)

// Envelope is the typed result of lifting one base-chain transaction.
type Envelope struct {
	Kind contract.Kind

	SenderPubkey          []byte
	InteractionSaltPubkey []byte
	SenderPubkeyHash160   [20]byte
	ContractSecretHash160 [20]byte

	Calldata       []byte
	PriorityFeeSat uint64
	FeatureFlags   contract.FeatureFlags
}

// ParseTransaction classifies tx and, for non-Generic kinds, extracts
// its OPNet envelope fields. maxPriorityFee is the active consensus
// bound; a header priority fee above it is rejected outright rather
// than silently clamped.
func ParseTransaction(tx *wire.MsgTx, maxPriorityFee uint64) (*Envelope, error) {
	if len(tx.TxIn) == 0 {
		return &Envelope{Kind: contract.KindGeneric}, nil
	}

	witness := tx.TxIn[0].Witness
	if len(witness) < 2 {
		return &Envelope{Kind: contract.KindGeneric}, nil
	}

	leafScript := witness[len(witness)-2]
	env, err := decodeLeafScript(leafScript)
	if err != nil {
		if err == errNotAnEnvelope {
			return &Envelope{Kind: contract.KindGeneric}, nil
		}
		return nil, errkind.New(errkind.KindParse, "MalformedWitness", false, err)
	}

	if len(witness) >= 3 {
		env.InteractionSaltPubkey = witness[len(witness)-3]
	} else {
		env.InteractionSaltPubkey = env.SenderPubkey
	}

	if env.PriorityFeeSat > maxPriorityFee {
		return nil, errkind.New(errkind.KindParse, "ExcessivePriorityFee", false, nil)
	}

	return env, nil
}

// errNotAnEnvelope signals the leaf script simply isn't OPNet-tagged;
// it is handled by falling back to Generic rather than surfacing as a
// MalformedWitness error, since most base-chain spends have nothing to
// do with OPNet.
var errNotAnEnvelope = errkind.New(errkind.KindParse, "NotAnEnvelope", false, nil)

func decodeLeafScript(script []byte) (*Envelope, error) {
	tok := txscript.MakeScriptTokenizer(0, script)

	senderPubkey, err := nextPush(&tok, 33)
	if err != nil {
		return nil, errNotAnEnvelope
	}
	if senderPubkey[0] != 0x02 && senderPubkey[0] != 0x03 {
		return nil, errNotAnEnvelope
	}

	if !nextOp(&tok, txscript.OP_CHECKSIGVERIFY) {
		return nil, errNotAnEnvelope
	}

	contractSecretHash, err := nextPush(&tok, ripemd160.Size)
	if err != nil {
		return nil, errNotAnEnvelope
	}
	if !nextOp(&tok, txscript.OP_EQUALVERIFY) {
		return nil, errNotAnEnvelope
	}

	senderPubkeyHash, err := nextPush(&tok, ripemd160.Size)
	if err != nil {
		return nil, errNotAnEnvelope
	}
	if !nextOp(&tok, txscript.OP_EQUALVERIFY) {
		return nil, errNotAnEnvelope
	}

	magic, err := nextPush(&tok, len(opnetMagic))
	if err != nil || !bytes.Equal(magic, opnetMagic[:]) {
		return nil, errNotAnEnvelope
	}

	discriminator, err := nextPush(&tok, discriminatorLen)
	if err != nil {
		return nil, errNotAnEnvelope
	}

	header, err := nextPush(&tok, opnetHeaderLen)
	if err != nil {
		return nil, errkind.New(errkind.KindParse, "MalformedWitness", false, nil)
	}

	if !nextOp(&tok, txscript.OP_IF) {
		return nil, errkind.New(errkind.KindParse, "MalformedWitness", false, nil)
	}

	var calldata []byte
	for {
		if !tok.Next() {
			return nil, errkind.New(errkind.KindParse, "MalformedWitness", false, tok.Err())
		}
		if tok.Opcode() == txscript.OP_ENDIF {
			break
		}
		calldata = append(calldata, tok.Data()...)
	}

	kind := contract.KindGeneric
	switch discriminator[0] & kindMask {
	case discriminatorInteraction:
		kind = contract.KindInteraction
	case discriminatorDeployment:
		kind = contract.KindDeployment
	default:
		return nil, errkind.New(errkind.KindParse, "MalformedWitness", false, nil)
	}

	if discriminator[0]&compressedFlag != 0 {
		decompressed, err := snappy.Decode(nil, calldata)
		if err != nil {
			return nil, errkind.New(errkind.KindParse, "MalformedWitness", false, err)
		}
		calldata = decompressed
	}

	featureFlags, priorityFee, err := decodeHeaderFields(header)
	if err != nil {
		return nil, errkind.New(errkind.KindParse, "MalformedWitness", false, err)
	}

	env := &Envelope{
		Kind:           kind,
		SenderPubkey:   append([]byte(nil), senderPubkey...),
		Calldata:       calldata,
		PriorityFeeSat: priorityFee,
		FeatureFlags:   featureFlags,
	}
	copy(env.ContractSecretHash160[:], contractSecretHash)
	copy(env.SenderPubkeyHash160[:], senderPubkeyHash)
	return env, nil
}

// decodeHeaderFields reads the envelope header's reserved byte, 24-bit
// feature flag field, and 64-bit priority fee off a bit reader rather
// than indexing and shifting bytes by hand.
func decodeHeaderFields(header []byte) (contract.FeatureFlags, uint64, error) {
	r := bstream.NewBStreamReader(header)
	if _, err := r.ReadByte(); err != nil {
		return 0, 0, err
	}
	flagBits, err := r.ReadBits(24)
	if err != nil {
		return 0, 0, err
	}
	feeBits, err := r.ReadBits(64)
	if err != nil {
		return 0, 0, err
	}
	return contract.FeatureFlags(uint32(flagBits)), feeBits, nil
}

func nextPush(tok *txscript.ScriptTokenizer, wantLen int) ([]byte, error) {
	if !tok.Next() {
		if tok.Err() != nil {
			return nil, tok.Err()
		}
		return nil, errNotAnEnvelope
	}
	data := tok.Data()
	if len(data) != wantLen {
		return nil, errNotAnEnvelope
	}
	return data, nil
}

func nextOp(tok *txscript.ScriptTokenizer, op byte) bool {
	if !tok.Next() {
		return false
	}
	return tok.Opcode() == op
}
