package contract

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"
)

func TestDeriveAddressDeterministic(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	pub := priv.PubKey().SerializeCompressed()

	var seed [32]byte
	copy(seed[:], []byte("deterministic-seed-for-testing!"))

	first, err := DeriveAddress(pub, seed)
	require.NoError(t, err)
	second, err := DeriveAddress(pub, seed)
	require.NoError(t, err)

	require.Equal(t, first.Address, second.Address)
	require.Equal(t, first.TweakedPublicKey, second.TweakedPublicKey)
	require.Equal(t, first.HybridPublicKey, second.HybridPublicKey)
}

func TestDeriveAddressDistinctSeeds(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	pub := priv.PubKey().SerializeCompressed()

	var seedA, seedB [32]byte
	copy(seedA[:], []byte("seed-a-------------------------"))
	copy(seedB[:], []byte("seed-b-------------------------"))

	a, err := DeriveAddress(pub, seedA)
	require.NoError(t, err)
	b, err := DeriveAddress(pub, seedB)
	require.NoError(t, err)

	require.NotEqual(t, a.Address, b.Address)
}

func TestFeatureFlagsHas(t *testing.T) {
	flags := FeatureAccessList | FeatureMLDSALinkPubkey

	require.True(t, flags.Has(FeatureAccessList))
	require.True(t, flags.Has(FeatureMLDSALinkPubkey))
	require.False(t, flags.Has(FeatureEpochSubmission))
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindGeneric:     "generic",
		KindInteraction: "interaction",
		KindDeployment:  "deployment",
		Kind(99):        "unknown",
	}
	for k, want := range cases {
		require.Equal(t, want, k.String())
	}
}
