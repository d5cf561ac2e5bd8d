package cryptoutils

import (
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndRecover(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey)

	body := []byte(`{"amount":"0xde0b6b3a7640000"}`)
	sig, err := SignRequest(key, "post", "/api/lands/1/purchase", 1700000000, body)
	require.NoError(t, err)

	signer, err := RecoverRequestSigner(sig, "POST", "/api/lands/1/purchase", 1700000000, body)
	require.NoError(t, err)
	assert.Equal(t, addr, signer)

	// Any change to the request yields a different signer.
	other, err := RecoverRequestSigner(sig, "POST", "/api/lands/2/purchase", 1700000000, body)
	require.NoError(t, err)
	assert.NotEqual(t, addr, other)

	later, err := RecoverRequestSigner(sig, "POST", "/api/lands/1/purchase", 1700000001, body)
	require.NoError(t, err)
	assert.NotEqual(t, addr, later)
}

func TestRecover_LegacyRecoveryID(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	raw, err := crypto.Sign(RequestDigest("GET", "/api/accounts/me", 42, nil), key)
	require.NoError(t, err)
	raw[64] += 27

	signer, err := RecoverRequestSigner(hexutil.Encode(raw), "GET", "/api/accounts/me", 42, nil)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), signer)
}

func TestRecover_Invalid(t *testing.T) {
	for _, sig := range []string{"", "0x", "zz", "0x1234", hexutil.Encode(make([]byte, 65))} {
		_, err := RecoverRequestSigner(sig, "GET", "/", 0, nil)
		assert.ErrorIs(t, err, ErrInvalidSignature, sig)
	}
}

func TestLoadPrivateKey(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	encoded := hexutil.Encode(crypto.FromECDSA(key))

	loaded, err := LoadPrivateKey(encoded + "\n")
	require.NoError(t, err)
	assert.Equal(t, key.D, loaded.D)

	_, err = LoadPrivateKey("0xnotakey")
	assert.Error(t, err)
}
