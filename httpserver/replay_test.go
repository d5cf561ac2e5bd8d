package httpserver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignatureStore(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	store := newSignatureStore(time.Minute)
	store.now = func() time.Time { return now }

	digest := []byte{0x01, 0x02}
	require.NoError(t, store.Consume(buyerA, digest, now.Unix()))
	assert.ErrorIs(t, store.Consume(buyerA, digest, now.Unix()), errReplayedSignature)

	// The same digest from another signer is a distinct request.
	assert.NoError(t, store.Consume(buyerB, digest, now.Unix()))

	assert.ErrorIs(t, store.Consume(buyerA, []byte{0x03}, now.Add(-2*time.Minute).Unix()), errStaleSignature)
	assert.ErrorIs(t, store.Consume(buyerA, []byte{0x03}, now.Add(2*time.Minute).Unix()), errStaleSignature)
	assert.Equal(t, 2, store.size())

	// Once the window has passed the entries are dropped, and the old
	// timestamp is rejected as stale instead.
	now = now.Add(2 * time.Minute)
	require.NoError(t, store.Consume(buyerA, []byte{0x04}, now.Unix()))
	assert.Equal(t, 1, store.size())
	assert.ErrorIs(t, store.Consume(buyerA, digest, now.Add(-2*time.Minute).Unix()), errStaleSignature)
}
