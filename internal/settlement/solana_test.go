package settlement

import (
	"context"
	"crypto/ed25519"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/latencyx/core/internal/execution"
	"github.com/latencyx/core/internal/models"
)

func TestEncodeCompactU16(t *testing.T) {
	cases := map[uint16][]byte{
		0:     {0x00},
		1:     {0x01},
		127:   {0x7f},
		128:   {0x80, 0x01},
		16384: {0x80, 0x80, 0x01},
	}
	for in, want := range cases {
		assert.Equal(t, want, encodeCompactU16(in))
	}
}

func TestBuildSignedTransferTxIsVerifiable(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	var from, to, blockhash [32]byte
	copy(from[:], pub)
	to[0] = 0xAB

	tx := buildSignedTransferTx(priv, from, to, 1_000_000, blockhash)

	// signature count (1 byte) + 64-byte signature must verify over the
	// remaining bytes, which are the signed message.
	require.True(t, len(tx) > 1+ed25519.SignatureSize)
	sig := tx[1 : 1+ed25519.SignatureSize]
	message := tx[1+ed25519.SignatureSize:]
	assert.True(t, ed25519.Verify(pub, message, sig))
}

func newTestSigner(t *testing.T) string {
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return base58.Encode(priv)
}

func TestNewGatewayRejectsBadKeyLength(t *testing.T) {
	_, err := NewGateway(base58.Encode([]byte("too short")), "http://rpc", nil, nil, nil, nil, zap.NewNop(), nil)
	assert.Error(t, err)
}

func TestSendOrderRejectsMalformedOrder(t *testing.T) {
	g, err := NewGateway(newTestSigner(t), "http://rpc", func(string) ([32]byte, bool) { return [32]byte{}, true }, nil, nil, nil, zap.NewNop(), nil)
	require.NoError(t, err)

	_, err = g.SendOrder(context.Background(), models.Order{})
	assert.ErrorIs(t, err, execution.ErrMalformedOrder)
}

func TestSendOrderRejectsUnresolvedSymbol(t *testing.T) {
	g, err := NewGateway(newTestSigner(t), "http://rpc", func(string) ([32]byte, bool) { return [32]byte{}, false }, nil, nil, nil, zap.NewNop(), nil)
	require.NoError(t, err)

	price := 100.0
	order := models.NewLimitOrder("UNKNOWN/USDC", models.Buy, 1, price, models.VenueStrategy, nil)
	_, err = g.SendOrder(context.Background(), order)
	assert.ErrorIs(t, err, execution.ErrUnsupported)
}
