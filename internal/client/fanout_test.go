package client

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"group-messaging-service/internal/crypto"
)

func TestFanOut(t *testing.T) {
	keys := loadTestKeys(t)
	directory := map[string]string{
		"alice":   encodePub(t, keys[0]),
		"bob":     encodePub(t, keys[1]),
		"carol":   encodePub(t, keys[2]),
		"nokey":   "",
		"corrupt": "not a key",
	}

	ciphertexts, err := FanOut(context.Background(), []byte("hi all"), directory)
	require.NoError(t, err)
	require.Len(t, ciphertexts, 3)
	require.NotContains(t, ciphertexts, "nokey")
	require.NotContains(t, ciphertexts, "corrupt")

	for i, id := range []string{"alice", "bob", "carol"} {
		pt, err := crypto.Decrypt(keys[i].Private, ciphertexts[id])
		require.NoError(t, err)
		require.Equal(t, "hi all", string(pt))
	}
}

func TestFanOut_Limit(t *testing.T) {
	keys := loadTestKeys(t)
	directory := map[string]string{
		"alice": encodePub(t, keys[0]),
		"bob":   encodePub(t, keys[1]),
	}

	ciphertexts, err := fanOut(context.Background(), []byte("hi"), directory, 1)
	require.NoError(t, err)
	require.Len(t, ciphertexts, 2)
}

func TestFanOut_PlaintextTooLong(t *testing.T) {
	keys := loadTestKeys(t)
	directory := map[string]string{"alice": encodePub(t, keys[0])}

	ciphertexts, err := FanOut(context.Background(), []byte(strings.Repeat("x", 191)), directory)
	require.NoError(t, err)
	require.Empty(t, ciphertexts)
}

func TestFanOut_EmptyDirectory(t *testing.T) {
	ciphertexts, err := FanOut(context.Background(), []byte("hi"), nil)
	require.NoError(t, err)
	require.Empty(t, ciphertexts)
}

func TestFanOut_Canceled(t *testing.T) {
	keys := loadTestKeys(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := FanOut(ctx, []byte("hi"), map[string]string{"alice": encodePub(t, keys[0])})
	require.ErrorIs(t, err, context.Canceled)
}
