package aesgcm_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nexfin/pesitd/pkg/secrets/aesgcm"
)

func TestRoundTrip(t *testing.T) {
	o, err := aesgcm.New("correct-horse-battery-staple", "partner-registry-salt")
	require.NoError(t, err)

	ctx := context.Background()
	token, err := o.Encrypt(ctx, "s3cr3t-partner-password")
	require.NoError(t, err)
	require.NotContains(t, token, "s3cr3t")

	plaintext, err := o.Decrypt(ctx, token)
	require.NoError(t, err)
	require.Equal(t, "s3cr3t-partner-password", plaintext)
}

func TestTokensAreNonDeterministicButBothDecrypt(t *testing.T) {
	o, err := aesgcm.New("passphrase", "salt")
	require.NoError(t, err)

	ctx := context.Background()
	tokenA, err := o.Encrypt(ctx, "same-plaintext")
	require.NoError(t, err)
	tokenB, err := o.Encrypt(ctx, "same-plaintext")
	require.NoError(t, err)

	require.NotEqual(t, tokenA, tokenB, "random nonce must vary each call")

	pa, err := o.Decrypt(ctx, tokenA)
	require.NoError(t, err)
	pb, err := o.Decrypt(ctx, tokenB)
	require.NoError(t, err)
	require.Equal(t, "same-plaintext", pa)
	require.Equal(t, "same-plaintext", pb)
}

func TestSharedMaterialIsClusterSafe(t *testing.T) {
	nodeA, err := aesgcm.New("cluster-shared-passphrase", "cluster-shared-salt")
	require.NoError(t, err)
	nodeB, err := aesgcm.New("cluster-shared-passphrase", "cluster-shared-salt")
	require.NoError(t, err)

	ctx := context.Background()
	token, err := nodeA.Encrypt(ctx, "transfer-credential")
	require.NoError(t, err)

	plaintext, err := nodeB.Decrypt(ctx, token)
	require.NoError(t, err)
	require.Equal(t, "transfer-credential", plaintext)
}

func TestDifferentMaterialCannotDecrypt(t *testing.T) {
	nodeA, err := aesgcm.New("passphrase-one", "salt")
	require.NoError(t, err)
	nodeB, err := aesgcm.New("passphrase-two", "salt")
	require.NoError(t, err)

	ctx := context.Background()
	token, err := nodeA.Encrypt(ctx, "secret")
	require.NoError(t, err)

	_, err = nodeB.Decrypt(ctx, token)
	require.Error(t, err)
}

func TestNewRejectsEmptyMaterial(t *testing.T) {
	_, err := aesgcm.New("", "salt")
	require.Error(t, err)

	_, err = aesgcm.New("passphrase", "")
	require.Error(t, err)
}

func TestDecryptRejectsMalformedToken(t *testing.T) {
	o, err := aesgcm.New("passphrase", "salt")
	require.NoError(t, err)

	_, err = o.Decrypt(context.Background(), "not-base64!!!")
	require.Error(t, err)

	_, err = o.Decrypt(context.Background(), "YQ")
	require.Error(t, err)
}
