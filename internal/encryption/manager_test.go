package encryption

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeKMS "wraps" data keys by xoring with a fixed pad.
type fakeKMS struct {
	pad          []byte
	decryptCalls int
	failDecrypt  bool
}

func (f *fakeKMS) xor(in []byte) []byte {
	out := make([]byte, len(in))
	for i := range in {
		out[i] = in[i] ^ f.pad[i%len(f.pad)]
	}
	return out
}

func (f *fakeKMS) GenerateDataKey(ctx context.Context, in *kms.GenerateDataKeyInput, _ ...func(*kms.Options)) (*kms.GenerateDataKeyOutput, error) {
	key := make([]byte, 32)
	_, _ = rand.Read(key)
	return &kms.GenerateDataKeyOutput{Plaintext: key, CiphertextBlob: f.xor(key), KeyId: in.KeyId}, nil
}

func (f *fakeKMS) Decrypt(ctx context.Context, in *kms.DecryptInput, _ ...func(*kms.Options)) (*kms.DecryptOutput, error) {
	f.decryptCalls++
	if f.failDecrypt {
		return nil, errors.New("kms unavailable")
	}
	return &kms.DecryptOutput{Plaintext: f.xor(in.CiphertextBlob)}, nil
}

func localManager(t *testing.T) *EncryptionManager {
	t.Helper()
	key := bytes.Repeat([]byte{7}, 32)
	em, err := NewLocalEncryptionManager(key)
	require.NoError(t, err)
	return em
}

func TestLocalSealOpen(t *testing.T) {
	ctx := context.Background()
	em := localManager(t)

	sealed, err := em.Seal(ctx, "n8n-api-key-123")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "n8n-api-key-123")

	em.ClearCache()
	plain, err := em.Open(ctx, sealed)
	require.NoError(t, err)
	assert.Equal(t, "n8n-api-key-123", plain)
}

func TestLocalKeyIsWrapped(t *testing.T) {
	em := localManager(t)

	dk, err := em.GenerateDataKey(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, dk.Plaintext, dk.Ciphertext)
	assert.Equal(t, "local", dk.KeyID)
}

func TestWrongMasterKeyFails(t *testing.T) {
	ctx := context.Background()
	sealed, err := localManager(t).Seal(ctx, "secret")
	require.NoError(t, err)

	other, err := NewLocalEncryptionManager(bytes.Repeat([]byte{9}, 32))
	require.NoError(t, err)
	_, err = other.Open(ctx, sealed)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestKMSSealOpenCachesKeys(t *testing.T) {
	ctx := context.Background()
	fake := &fakeKMS{pad: []byte("pad-pad-pad")}
	em, err := NewKMSEncryptionManager(fake, "arn:aws:kms:key")
	require.NoError(t, err)

	sealed, err := em.Seal(ctx, "value")
	require.NoError(t, err)

	plain, err := em.Open(ctx, sealed)
	require.NoError(t, err)
	assert.Equal(t, "value", plain)
	assert.Equal(t, 0, fake.decryptCalls, "freshly generated key should be cached")

	em.ClearCache()
	assert.Equal(t, 0, em.GetCacheSize())
	plain, err = em.Open(ctx, sealed)
	require.NoError(t, err)
	assert.Equal(t, "value", plain)
	assert.Equal(t, 1, fake.decryptCalls)
	assert.Equal(t, "kms", em.Mode())

	em.ClearCache()
	fake.failDecrypt = true
	_, err = em.Open(ctx, sealed)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestOpenRejectsGarbage(t *testing.T) {
	em := localManager(t)
	for _, s := range []string{"", "plain", "v1:!!!", "v1:e30"} {
		_, err := em.Open(context.Background(), s)
		assert.ErrorIs(t, err, ErrDecryptionFailed, s)
	}
}

func TestParseMasterKey(t *testing.T) {
	key, generated, err := ParseMasterKey("")
	require.NoError(t, err)
	assert.True(t, generated)
	assert.Len(t, key, 32)

	_, _, err = ParseMasterKey("%%%")
	assert.Error(t, err)

	_, err = NewLocalEncryptionManager([]byte("short"))
	assert.Error(t, err)
}
