package encryption

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"workflow-dashboard/internal/util"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"go.uber.org/zap"
)

var (
	ErrEncryptionFailed = errors.New("encryption failed")
	ErrDecryptionFailed = errors.New("decryption failed")
)

const (
	sealedPrefix = "v1:"
	localKeyID   = "local"
)

// KMSAPI is the subset of the KMS client used for data keys.
type KMSAPI interface {
	GenerateDataKey(ctx context.Context, params *kms.GenerateDataKeyInput, optFns ...func(*kms.Options)) (*kms.GenerateDataKeyOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

type EncryptedData struct {
	EncryptedValue string    `json:"encrypted_value"`
	EncryptedDEK   string    `json:"encrypted_dek"`
	KeyID          string    `json:"key_id"`
	Version        string    `json:"version"`
	CreatedAt      time.Time `json:"created_at"`
}

type DataKey struct {
	Plaintext  []byte
	Ciphertext []byte
	KeyID      string
}

// EncryptionManager does envelope encryption of individual fields. Data keys
// come from KMS when a client is configured, otherwise they are wrapped with a
// local 256-bit master key.
type EncryptionManager struct {
	kmsClient KMSAPI
	kmsKeyID  string
	masterKey []byte
	keyCache  sync.Map // encrypted DEK (base64) -> plaintext DEK
}

// NewKMSEncryptionManager uses KMS for data keys.
func NewKMSEncryptionManager(client KMSAPI, keyID string) (*EncryptionManager, error) {
	if client == nil || keyID == "" {
		return nil, errors.New("kms client and key id are required")
	}
	return &EncryptionManager{kmsClient: client, kmsKeyID: keyID}, nil
}

// NewLocalEncryptionManager wraps data keys with masterKey, which must be 32 bytes.
func NewLocalEncryptionManager(masterKey []byte) (*EncryptionManager, error) {
	if len(masterKey) != 32 {
		return nil, fmt.Errorf("master key must be 32 bytes, got %d", len(masterKey))
	}
	return &EncryptionManager{masterKey: masterKey}, nil
}

// ParseMasterKey decodes a base64 master key. An empty value yields a random
// key, which only makes sense for development since data becomes unreadable
// after restart.
func ParseMasterKey(encoded string) ([]byte, bool, error) {
	if encoded == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, false, err
		}
		return key, true, nil
	}
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, false, fmt.Errorf("invalid master key encoding: %w", err)
	}
	return key, false, nil
}

// GenerateDataKey generates a new data encryption key.
func (em *EncryptionManager) GenerateDataKey(ctx context.Context) (*DataKey, error) {
	if em.kmsClient == nil {
		return em.generateLocalKey()
	}

	result, err := em.kmsClient.GenerateDataKey(ctx, &kms.GenerateDataKeyInput{
		KeyId:   aws.String(em.kmsKeyID),
		KeySpec: types.DataKeySpecAes256,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate data key: %w", err)
	}

	return &DataKey{
		Plaintext:  result.Plaintext,
		Ciphertext: result.CiphertextBlob,
		KeyID:      em.kmsKeyID,
	}, nil
}

func (em *EncryptionManager) generateLocalKey() (*DataKey, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate local data key: %w", err)
	}

	wrapped, err := seal(em.masterKey, key)
	if err != nil {
		return nil, err
	}

	return &DataKey{
		Plaintext:  key,
		Ciphertext: wrapped,
		KeyID:      localKeyID,
	}, nil
}

// EncryptField encrypts plaintext under a fresh data key.
func (em *EncryptionManager) EncryptField(ctx context.Context, plaintext string) (*EncryptedData, error) {
	dataKey, err := em.GenerateDataKey(ctx)
	if err != nil {
		return nil, err
	}

	ciphertext, err := seal(dataKey.Plaintext, []byte(plaintext))
	if err != nil {
		return nil, err
	}

	encryptedDEK := base64.StdEncoding.EncodeToString(dataKey.Ciphertext)
	em.keyCache.Store(encryptedDEK, dataKey.Plaintext)

	return &EncryptedData{
		EncryptedValue: base64.StdEncoding.EncodeToString(ciphertext),
		EncryptedDEK:   encryptedDEK,
		KeyID:          dataKey.KeyID,
		Version:        "v1",
		CreatedAt:      time.Now().UTC(),
	}, nil
}

// DecryptField decrypts a value produced by EncryptField.
func (em *EncryptionManager) DecryptField(ctx context.Context, data *EncryptedData) (string, error) {
	if cached, ok := em.keyCache.Load(data.EncryptedDEK); ok {
		return decryptWithKey(data.EncryptedValue, cached.([]byte))
	}

	wrapped, err := base64.StdEncoding.DecodeString(data.EncryptedDEK)
	if err != nil {
		return "", fmt.Errorf("%w: invalid DEK format", ErrDecryptionFailed)
	}

	var plaintextDEK []byte
	if data.KeyID == localKeyID {
		if em.masterKey == nil {
			return "", fmt.Errorf("%w: local key without master key", ErrDecryptionFailed)
		}
		plaintextDEK, err = open(em.masterKey, wrapped)
		if err != nil {
			return "", err
		}
	} else {
		if em.kmsClient == nil {
			return "", fmt.Errorf("%w: kms key without kms client", ErrDecryptionFailed)
		}
		result, err := em.kmsClient.Decrypt(ctx, &kms.DecryptInput{CiphertextBlob: wrapped})
		if err != nil {
			return "", fmt.Errorf("%w: failed to decrypt DEK: %v", ErrDecryptionFailed, err)
		}
		plaintextDEK = result.Plaintext
	}

	em.keyCache.Store(data.EncryptedDEK, plaintextDEK)

	return decryptWithKey(data.EncryptedValue, plaintextDEK)
}

// Seal encrypts plaintext and encodes the envelope as a single storable string.
func (em *EncryptionManager) Seal(ctx context.Context, plaintext string) (string, error) {
	data, err := em.EncryptField(ctx, plaintext)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	return sealedPrefix + base64.RawURLEncoding.EncodeToString(raw), nil
}

// Open reverses Seal.
func (em *EncryptionManager) Open(ctx context.Context, sealed string) (string, error) {
	if !strings.HasPrefix(sealed, sealedPrefix) {
		return "", fmt.Errorf("%w: unknown envelope version", ErrDecryptionFailed)
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(sealed, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: invalid envelope encoding", ErrDecryptionFailed)
	}
	var data EncryptedData
	if err := json.Unmarshal(raw, &data); err != nil {
		return "", fmt.Errorf("%w: invalid envelope", ErrDecryptionFailed)
	}
	return em.DecryptField(ctx, &data)
}

// ClearCache drops cached data keys.
func (em *EncryptionManager) ClearCache() {
	em.keyCache.Range(func(key, value interface{}) bool {
		em.keyCache.Delete(key)
		return true
	})
	util.Debug("Encryption key cache cleared", zap.String("mode", em.Mode()))
}

func (em *EncryptionManager) GetCacheSize() int {
	count := 0
	em.keyCache.Range(func(_, _ interface{}) bool {
		count++
		return true
	})
	return count
}

func (em *EncryptionManager) Mode() string {
	if em.kmsClient != nil {
		return "kms"
	}
	return "local"
}

func seal(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func open(key, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecryptionFailed)
	}
	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return plaintext, nil
}

func decryptWithKey(encryptedValue string, key []byte) (string, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(encryptedValue)
	if err != nil {
		return "", fmt.Errorf("%w: invalid ciphertext format", ErrDecryptionFailed)
	}
	plaintext, err := open(key, ciphertext)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
