package codec

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"

	crosscloudkiterrors "github.com/bkio/crosscloudkit/pkg/errors"
)

// kmsAPI is the subset of the KMS client the envelope encryption service
// calls, narrowed for testability the way the teacher's
// internal/encryption.Service narrows its kms dependency.
type kmsAPI interface {
	GenerateDataKey(ctx context.Context, params *kms.GenerateDataKeyInput, optFns ...func(*kms.Options)) (*kms.GenerateDataKeyOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// Envelope is the portable, versioned encrypted form of a Bytes primitive's
// plaintext, stored as a nested object in the Item's JSON form in place of
// the raw bytes (spec §4 supplemented feature: optional KMS envelope
// encryption, scoped strictly to the Bytes kind). Grounded on the teacher's
// internal/encryption.Service envelope shape, adapted from an
// AttributeValue-shaped envelope to a plain JSON object since this codec
// has no AttributeValue dependency of its own.
type Envelope struct {
	Version    string `json:"v"`
	DataKey    []byte `json:"edk"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ct"`
}

const envelopeVersionV1 = "1"

// IsEnvelope reports whether v decoded from JSON looks like an Envelope
// (used by the read path to decide whether a Bytes attribute needs
// decryption before being handed back to the caller).
func IsEnvelope(v any) bool {
	m, ok := v.(map[string]any)
	if !ok {
		return false
	}
	_, hasV := m["v"]
	_, hasEDK := m["edk"]
	_, hasCT := m["ct"]
	return hasV && hasEDK && hasCT
}

// EncryptionService implements envelope encryption of Bytes primitive
// plaintext using AWS KMS: GenerateDataKey produces a fresh per-attribute
// data key, AES-GCM seals the plaintext locally, and the wrapped
// (encrypted) data key travels alongside the ciphertext in the Envelope so
// decryption only needs one KMS round trip (kms.Decrypt on the edk).
type EncryptionService struct {
	kms    kmsAPI
	rand   io.Reader
	keyARN string
}

func NewEncryptionService(keyARN string, kmsClient kmsAPI) *EncryptionService {
	return &EncryptionService{keyARN: keyARN, kms: kmsClient, rand: rand.Reader}
}

// NewEncryptionServiceFromConfig builds the KMS client from cfg, mirroring
// the teacher's NewServiceFromAWSConfig constructor.
func NewEncryptionServiceFromConfig(keyARN string, cfg aws.Config) *EncryptionService {
	return NewEncryptionService(keyARN, kms.NewFromConfig(cfg))
}

// Encrypt seals plaintext (a Bytes primitive's raw value) under a freshly
// generated data key, binding attributeName as additional authenticated
// data so a ciphertext cannot be replayed under a different attribute name.
func (s *EncryptionService) Encrypt(ctx context.Context, attributeName string, plaintext []byte) (Envelope, error) {
	if s == nil || s.kms == nil {
		return Envelope{}, fmt.Errorf("codec: encryption service not configured")
	}
	if s.keyARN == "" {
		return Envelope{}, fmt.Errorf("codec: kms key ARN is empty")
	}
	if attributeName == "" {
		return Envelope{}, fmt.Errorf("codec: attribute name is empty")
	}

	dataKey, err := s.kms.GenerateDataKey(ctx, &kms.GenerateDataKeyInput{
		KeyId:   aws.String(s.keyARN),
		KeySpec: kmstypes.DataKeySpecAes256,
	})
	if err != nil {
		return Envelope{}, fmt.Errorf("codec: kms GenerateDataKey failed: %w", err)
	}
	if len(dataKey.Plaintext) != 32 {
		return Envelope{}, fmt.Errorf("codec: unexpected data key plaintext length %d", len(dataKey.Plaintext))
	}

	gcm, err := newGCM(dataKey.Plaintext)
	if err != nil {
		return Envelope{}, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(s.rand, nonce); err != nil {
		return Envelope{}, fmt.Errorf("codec: nonce generation failed: %w", err)
	}

	ct := gcm.Seal(nil, nonce, plaintext, aadForAttribute(attributeName))
	return Envelope{Version: envelopeVersionV1, DataKey: dataKey.CiphertextBlob, Nonce: nonce, Ciphertext: ct}, nil
}

// Decrypt reverses Encrypt, unwrapping env.DataKey via KMS and opening the
// AES-GCM ciphertext with attributeName as AAD.
func (s *EncryptionService) Decrypt(ctx context.Context, attributeName string, env Envelope) ([]byte, error) {
	if s == nil || s.kms == nil {
		return nil, fmt.Errorf("codec: encryption service not configured")
	}
	if env.Version != envelopeVersionV1 {
		return nil, fmt.Errorf("codec: unsupported encrypted envelope version %q", env.Version)
	}

	dec, err := s.kms.Decrypt(ctx, &kms.DecryptInput{CiphertextBlob: env.DataKey, KeyId: aws.String(s.keyARN)})
	if err != nil {
		return nil, fmt.Errorf("codec: kms Decrypt failed: %w", err)
	}
	if len(dec.Plaintext) != 32 {
		return nil, fmt.Errorf("codec: unexpected data key plaintext length %d", len(dec.Plaintext))
	}

	gcm, err := newGCM(dec.Plaintext)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, env.Nonce, env.Ciphertext, aadForAttribute(attributeName))
	if err != nil {
		return nil, fmt.Errorf("codec: aes-gcm decrypt failed: %w", err)
	}
	return plaintext, nil
}

func aadForAttribute(attributeName string) []byte {
	return []byte(fmt.Sprintf("crosscloudkit:encrypted:v1|attr=%s", attributeName))
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("codec: aes cipher init failed: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("codec: aes-gcm init failed: %w", err)
	}
	return gcm, nil
}

// EncryptedFieldNotQueryable aliases the pkg/errors sentinel for a condition
// leaf on an encrypted attribute. No condition compiler in this module
// returns it; leaves on encrypted attributes are compiled like any other.
var EncryptedFieldNotQueryable = crosscloudkiterrors.ErrEncryptedFieldNotQueryable
