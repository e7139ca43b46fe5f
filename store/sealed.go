package store

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"
)

// SealedKV encrypts every value with age before handing it to the
// wrapped store. Keys stay in the clear.
type SealedKV struct {
	inner     KV
	identity  *age.X25519Identity
	recipient *age.X25519Recipient
}

func NewSealedKV(inner KV, identity *age.X25519Identity) *SealedKV {
	return &SealedKV{
		inner:     inner,
		identity:  identity,
		recipient: identity.Recipient(),
	}
}

// LoadOrCreateIdentity reads the age identity at path, generating and
// writing a new one (mode 0600) when the file does not exist.
func LoadOrCreateIdentity(path string) (*age.X25519Identity, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		identity, err := age.ParseX25519Identity(strings.TrimSpace(string(data)))
		if err != nil {
			return nil, fmt.Errorf("parsing identity %s: %w", path, err)
		}
		return identity, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading identity %s: %w", path, err)
	}

	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating age identity: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(identity.String()+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("writing identity %s: %w", path, err)
	}
	return identity, nil
}

func (s *SealedKV) Get(ctx context.Context, key string) (string, bool, error) {
	sealed, ok, err := s.inner.Get(ctx, key)
	if err != nil || !ok {
		return "", ok, err
	}
	value, err := s.open(sealed)
	if err != nil {
		return "", false, fmt.Errorf("unsealing %s: %w", key, err)
	}
	return value, true, nil
}

func (s *SealedKV) SetMany(ctx context.Context, values map[string]string) error {
	sealed := make(map[string]string, len(values))
	for key, value := range values {
		ciphertext, err := s.seal(value)
		if err != nil {
			return fmt.Errorf("sealing %s: %w", key, err)
		}
		sealed[key] = ciphertext
	}
	return s.inner.SetMany(ctx, sealed)
}

func (s *SealedKV) Delete(ctx context.Context, keys ...string) error {
	return s.inner.Delete(ctx, keys...)
}

func (s *SealedKV) Close() error {
	return s.inner.Close()
}

func (s *SealedKV) seal(plaintext string) (string, error) {
	var buf bytes.Buffer
	writer, err := age.Encrypt(&buf, s.recipient)
	if err != nil {
		return "", fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := io.WriteString(writer, plaintext); err != nil {
		return "", fmt.Errorf("writing plaintext: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("finalizing age encryption: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func (s *SealedKV) open(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("decoding base64 ciphertext: %w", err)
	}
	reader, err := age.Decrypt(bytes.NewReader(raw), s.identity)
	if err != nil {
		var noMatch *age.NoIdentityMatchError
		if errors.As(err, &noMatch) {
			return "", errors.New("value was sealed with a different identity")
		}
		return "", fmt.Errorf("decrypting: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("reading decrypted value: %w", err)
	}
	return string(plaintext), nil
}
