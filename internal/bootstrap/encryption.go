package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/hakim-ai/identity-gateway/internal/data/cryptoutil"
)

// CreateEncryptor creates the AES-GCM encryptor protecting profile fields at rest.
// A 64-character hex key is used as is; any other value is stretched with HKDF.
// An empty key yields a noop encryptor in development and an error otherwise.
//
//nolint:ireturn // Returning interface is intentional for encryptor abstraction
func CreateEncryptor(key string, isDev bool, logger *slog.Logger) (cryptoutil.Encryptor, error) {
	if key == "" {
		if !isDev {
			return nil, errors.New("payload encryption key is required")
		}
		if logger != nil {
			logger.Warn("payload encryption key is empty, profile fields are stored unencrypted")
		}
		return cryptoutil.NoopEncryptor{}, nil
	}

	keyBytes, err := cryptoutil.DeriveKey(key)
	if err != nil {
		return nil, fmt.Errorf("derive payload key: %w", err)
	}
	enc, err := cryptoutil.NewAESGCMEncryptor(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("create encryptor: %w", err)
	}
	return enc, nil
}
