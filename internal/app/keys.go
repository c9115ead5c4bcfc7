package app

import (
	"fmt"
	"strings"

	"github.com/sentinelsoc/sentinel/internal/vault"
)

// OpenVault returns the cipher for stored API keys. An explicit master key
// wins over the key file; otherwise the key file is loaded or created.
// created reports whether a new key file was written.
func OpenVault(cfg VaultConfig) (cipher *vault.Crypto, created bool, err error) {
	if encoded := strings.TrimSpace(cfg.MasterKey); encoded != "" {
		key, err := vault.DecodeMasterKey(encoded)
		if err != nil {
			return nil, false, fmt.Errorf("vault.master_key: %w", err)
		}
		cipher, err = vault.NewCrypto(key)
		if err != nil {
			return nil, false, err
		}
		return cipher, false, nil
	}

	path := strings.TrimSpace(cfg.KeyFile)
	if path == "" {
		return nil, false, fmt.Errorf("vault.key_file must be configured")
	}
	return vault.Open(path)
}
