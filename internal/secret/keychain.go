package secret

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

const keychainService = "nyql"

// KeychainStore implements SecretStore using the macOS Keychain
// via the `security` CLI tool. On other systems it holds no secrets.
type KeychainStore struct {
	service string
}

// NewKeychainStore creates a new KeychainStore.
func NewKeychainStore() *KeychainStore {
	return &KeychainStore{service: keychainService}
}

// Get retrieves a secret from the macOS Keychain.
// Returns empty slice and nil error if the key doesn't exist.
func (k *KeychainStore) Get(ctx context.Context, key string) ([]byte, error) {
	if runtime.GOOS != "darwin" {
		return nil, nil
	}
	cmd := exec.CommandContext(ctx, "security", "find-generic-password",
		"-a", key,
		"-s", k.service,
		"-w", // output only the password
	)
	out, err := cmd.Output()
	if err != nil {
		// "security" returns exit code 44 when item not found
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 44 {
			return nil, nil
		}
		return nil, fmt.Errorf("keychain get %s: %w", key, err)
	}
	return []byte(strings.TrimSpace(string(out))), nil
}
