package secret

import (
	"context"
	"os"
	"strings"
)

// SecretStore looks up sensitive values such as database passwords.
type SecretStore interface {
	// Get returns the secret stored under key, or an empty slice and nil
	// error when there is none.
	Get(ctx context.Context, key string) ([]byte, error)
}

// EnvPrefix names the environment variables EnvStore reads.
const EnvPrefix = "NYQL_SECRET_"

// EnvStore reads secrets from NYQL_SECRET_<KEY>, with the key upper-cased
// and every character outside [A-Z0-9] replaced by '_'.
type EnvStore struct{}

func (EnvStore) Get(_ context.Context, key string) ([]byte, error) {
	return []byte(os.Getenv(EnvName(key))), nil
}

// EnvName returns the variable EnvStore consults for key.
func EnvName(key string) string {
	return EnvPrefix + strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		}
		return '_'
	}, key)
}

// Chain asks each store in order and returns the first non-empty secret.
type Chain []SecretStore

func (c Chain) Get(ctx context.Context, key string) ([]byte, error) {
	for _, s := range c {
		v, err := s.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if len(v) > 0 {
			return v, nil
		}
	}
	return nil, nil
}

// Default is the environment followed by the keychain.
func Default() SecretStore {
	return Chain{EnvStore{}, NewKeychainStore()}
}
