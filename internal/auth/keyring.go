package auth

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// keysFile is the on-disk shape of the keyring:
//
//	keys:
//	  "<api key>": "<client name>"
type keysFile struct {
	Keys map[string]string `yaml:"keys"`
}

// Keyring is the set of valid API keys, each mapped to a human-readable
// client name used for logging. Safe for concurrent use; Replace swaps the
// whole set atomically on hot reload.
type Keyring struct {
	mu   sync.RWMutex
	keys map[string]string
}

// LoadKeyring reads the keyring file at path. A file with no keys is valid
// but means every protected request will be denied.
func LoadKeyring(path string) (*Keyring, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("auth: read keyring %q: %w", path, err)
	}

	var kf keysFile
	if err := yaml.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("auth: parse keyring %q: %w", path, err)
	}

	kr := &Keyring{keys: kf.Keys}
	if kr.keys == nil {
		kr.keys = make(map[string]string)
	}
	return kr, nil
}

// Lookup returns the client name for key and whether the key is valid.
func (k *Keyring) Lookup(key string) (string, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	name, ok := k.keys[key]
	return name, ok
}

// Count returns the number of configured keys.
func (k *Keyring) Count() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.keys)
}

// Replace swaps the key set. Used by the file watcher on reload.
func (k *Keyring) Replace(keys map[string]string) {
	if keys == nil {
		keys = make(map[string]string)
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.keys = keys
}
