package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// KeyPrefix namespaces every key in the store.
const KeyPrefix = "vscode.positron-svn:"

// Account is one stored username/password pair.
type Account struct {
	Account  string `json:"account"`
	Password string `json:"password"`
}

// Keyring stores, per repository identity, the list of accounts that
// authenticated successfully. Lists are append-only.
type Keyring struct {
	store Store
	// mu serializes read-modify-write in Append.
	mu sync.Mutex
}

// NewKeyring wraps store.
func NewKeyring(store Store) *Keyring {
	return &Keyring{store: store}
}

// Key derives the store key from the first non-empty of repository root,
// URL and workspace root.
func Key(repositoryRoot, url, workspaceRoot string) string {
	for _, id := range []string{repositoryRoot, url, workspaceRoot} {
		if id != "" {
			return KeyPrefix + id
		}
	}
	return KeyPrefix
}

// Load returns the accounts stored under key, oldest first.
func (k *Keyring) Load(ctx context.Context, key string) ([]Account, error) {
	raw, ok, err := k.store.Get(ctx, key)
	if err != nil || !ok || raw == "" {
		return nil, err
	}
	var accounts []Account
	if err := json.Unmarshal([]byte(raw), &accounts); err != nil {
		return nil, fmt.Errorf("decode stored accounts: %w", err)
	}
	return accounts, nil
}

// Append adds account under key unless the same pair is already stored.
func (k *Keyring) Append(ctx context.Context, key string, account Account) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	accounts, err := k.Load(ctx, key)
	if err != nil {
		return err
	}
	for _, existing := range accounts {
		if existing == account {
			return nil
		}
	}
	accounts = append(accounts, account)
	data, err := json.Marshal(accounts)
	if err != nil {
		return fmt.Errorf("encode accounts: %w", err)
	}
	return k.store.Set(ctx, key, string(data))
}
