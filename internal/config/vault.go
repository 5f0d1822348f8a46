package config

import (
	"fmt"

	"github.com/hashicorp/vault/api"
)

// SecretManager wraps the Vault API client for reading the broker
// credentials and database DSN out of band from the YAML/env config.
// Adapted from packages/go-core/config/vault.go.
type SecretManager struct {
	client *api.Client
}

// NewSecretManager creates a Vault client pointed at the given address and
// authenticated with the provided token.
func NewSecretManager(address, token string) (*SecretManager, error) {
	cfg := api.DefaultConfig()
	cfg.Address = address

	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vault client initialization failed: %w", err)
	}
	client.SetToken(token)

	return &SecretManager{client: client}, nil
}

// GetSecret reads a secret at the given path and returns the raw data map.
// For KV v2 backends the caller must unwrap the nested "data" key.
func (s *SecretManager) GetSecret(path string) (map[string]interface{}, error) {
	secret, err := s.client.Logical().Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret at %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("no data found at %s", path)
	}
	return secret.Data, nil
}

// GetKV2 is a convenience wrapper that reads from a KV v2 backend and
// returns the inner "data" map, unwrapping the v2 envelope automatically.
func (s *SecretManager) GetKV2(path string) (map[string]interface{}, error) {
	raw, err := s.GetSecret(path)
	if err != nil {
		return nil, err
	}
	data, ok := raw["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected data format at %s", path)
	}
	return data, nil
}

// BrokerCreds is the shape expected at the broker secret's KV2 path.
type BrokerCreds struct {
	CredsFile string
	Token     string
}

// LoadBrokerCreds reads NATS auth material from Vault. Either field may be
// empty; callers fall back to unauthenticated/env-based connection in that
// case, matching the fabric's tolerance for partial configuration at the
// edge tiers.
func LoadBrokerCreds(sm *SecretManager, path string) (BrokerCreds, error) {
	data, err := sm.GetKV2(path)
	if err != nil {
		return BrokerCreds{}, err
	}
	creds := BrokerCreds{}
	if v, ok := data["creds_file"].(string); ok {
		creds.CredsFile = v
	}
	if v, ok := data["token"].(string); ok {
		creds.Token = v
	}
	return creds, nil
}

// LoadDatabaseDSN reads the Postgres connection string from Vault.
func LoadDatabaseDSN(sm *SecretManager, path string) (string, error) {
	data, err := sm.GetKV2(path)
	if err != nil {
		return "", err
	}
	dsn, ok := data["dsn"].(string)
	if !ok {
		return "", fmt.Errorf("secret at %s has no string 'dsn' field", path)
	}
	return dsn, nil
}
