package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/vault/api"
	"github.com/kelseyhightower/envconfig"

	"github.com/architeacher/svc-pubsub-harness/internal/ports"
)

var errSecretStorageDisabled = errors.New("secret storage is not enabled")

// Loader overlays secrets on a parsed configuration and dumps it on demand.
type Loader struct {
	cfg         *ServiceConfig
	secretsRepo ports.SecretsRepository
	dumpSignal  chan os.Signal
	retryDelay  time.Duration
}

// NewLoader creates a new config loader instance.
func NewLoader(cfg *ServiceConfig, secretsRepo ports.SecretsRepository) *Loader {
	return &Loader{
		cfg:         cfg,
		secretsRepo: secretsRepo,
		dumpSignal:  make(chan os.Signal, 1),
		retryDelay:  time.Second,
	}
}

// WatchDumpSignal dumps the configuration to w on every SIGUSR1 until ctx is done.
func (l *Loader) WatchDumpSignal(ctx context.Context, w io.Writer) {
	signal.Notify(l.dumpSignal, syscall.SIGUSR1)

	go func() {
		defer signal.Stop(l.dumpSignal)

		for {
			select {
			case <-ctx.Done():
				return
			case <-l.dumpSignal:
				l.DumpConfig(w)
			}
		}
	}()
}

// DumpConfig writes the current configuration as JSON. Credentials are never included.
func (l *Loader) DumpConfig(w io.Writer) {
	configJSON, err := json.MarshalIndent(l.cfg, "", "  ")
	if err != nil {
		fmt.Fprintf(w, "Error marshaling config: %v\n", err)

		return
	}

	fmt.Fprintf(w, "\n=== Configuration Dump ===\n%s\n=== End Configuration ===\n\n", string(configJSON))
}

// Load applies the secrets stored in Vault to the loader's config and returns the
// secret version that was read.
func (l *Loader) Load(ctx context.Context) (uint, error) {
	if !l.cfg.SecretStorage.Enabled {
		return 0, errSecretStorageDisabled
	}

	if err := l.authenticateVault(ctx, l.cfg.SecretStorage); err != nil {
		return 0, fmt.Errorf("failed to authenticate with Vault: %w", err)
	}

	secret, err := l.getSecretsWithRetry(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load secrets from Vault: %w", err)
	}

	data, err := l.secretSection(secret, "data")
	if err != nil {
		return 0, err
	}

	if err := l.applySecretsToConfig(data); err != nil {
		return 0, fmt.Errorf("failed to apply secrets to config: %w", err)
	}

	metadata, err := l.secretSection(secret, "metadata")
	if err != nil {
		return 0, err
	}

	version, err := getSecretVersion(metadata)
	if err != nil {
		return 0, fmt.Errorf("failed to get secret version: %w", err)
	}

	return version, nil
}

// Init config from environment variables.
func Init() (*ServiceConfig, error) {
	cfg := &ServiceConfig{}

	err := envconfig.Process("", cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to parse service configuration: %w", err)
	}

	if len(ServiceVersion) != 0 {
		cfg.AppConfig.ServiceVersion = ServiceVersion
	}

	if len(CommitSHA) != 0 {
		cfg.AppConfig.CommitSHA = CommitSHA
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the struct constraints of every section.
func (c *ServiceConfig) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return fmt.Errorf("invalid service configuration: %w", err)
	}

	return nil
}

func (l *Loader) authenticateVault(ctx context.Context, config SecretStorageConfig) error {
	switch strings.ToLower(config.AuthMethod) {
	case "token":
		if config.Token == "" {
			return fmt.Errorf("token is required for token auth method")
		}
		l.secretsRepo.SetToken(config.Token)
		return nil

	case "approle":
		if config.RoleID == "" || config.SecretID == "" {
			return fmt.Errorf("role_id and secret_id are required for approle auth method")
		}

		data := map[string]any{
			"role_id":   config.RoleID,
			"secret_id": config.SecretID,
		}

		resp, err := l.secretsRepo.WriteWithContext(ctx, "auth/approle/login", data)
		if err != nil {
			return fmt.Errorf("failed to authenticate via approle: %w", err)
		}

		if resp == nil || resp.Auth == nil {
			return fmt.Errorf("no auth info returned from Vault")
		}

		l.secretsRepo.SetToken(resp.Auth.ClientToken)
		return nil

	default:
		return fmt.Errorf("unsupported auth method: %s", config.AuthMethod)
	}
}

func (l *Loader) getSecretsWithRetry(ctx context.Context) (*api.Secret, error) {
	path := fmt.Sprintf("apps/data/%s", l.cfg.SecretStorage.MountPath)

	ctx, cancel := context.WithTimeout(ctx, l.cfg.SecretStorage.Timeout)
	defer cancel()

	var (
		secret *api.Secret
		err    error
	)

	for attempt := 0; attempt <= l.cfg.SecretStorage.MaxRetries; attempt++ {
		secret, err = l.secretsRepo.GetSecrets(ctx, path)
		if err == nil {
			break
		}

		if attempt < l.cfg.SecretStorage.MaxRetries {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("failed to read from path %s: %w", path, ctx.Err())
			case <-time.After(time.Duration(attempt+1) * l.retryDelay):
			}
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read from path %s after %d retries: %w", path, l.cfg.SecretStorage.MaxRetries, err)
	}

	return secret, nil
}

// secretSection extracts the "data" or "metadata" map of a KV v2 response.
func (l *Loader) secretSection(secret *api.Secret, section string) (map[string]any, error) {
	if secret == nil || secret.Data == nil {
		return nil, nil
	}

	raw, ok := secret.Data[section]
	if !ok || raw == nil {
		return nil, nil
	}

	result, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("invalid secret format at path apps/data/%s, missing '%s' key", l.cfg.SecretStorage.MountPath, section)
	}

	return result, nil
}

func getSecretVersion(metadata map[string]any) (uint, error) {
	if metadata == nil {
		return 0, nil
	}

	currentVersion, ok := metadata["version"]
	if !ok {
		return 0, nil
	}

	switch v := currentVersion.(type) {
	case float64:
		return uint(v), nil
	case int:
		return uint(v), nil
	case uint:
		return v, nil
	case json.Number:
		version, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("failed to parse version: %w", err)
		}

		return uint(version), nil
	default:
		return 0, fmt.Errorf("unexpected version type: %T", currentVersion)
	}
}

// applySecretsToConfig directly from flat key-value pairs stored in Vault
func (l *Loader) applySecretsToConfig(data map[string]any) error {
	for key, value := range data {
		strValue, ok := value.(string)
		if !ok || strValue == "" {
			continue
		}

		if err := l.applySecretToConfig(key, strValue); err != nil {
			return err
		}
	}

	return nil
}

func (l *Loader) applySecretToConfig(key, value string) error {
	switch key {
	case "RABBITMQ_USERNAME":
		l.cfg.Queue.Username = value
	case "RABBITMQ_PASSWORD":
		l.cfg.Queue.Password = value
	case "RABBITMQ_HOST":
		l.cfg.Queue.Host = value
	case "RABBITMQ_VIRTUAL_HOST":
		l.cfg.Queue.VirtualHost = value
	case "RABBITMQ_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid RABBITMQ_PORT %q: %w", value, err)
		}
		l.cfg.Queue.Port = port
	}

	return nil
}
