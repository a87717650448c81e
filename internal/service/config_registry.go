package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"alcyxob/attachment-offload/internal/domain"
	"alcyxob/attachment-offload/internal/logging"
	"alcyxob/attachment-offload/internal/repository"
	"alcyxob/attachment-offload/internal/storage"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// RemoteConfigInput carries the administrator-editable fields of a RemoteConfig.
type RemoteConfigInput struct {
	Name      string `json:"name"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	Bucket    string `json:"bucket"`
	Region    string `json:"region"`
	Endpoint  string `json:"endpoint"`
	Active    bool   `json:"active"`
}

// TestResult is the outcome of a connection test, phrased for an operator.
type TestResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ConfigRegistry owns the set of remote configurations and the single
// active one. Lookups are never cached so activation changes apply to the
// next operation.
type ConfigRegistry interface {
	GetActive(ctx context.Context) (*domain.RemoteConfig, error)
	Activate(ctx context.Context, id primitive.ObjectID) (*domain.RemoteConfig, error)

	Create(ctx context.Context, input RemoteConfigInput) (*domain.RemoteConfig, error)
	Update(ctx context.Context, id primitive.ObjectID, input RemoteConfigInput) (*domain.RemoteConfig, error)
	Get(ctx context.Context, id primitive.ObjectID) (*domain.RemoteConfig, error)
	List(ctx context.Context) ([]domain.RemoteConfig, error)
	Delete(ctx context.Context, id primitive.ObjectID) error

	TestConnection(ctx context.Context, id primitive.ObjectID) (*TestResult, error)
	// Bootstrap seeds an active config when none exist. It reports whether
	// a config was created.
	Bootstrap(ctx context.Context, seed RemoteConfigInput) (bool, error)
}

// configRegistry implements ConfigRegistry.
type configRegistry struct {
	repo    repository.RemoteConfigRepository
	factory storage.ClientFactory

	// activateMu serializes activations within this process. Activations
	// from separate processes can still interleave; the post-write count
	// check reports that case.
	activateMu sync.Mutex
}

// NewConfigRegistry creates a new ConfigRegistry.
func NewConfigRegistry(repo repository.RemoteConfigRepository, factory storage.ClientFactory) ConfigRegistry {
	return &configRegistry{repo: repo, factory: factory}
}

// GetActive returns the active config or storage.ErrNoActiveConfig.
func (s *configRegistry) GetActive(ctx context.Context) (*domain.RemoteConfig, error) {
	cfg, err := s.repo.GetActive(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, storage.ErrNoActiveConfig
		}
		return nil, err
	}
	return cfg, nil
}

// Activate makes id the only active config.
func (s *configRegistry) Activate(ctx context.Context, id primitive.ObjectID) (*domain.RemoteConfig, error) {
	s.activateMu.Lock()
	defer s.activateMu.Unlock()

	cfg, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.repo.DeactivateAllExcept(ctx, id); err != nil {
		return nil, fmt.Errorf("deactivate other configs: %w", err)
	}
	if err := s.repo.SetActive(ctx, id, true); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			logging.Error("activation rejected by unique active index", zap.String("configId", id.Hex()))
			return nil, ErrMultipleActiveConfigs
		}
		return nil, fmt.Errorf("activate config: %w", err)
	}

	count, err := s.repo.CountActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("verify active configs: %w", err)
	}
	if count != 1 {
		logging.Error("active config invariant violated after activation",
			zap.String("configId", id.Hex()), zap.Int64("activeCount", count))
		return nil, ErrMultipleActiveConfigs
	}

	cfg.Active = true
	logging.Info("remote config activated", zap.String("configId", id.Hex()), zap.String("name", cfg.Name), zap.String("bucket", cfg.Bucket))
	return cfg, nil
}

// Create validates and stores a new config, activating it when requested.
func (s *configRegistry) Create(ctx context.Context, input RemoteConfigInput) (*domain.RemoteConfig, error) {
	input = normalizeConfigInput(input)
	if missing := missingConfigFields(input, true); len(missing) > 0 {
		return nil, validationError("missing required fields: %s", strings.Join(missing, ", "))
	}

	cfg := &domain.RemoteConfig{
		Name:      input.Name,
		AccessKey: input.AccessKey,
		SecretKey: input.SecretKey,
		Bucket:    input.Bucket,
		Region:    input.Region,
		Endpoint:  input.Endpoint,
	}
	if _, err := s.repo.Create(ctx, cfg); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrConfigNameTaken
		}
		return nil, err
	}
	logging.Info("remote config created", zap.String("configId", cfg.ID.Hex()), zap.String("name", cfg.Name))

	if input.Active {
		return s.Activate(ctx, cfg.ID)
	}
	return cfg, nil
}

// Update replaces the editable fields of a config. An empty secret keeps the
// stored one.
func (s *configRegistry) Update(ctx context.Context, id primitive.ObjectID, input RemoteConfigInput) (*domain.RemoteConfig, error) {
	cfg, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	input = normalizeConfigInput(input)
	if missing := missingConfigFields(input, false); len(missing) > 0 {
		return nil, validationError("missing required fields: %s", strings.Join(missing, ", "))
	}

	cfg.Name = input.Name
	cfg.AccessKey = input.AccessKey
	if input.SecretKey != "" {
		cfg.SecretKey = input.SecretKey
	}
	cfg.Bucket = input.Bucket
	cfg.Region = input.Region
	cfg.Endpoint = input.Endpoint

	if err := s.repo.Update(ctx, cfg); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	if input.Active && !cfg.Active {
		return s.Activate(ctx, id)
	}
	return cfg, nil
}

// Get returns one config.
func (s *configRegistry) Get(ctx context.Context, id primitive.ObjectID) (*domain.RemoteConfig, error) {
	cfg, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}
	return cfg, nil
}

// List returns every config.
func (s *configRegistry) List(ctx context.Context) ([]domain.RemoteConfig, error) {
	return s.repo.List(ctx)
}

// Delete removes a config. Objects already uploaded with it are untouched.
func (s *configRegistry) Delete(ctx context.Context, id primitive.ObjectID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrConfigNotFound
		}
		return err
	}
	logging.Info("remote config deleted", zap.String("configId", id.Hex()))
	return nil
}

// TestConnection checks bucket reachability with a canary write. Remote
// failures are reported in the result, not as an error.
func (s *configRegistry) TestConnection(ctx context.Context, id primitive.ObjectID) (*TestResult, error) {
	cfg, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	client, err := s.factory(ctx, *cfg)
	if err == nil {
		err = client.TestConnection(ctx)
	}
	if err != nil {
		logging.Warn("remote connection test failed",
			zap.String("configId", id.Hex()), zap.String("kind", storage.KindName(err)), zap.Error(err))
		return &TestResult{Success: false, Message: fmt.Sprintf("Connection failed: %v", err)}, nil
	}
	return &TestResult{
		Success: true,
		Message: fmt.Sprintf("Connection to bucket %s successful!", cfg.Bucket),
	}, nil
}

// Bootstrap seeds an active config from static settings.
func (s *configRegistry) Bootstrap(ctx context.Context, seed RemoteConfigInput) (bool, error) {
	existing, err := s.repo.List(ctx)
	if err != nil {
		return false, err
	}
	if len(existing) > 0 {
		return false, nil
	}
	seed.Active = true
	if _, err := s.Create(ctx, seed); err != nil {
		return false, fmt.Errorf("seed remote config: %w", err)
	}
	return true, nil
}

func normalizeConfigInput(in RemoteConfigInput) RemoteConfigInput {
	in.Name = strings.TrimSpace(in.Name)
	in.AccessKey = strings.TrimSpace(in.AccessKey)
	in.SecretKey = strings.TrimSpace(in.SecretKey)
	in.Bucket = strings.TrimSpace(in.Bucket)
	in.Region = strings.TrimSpace(in.Region)
	in.Endpoint = strings.TrimSpace(in.Endpoint)
	if in.Region == "" {
		in.Region = domain.DefaultRegion
	}
	return in
}

func missingConfigFields(in RemoteConfigInput, requireSecret bool) []string {
	var missing []string
	if in.Name == "" {
		missing = append(missing, "name")
	}
	if in.AccessKey == "" {
		missing = append(missing, "access_key")
	}
	if requireSecret && in.SecretKey == "" {
		missing = append(missing, "secret_key")
	}
	if in.Bucket == "" {
		missing = append(missing, "bucket")
	}
	return missing
}
