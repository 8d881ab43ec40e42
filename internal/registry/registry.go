// Package registry manages provider and model configuration records: CRUD,
// credential encryption, a short-TTL read-through cache, connectivity
// validation and model-list synchronization against live vendor endpoints.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/lumenlabs/llm-gateway/internal/adapters"
	"github.com/lumenlabs/llm-gateway/internal/catalog"
	"github.com/lumenlabs/llm-gateway/internal/models"
	"github.com/lumenlabs/llm-gateway/internal/secrets"
)

const (
	cacheTTL  = 5 * time.Minute
	cacheSize = 256
)

// ErrProviderNotFound indicates the provider ID does not exist.
var ErrProviderNotFound = errors.New("registry: provider not found")

// ErrModelNotFound indicates the model ID does not exist.
var ErrModelNotFound = errors.New("registry: model not found")

// ErrUnknownProviderType indicates no adapter serves the provider type.
var ErrUnknownProviderType = errors.New("registry: unknown provider type")

// ProviderView is the cached read model for one provider. It reports whether
// a credential exists without ever carrying ciphertext or plaintext.
type ProviderView struct {
	ID            uint64
	Name          string
	Type          string
	BaseURL       string
	AuthScheme    string
	AuthHeader    string
	HasCredential bool
	Capabilities  []string
	CostTier      string
	QualityTier   string
	IsEnabled     bool
	IsValidated   bool
	ValidatedAt   *time.Time
	Models        []models.Model
}

// Registry is an explicitly constructed provider registry holding its own
// cache and data-store handle.
type Registry struct {
	db       *gorm.DB
	cipher   *secrets.Cipher
	adapters adapters.Source
	cache    *expirable.LRU[uint64, *ProviderView]
}

// New constructs a Registry.
func New(db *gorm.DB, cipher *secrets.Cipher, source adapters.Source) *Registry {
	return &Registry{
		db:       db,
		cipher:   cipher,
		adapters: source,
		cache:    expirable.NewLRU[uint64, *ProviderView](cacheSize, nil, cacheTTL),
	}
}

// AdapterFor resolves the adapter for a provider type.
func (r *Registry) AdapterFor(providerType string) (adapters.Adapter, bool) {
	if r == nil || r.adapters == nil {
		return nil, false
	}
	return r.adapters.AdapterFor(providerType)
}

// CreateProviderInput holds inputs for provider registration.
type CreateProviderInput struct {
	Name         string
	Type         string
	BaseURL      string
	APIKey       string
	AuthScheme   string
	AuthHeader   string
	Capabilities []string
	CostTier     string
	QualityTier  string
	Enabled      *bool
}

// CreateProvider registers a provider, encrypting any supplied credential and
// seeding the provider-type default model set.
func (r *Registry) CreateProvider(ctx context.Context, input CreateProviderInput) (*models.Provider, error) {
	providerType := strings.ToLower(strings.TrimSpace(input.Type))
	if _, ok := r.AdapterFor(providerType); !ok {
		return nil, ErrUnknownProviderType
	}

	row := models.Provider{
		Name:        strings.TrimSpace(input.Name),
		Type:        providerType,
		BaseURL:     strings.TrimSpace(input.BaseURL),
		AuthScheme:  normalizeAuthScheme(input.AuthScheme),
		AuthHeader:  strings.TrimSpace(input.AuthHeader),
		CostTier:    normalizeTier(input.CostTier, catalog.CostTierMedium, catalog.IsValidCostTier),
		QualityTier: normalizeTier(input.QualityTier, catalog.QualityTierBalanced, catalog.IsValidQualityTier),
		IsEnabled:   true,
	}
	if input.Enabled != nil {
		row.IsEnabled = *input.Enabled
	}
	if caps := encodeStrings(input.Capabilities); caps != nil {
		row.Capabilities = caps
	}
	if key := strings.TrimSpace(input.APIKey); key != "" {
		encrypted, errEncrypt := r.cipher.Encrypt(key)
		if errEncrypt != nil {
			return nil, fmt.Errorf("registry: encrypt credential: %w", errEncrypt)
		}
		row.APIKeyEncrypted = &encrypted
	}

	errTx := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errCreate := tx.Create(&row).Error; errCreate != nil {
			return fmt.Errorf("registry: create provider: %w", errCreate)
		}
		for _, template := range catalog.DefaultModels(providerType) {
			model := models.Model{
				ProviderID:     row.ID,
				ModelID:        template.ModelID,
				Name:           template.Name,
				SupportsVision: template.SupportsVision,
				SupportsTools:  template.SupportsTools,
				IsDefault:      template.IsDefault,
			}
			if template.ContextWindow > 0 {
				window := template.ContextWindow
				model.ContextWindow = &window
			}
			if errModel := tx.Create(&model).Error; errModel != nil {
				return fmt.Errorf("registry: seed model: %w", errModel)
			}
		}
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}

	r.cache.Remove(row.ID)
	return &row, nil
}

// GetProvider reads one provider through the cache.
func (r *Registry) GetProvider(ctx context.Context, id uint64) (*ProviderView, error) {
	if view, ok := r.cache.Get(id); ok {
		return view, nil
	}

	var row models.Provider
	errFind := r.db.WithContext(ctx).Preload("Models").Where("id = ?", id).Take(&row).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrProviderNotFound
		}
		return nil, fmt.Errorf("registry: load provider: %w", errFind)
	}

	view := viewOf(&row)
	r.cache.Add(id, view)
	return view, nil
}

// ListProviders returns every provider with its models, bypassing the cache.
func (r *Registry) ListProviders(ctx context.Context) ([]ProviderView, error) {
	var rows []models.Provider
	if errFind := r.db.WithContext(ctx).Preload("Models").Order("id ASC").Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("registry: list providers: %w", errFind)
	}
	out := make([]ProviderView, 0, len(rows))
	for i := range rows {
		out = append(out, *viewOf(&rows[i]))
	}
	return out, nil
}

// UpdateProviderInput holds mutable provider fields. Nil fields are left
// unchanged. Provider type is immutable identity and cannot be updated.
type UpdateProviderInput struct {
	Name         *string
	BaseURL      *string
	APIKey       *string
	AuthScheme   *string
	AuthHeader   *string
	Capabilities []string
	CostTier     *string
	QualityTier  *string
	Enabled      *bool
}

// UpdateProvider updates a provider in place. Credential rotation resets
// validation state.
func (r *Registry) UpdateProvider(ctx context.Context, id uint64, input UpdateProviderInput) (*models.Provider, error) {
	var row models.Provider
	errFind := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrProviderNotFound
		}
		return nil, fmt.Errorf("registry: load provider: %w", errFind)
	}

	updates := map[string]any{"updated_at": time.Now().UTC()}
	if input.Name != nil {
		updates["name"] = strings.TrimSpace(*input.Name)
	}
	if input.BaseURL != nil {
		updates["base_url"] = strings.TrimSpace(*input.BaseURL)
	}
	if input.AuthScheme != nil {
		updates["auth_scheme"] = normalizeAuthScheme(*input.AuthScheme)
	}
	if input.AuthHeader != nil {
		updates["auth_header"] = strings.TrimSpace(*input.AuthHeader)
	}
	if input.Capabilities != nil {
		updates["capabilities"] = encodeStrings(input.Capabilities)
	}
	if input.CostTier != nil && catalog.IsValidCostTier(*input.CostTier) {
		updates["cost_tier"] = strings.ToLower(strings.TrimSpace(*input.CostTier))
	}
	if input.QualityTier != nil && catalog.IsValidQualityTier(*input.QualityTier) {
		updates["quality_tier"] = strings.ToLower(strings.TrimSpace(*input.QualityTier))
	}
	if input.Enabled != nil {
		updates["is_enabled"] = *input.Enabled
	}
	if input.APIKey != nil {
		key := strings.TrimSpace(*input.APIKey)
		if key == "" {
			updates["api_key_encrypted"] = nil
		} else {
			encrypted, errEncrypt := r.cipher.Encrypt(key)
			if errEncrypt != nil {
				return nil, fmt.Errorf("registry: encrypt credential: %w", errEncrypt)
			}
			updates["api_key_encrypted"] = encrypted
		}
		updates["is_validated"] = false
		updates["validated_at"] = nil
	}

	if errUpdate := r.db.WithContext(ctx).Model(&models.Provider{}).Where("id = ?", id).Updates(updates).Error; errUpdate != nil {
		return nil, fmt.Errorf("registry: update provider: %w", errUpdate)
	}
	r.cache.Remove(id)

	if errReload := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; errReload != nil {
		return nil, fmt.Errorf("registry: reload provider: %w", errReload)
	}
	return &row, nil
}

// DeleteProvider removes a provider and its models.
func (r *Registry) DeleteProvider(ctx context.Context, id uint64) error {
	errTx := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errModels := tx.Where("provider_id = ?", id).Delete(&models.Model{}).Error; errModels != nil {
			return fmt.Errorf("registry: delete models: %w", errModels)
		}
		res := tx.Where("id = ?", id).Delete(&models.Provider{})
		if res.Error != nil {
			return fmt.Errorf("registry: delete provider: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrProviderNotFound
		}
		return nil
	})
	r.cache.Remove(id)
	return errTx
}

// AddModelInput holds inputs for adding a model to a provider.
type AddModelInput struct {
	ModelID        string
	Name           string
	ContextWindow  *int
	SupportsVision bool
	SupportsTools  bool
	DefaultParams  map[string]any
	IsDefault      bool
}

// AddModel attaches a model to a provider.
func (r *Registry) AddModel(ctx context.Context, providerID uint64, input AddModelInput) (*models.Model, error) {
	if _, err := r.requireProvider(ctx, providerID); err != nil {
		return nil, err
	}

	row := models.Model{
		ProviderID:     providerID,
		ModelID:        strings.TrimSpace(input.ModelID),
		Name:           strings.TrimSpace(input.Name),
		ContextWindow:  input.ContextWindow,
		SupportsVision: input.SupportsVision,
		SupportsTools:  input.SupportsTools,
		IsDefault:      input.IsDefault,
	}
	if len(input.DefaultParams) > 0 {
		payload, errMarshal := json.Marshal(input.DefaultParams)
		if errMarshal == nil {
			row.DefaultParams = datatypes.JSON(payload)
		}
	}

	if errCreate := r.db.WithContext(ctx).Create(&row).Error; errCreate != nil {
		return nil, fmt.Errorf("registry: create model: %w", errCreate)
	}
	r.cache.Remove(providerID)
	return &row, nil
}

// UpdateModelInput holds mutable model fields. Nil fields are left unchanged.
type UpdateModelInput struct {
	Name           *string
	ContextWindow  *int
	SupportsVision *bool
	SupportsTools  *bool
	DefaultParams  map[string]any
	IsDefault      *bool
}

// UpdateModel updates a model in place.
func (r *Registry) UpdateModel(ctx context.Context, modelID uint64, input UpdateModelInput) (*models.Model, error) {
	var row models.Model
	errFind := r.db.WithContext(ctx).Where("id = ?", modelID).Take(&row).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrModelNotFound
		}
		return nil, fmt.Errorf("registry: load model: %w", errFind)
	}

	updates := map[string]any{"updated_at": time.Now().UTC()}
	if input.Name != nil {
		updates["name"] = strings.TrimSpace(*input.Name)
	}
	if input.ContextWindow != nil {
		updates["context_window"] = *input.ContextWindow
	}
	if input.SupportsVision != nil {
		updates["supports_vision"] = *input.SupportsVision
	}
	if input.SupportsTools != nil {
		updates["supports_tools"] = *input.SupportsTools
	}
	if input.IsDefault != nil {
		updates["is_default"] = *input.IsDefault
	}
	if input.DefaultParams != nil {
		payload, errMarshal := json.Marshal(input.DefaultParams)
		if errMarshal == nil {
			updates["default_params"] = datatypes.JSON(payload)
		}
	}

	if errUpdate := r.db.WithContext(ctx).Model(&models.Model{}).Where("id = ?", modelID).Updates(updates).Error; errUpdate != nil {
		return nil, fmt.Errorf("registry: update model: %w", errUpdate)
	}
	r.cache.Remove(row.ProviderID)

	if errReload := r.db.WithContext(ctx).Where("id = ?", modelID).Take(&row).Error; errReload != nil {
		return nil, fmt.Errorf("registry: reload model: %w", errReload)
	}
	return &row, nil
}

// RemoveModel deletes a model.
func (r *Registry) RemoveModel(ctx context.Context, modelID uint64) error {
	var row models.Model
	errFind := r.db.WithContext(ctx).Where("id = ?", modelID).Take(&row).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return ErrModelNotFound
		}
		return fmt.Errorf("registry: load model: %w", errFind)
	}
	if errDelete := r.db.WithContext(ctx).Where("id = ?", modelID).Delete(&models.Model{}).Error; errDelete != nil {
		return fmt.Errorf("registry: delete model: %w", errDelete)
	}
	r.cache.Remove(row.ProviderID)
	return nil
}

// ConnectionConfig builds the adapter config for a provider, decrypting its
// credential.
func (r *Registry) ConnectionConfig(provider *models.Provider) (adapters.Config, error) {
	cfg := adapters.Config{
		BaseURL:    provider.BaseURL,
		AuthScheme: provider.AuthScheme,
		AuthHeader: provider.AuthHeader,
	}
	if provider.APIKeyEncrypted != nil && strings.TrimSpace(*provider.APIKeyEncrypted) != "" {
		key, errDecrypt := r.cipher.Decrypt(*provider.APIKeyEncrypted)
		if errDecrypt != nil {
			return adapters.Config{}, fmt.Errorf("registry: decrypt credential: %w", errDecrypt)
		}
		cfg.APIKey = key
	}
	return cfg, nil
}

// Validate runs the adapter connectivity check and persists the outcome.
// Unexpected panics become failed validations; nothing propagates.
func (r *Registry) Validate(ctx context.Context, id uint64) (result adapters.ValidationResult) {
	defer func() {
		if recovered := recover(); recovered != nil {
			result = adapters.ValidationResult{IsValid: false, Error: fmt.Sprintf("validation panicked: %v", recovered)}
		}
		r.persistValidation(ctx, id, result)
		r.cache.Remove(id)
	}()

	var row models.Provider
	errFind := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errFind != nil {
		return adapters.ValidationResult{IsValid: false, Error: "provider not found"}
	}

	adapter, ok := r.AdapterFor(row.Type)
	if !ok {
		return adapters.ValidationResult{IsValid: false, Error: "no adapter for provider type " + row.Type}
	}

	cfg, errCfg := r.ConnectionConfig(&row)
	if errCfg != nil {
		return adapters.ValidationResult{IsValid: false, Error: errCfg.Error()}
	}

	return adapter.Validate(ctx, cfg)
}

func (r *Registry) persistValidation(ctx context.Context, id uint64, result adapters.ValidationResult) {
	now := time.Now().UTC()
	updates := map[string]any{
		"is_validated": result.IsValid,
		"validated_at": now,
		"updated_at":   now,
	}
	if errUpdate := r.db.WithContext(ctx).Model(&models.Provider{}).Where("id = ?", id).Updates(updates).Error; errUpdate != nil {
		log.WithError(errUpdate).Warn("registry: persist validation state failed")
	}
}

// SyncResult reports a model synchronization outcome.
type SyncResult struct {
	Added   int
	Removed int
	Error   string
}

// SyncModels reconciles stored models with the live vendor list: unseen model
// ids are inserted; stale ids are deleted only when the vendor returned a
// non-empty list and the row is not the flagged default model. Adapter errors
// become a structured failure result, never an exception to the caller.
func (r *Registry) SyncModels(ctx context.Context, id uint64) SyncResult {
	defer r.cache.Remove(id)

	var row models.Provider
	errFind := r.db.WithContext(ctx).Preload("Models").Where("id = ?", id).Take(&row).Error
	if errFind != nil {
		return SyncResult{Error: "provider not found"}
	}

	adapter, ok := r.AdapterFor(row.Type)
	if !ok {
		return SyncResult{Error: "no adapter for provider type " + row.Type}
	}

	cfg, errCfg := r.ConnectionConfig(&row)
	if errCfg != nil {
		return SyncResult{Error: errCfg.Error()}
	}

	live, errList := adapter.ListModels(ctx, cfg)
	if errList != nil {
		return SyncResult{Error: errList.Error()}
	}

	liveSet := make(map[string]adapters.ModelInfo, len(live))
	for _, info := range live {
		liveSet[info.ID] = info
	}
	stored := make(map[string]*models.Model, len(row.Models))
	for i := range row.Models {
		stored[row.Models[i].ModelID] = &row.Models[i]
	}

	result := SyncResult{}
	for modelID, info := range liveSet {
		if _, exists := stored[modelID]; exists {
			continue
		}
		insert := models.Model{
			ProviderID: row.ID,
			ModelID:    modelID,
			Name:       info.Name,
		}
		if errCreate := r.db.WithContext(ctx).Create(&insert).Error; errCreate != nil {
			return SyncResult{Added: result.Added, Removed: result.Removed, Error: fmt.Sprintf("insert model %s: %v", modelID, errCreate)}
		}
		result.Added++
	}

	// Removal only runs against a non-empty vendor list so a transient empty
	// response cannot wipe the configured models.
	if len(live) > 0 {
		for modelID, model := range stored {
			if _, seen := liveSet[modelID]; seen {
				continue
			}
			if model.IsDefault {
				continue
			}
			if errDelete := r.db.WithContext(ctx).Where("id = ?", model.ID).Delete(&models.Model{}).Error; errDelete != nil {
				return SyncResult{Added: result.Added, Removed: result.Removed, Error: fmt.Sprintf("delete model %s: %v", modelID, errDelete)}
			}
			result.Removed++
		}
	}

	return result
}

func (r *Registry) requireProvider(ctx context.Context, id uint64) (*models.Provider, error) {
	var row models.Provider
	errFind := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrProviderNotFound
		}
		return nil, fmt.Errorf("registry: load provider: %w", errFind)
	}
	return &row, nil
}

func viewOf(row *models.Provider) *ProviderView {
	view := &ProviderView{
		ID:            row.ID,
		Name:          row.Name,
		Type:          row.Type,
		BaseURL:       row.BaseURL,
		AuthScheme:    row.AuthScheme,
		AuthHeader:    row.AuthHeader,
		HasCredential: row.APIKeyEncrypted != nil && strings.TrimSpace(*row.APIKeyEncrypted) != "",
		CostTier:      row.CostTier,
		QualityTier:   row.QualityTier,
		IsEnabled:     row.IsEnabled,
		IsValidated:   row.IsValidated,
		ValidatedAt:   row.ValidatedAt,
		Models:        row.Models,
	}
	view.Capabilities = decodeStrings(row.Capabilities)
	return view
}

func normalizeAuthScheme(value string) string {
	scheme := strings.ToLower(strings.TrimSpace(value))
	switch scheme {
	case "bearer", "header", "x-api-key":
		return scheme
	}
	return "bearer"
}

func normalizeTier(value, fallback string, valid func(string) bool) string {
	if valid(value) {
		return strings.ToLower(strings.TrimSpace(value))
	}
	return fallback
}

func encodeStrings(values []string) datatypes.JSON {
	cleaned := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	if len(cleaned) == 0 {
		return nil
	}
	payload, errMarshal := json.Marshal(cleaned)
	if errMarshal != nil {
		return nil
	}
	return datatypes.JSON(payload)
}

func decodeStrings(value datatypes.JSON) []string {
	if len(value) == 0 {
		return nil
	}
	var out []string
	if errUnmarshal := json.Unmarshal(value, &out); errUnmarshal != nil {
		return nil
	}
	return out
}
