package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/export-worker-go/internal/audit"
	apperrors "github.com/openclaw/export-worker-go/internal/errors"
	"github.com/openclaw/export-worker-go/internal/model"
	"github.com/openclaw/export-worker-go/internal/repository"
	"github.com/openclaw/export-worker-go/internal/util"
)

// CredentialStore wraps the credential repository and encrypts every secret
// column with the process-wide key. Plaintext secrets never reach the
// repository.
type CredentialStore struct {
	repo   repository.CredentialRepository
	cipher *util.Cipher
}

func NewCredentialStore(repo repository.CredentialRepository, cipher *util.Cipher) *CredentialStore {
	return &CredentialStore{repo: repo, cipher: cipher}
}

// Get returns the decrypted credential, or nil when the owner has none.
func (s *CredentialStore) Get(ctx context.Context, ownerID int64) (*model.Credential, error) {
	cred, err := s.repo.FindByOwnerID(ctx, ownerID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if cred == nil {
		return nil, nil
	}
	if err := s.decrypt(cred); err != nil {
		return nil, fmt.Errorf("credential for owner %d: %w", ownerID, err)
	}
	return cred, nil
}

func (s *CredentialStore) SaveAuthorization(ctx context.Context, auth model.Authorization) (*model.Credential, error) {
	if auth.SessionToken == "" {
		return nil, apperrors.MissingRequired("session token")
	}

	secret, err := s.encrypt(auth.AppSecret)
	if err != nil {
		return nil, err
	}
	token, err := s.encrypt(auth.SessionToken)
	if err != nil {
		return nil, err
	}

	cred, err := s.repo.UpsertAuthorization(ctx, model.UpsertCredentialParams{
		OwnerID:               auth.OwnerID,
		AppID:                 auth.AppID,
		AppSecretEncrypted:    secret,
		Phone:                 auth.Phone,
		SessionTokenEncrypted: token,
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if err := s.decrypt(cred); err != nil {
		return nil, err
	}

	log.Info().Int64("ownerId", auth.OwnerID).Msg("credential authorized")
	return cred, nil
}

func (s *CredentialStore) MarkUnauthorized(ctx context.Context, ownerID int64) error {
	if err := s.repo.MarkUnauthorized(ctx, ownerID); err != nil {
		return apperrors.Database(err)
	}
	audit.Log(ctx, audit.Event{Type: audit.EventSessionExpired, OwnerID: ownerID})
	return nil
}

func (s *CredentialStore) Touch(ctx context.Context, ownerID int64) error {
	if err := s.repo.Touch(ctx, ownerID); err != nil {
		return apperrors.Database(err)
	}
	return nil
}

func (s *CredentialStore) Delete(ctx context.Context, ownerID int64) error {
	if err := s.repo.Delete(ctx, ownerID); err != nil {
		return apperrors.Database(err)
	}
	audit.Log(ctx, audit.Event{Type: audit.EventCredentialDeleted, OwnerID: ownerID})
	return nil
}

// UpdateSettings validates and stores the owner's non-auth settings. An empty
// analysis key clears it and an empty prompt restores the default.
func (s *CredentialStore) UpdateSettings(ctx context.Context, ownerID int64, update model.SettingsUpdate) (*model.Settings, error) {
	var params model.UpdateSettingsParams

	if update.AnalysisKey != nil {
		key := strings.TrimSpace(*update.AnalysisKey)
		encrypted := ""
		if key != "" {
			if !util.IsValidAnalysisKey(key) {
				return nil, apperrors.InvalidInput("analysisApiKey", "must start with sk-ant-")
			}
			var err error
			if encrypted, err = s.encrypt(key); err != nil {
				return nil, err
			}
		}
		params.AnalysisKeyEncrypted = &encrypted
	}

	if update.CustomPrompt != nil {
		prompt := strings.TrimSpace(*update.CustomPrompt)
		params.CustomPrompt = &prompt
	}

	if update.DefaultExportLimit != nil {
		if *update.DefaultExportLimit <= 0 {
			return nil, apperrors.InvalidInput("defaultExportLimit", "must be positive")
		}
		params.DefaultExportLimit = update.DefaultExportLimit
	}

	cred, err := s.repo.UpdateSettings(ctx, ownerID, params)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	audit.Log(ctx, audit.Event{
		Type:    audit.EventSettingsUpdate,
		OwnerID: ownerID,
		Details: map[string]any{
			"analysisKey":        params.AnalysisKeyEncrypted != nil,
			"customPrompt":       params.CustomPrompt != nil,
			"defaultExportLimit": params.DefaultExportLimit != nil,
		},
	})
	if err := s.decrypt(cred); err != nil {
		return nil, err
	}
	return settingsOf(cred), nil
}

func (s *CredentialStore) Settings(ctx context.Context, ownerID int64) (*model.Settings, error) {
	cred, err := s.Get(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return &model.Settings{OwnerID: ownerID}, nil
	}
	return settingsOf(cred), nil
}

func settingsOf(cred *model.Credential) *model.Settings {
	settings := &model.Settings{
		OwnerID:            cred.OwnerID,
		HasAnalysisKey:     cred.HasAnalysisKey(),
		CustomPrompt:       cred.CustomPrompt,
		DefaultExportLimit: cred.DefaultExportLimit,
		IsConfigured:       cred.IsConfigured,
		IsAuthorized:       cred.IsAuthorized,
		Phone:              cred.Phone,
	}
	if cred.HasAnalysisKey() {
		settings.AnalysisKeyHint = util.MaskSecret(cred.AnalysisKey)
	}
	return settings
}

func (s *CredentialStore) encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	ciphertext, err := s.cipher.Seal(plaintext)
	if err != nil {
		return "", fmt.Errorf("encrypt credential field: %w", err)
	}
	return ciphertext, nil
}

func (s *CredentialStore) decrypt(cred *model.Credential) error {
	var err error
	if cred.AppSecret, err = s.decryptField(cred.AppSecretEncrypted); err != nil {
		return err
	}
	if cred.SessionToken, err = s.decryptField(cred.SessionTokenEncrypted); err != nil {
		return err
	}
	if cred.AnalysisKey, err = s.decryptField(cred.AnalysisKeyEncrypted); err != nil {
		return err
	}
	return nil
}

func (s *CredentialStore) decryptField(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	plaintext, err := s.cipher.Open(ciphertext)
	if err != nil {
		return "", fmt.Errorf("decrypt credential field: %w", err)
	}
	return plaintext, nil
}
