package model

import (
	"time"
)

// Credential is the durable per-owner record. Encrypted columns map to the
// table; the plaintext fields are filled by the credential store only.
type Credential struct {
	OwnerID               int64     `db:"owner_id" json:"ownerId"`
	AppID                 int64     `db:"app_id" json:"appId"`
	AppSecretEncrypted    string    `db:"app_secret_encrypted" json:"-"`
	Phone                 string    `db:"phone" json:"phone"`
	SessionTokenEncrypted string    `db:"session_token_encrypted" json:"-"`
	AnalysisKeyEncrypted  string    `db:"analysis_key_encrypted" json:"-"`
	CustomPrompt          string    `db:"custom_prompt" json:"customPrompt,omitempty"`
	DefaultExportLimit    int       `db:"default_export_limit" json:"defaultExportLimit"`
	IsConfigured          bool      `db:"is_configured" json:"isConfigured"`
	IsAuthorized          bool      `db:"is_authorized" json:"isAuthorized"`
	CreatedAt             time.Time `db:"created_at" json:"createdAt"`
	LastActiveAt          time.Time `db:"last_active_at" json:"lastActiveAt"`

	AppSecret    string `db:"-" json:"-"`
	SessionToken string `db:"-" json:"-"`
	AnalysisKey  string `db:"-" json:"-"`
}

func (c *Credential) HasAnalysisKey() bool {
	return c.AnalysisKey != ""
}

// Authorization is the outcome of a successful handshake, in plaintext.
type Authorization struct {
	OwnerID      int64
	AppID        int64
	AppSecret    string
	Phone        string
	SessionToken string
}

type UpsertCredentialParams struct {
	OwnerID               int64
	AppID                 int64
	AppSecretEncrypted    string
	Phone                 string
	SessionTokenEncrypted string
}

// SettingsUpdate carries optional plaintext settings. Nil fields are left unchanged.
type SettingsUpdate struct {
	AnalysisKey        *string `json:"analysisApiKey,omitempty"`
	CustomPrompt       *string `json:"customPrompt,omitempty"`
	DefaultExportLimit *int    `json:"defaultExportLimit,omitempty"`
}

type UpdateSettingsParams struct {
	AnalysisKeyEncrypted *string
	CustomPrompt         *string
	DefaultExportLimit   *int
}

// Settings is the owner-facing view of a credential.
type Settings struct {
	OwnerID            int64  `json:"ownerId"`
	HasAnalysisKey     bool   `json:"hasAnalysisKey"`
	AnalysisKeyHint    string `json:"analysisKeyHint,omitempty"`
	CustomPrompt       string `json:"customPrompt,omitempty"`
	DefaultExportLimit int    `json:"defaultExportLimit"`
	IsConfigured       bool   `json:"isConfigured"`
	IsAuthorized       bool   `json:"isAuthorized"`
	Phone              string `json:"phone,omitempty"`
}
