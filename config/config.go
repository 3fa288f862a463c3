// Package config handles application configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/itsukison/CueMeFinal-sub003/internal/types"
)

const (
	appName        = "cueme"
	configFileName = "config.json"
)

// AudioConfig tunes capture and segmentation.
type AudioConfig struct {
	SampleRate        int     `json:"sample_rate,omitempty"`
	SilenceThreshold  float64 `json:"silence_threshold,omitempty"`
	MinDurationMs     int     `json:"min_duration_ms,omitempty"`
	MaxDurationMs     int     `json:"max_duration_ms,omitempty"`
	SilenceDurationMs int     `json:"silence_duration_ms,omitempty"`
}

// BatchConfig tunes question batching.
type BatchConfig struct {
	IntervalMs int `json:"interval_ms,omitempty"`
	MaxSize    int `json:"max_size,omitempty"`
}

// AnswerProfile selects the model used for classification and answers.
type AnswerProfile struct {
	CredentialID string  `json:"credential_id"`
	Model        string  `json:"model"`
	MaxTokens    int     `json:"max_tokens,omitempty"`
	Temperature  float64 `json:"temperature,omitempty"`
}

// Config represents the application configuration.
type Config struct {
	Credentials   []types.APICredential `json:"credentials,omitempty"`
	SpeechConfig  *types.SpeechConfig   `json:"speech_config,omitempty"`
	AnswerProfile *AnswerProfile        `json:"answer_profile,omitempty"`

	Audio AudioConfig `json:"audio,omitempty"`
	Batch BatchConfig `json:"batch,omitempty"`

	// HelperPath overrides where the capture helper binary lives.
	// Empty means next to the application binary.
	HelperPath string `json:"helper_path,omitempty"`

	path string // where this config was loaded from
}

// Load reads configuration from the user config directory. Returns a
// default config if no file exists yet.
func Load() (*Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, fmt.Errorf("get config path: %w", err)
	}
	return LoadPath(path)
}

// LoadPath reads configuration from an explicit file path.
func LoadPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := defaultConfig()
			cfg.path = path
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.path = path
	cfg.applyDefaults()
	return &cfg, nil
}

// Save persists the configuration to disk.
func (c *Config) Save() error {
	if c.path == "" {
		path, err := configPath()
		if err != nil {
			return fmt.Errorf("get config path: %w", err)
		}
		c.path = path
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// GetCredentials returns all stored credentials.
func (c *Config) GetCredentials() []types.APICredential {
	return c.Credentials
}

// GetCredential returns a credential by id, nil when absent.
func (c *Config) GetCredential(id string) *types.APICredential {
	for i := range c.Credentials {
		if c.Credentials[i].ID == id {
			cred := c.Credentials[i]
			return &cred
		}
	}
	return nil
}

// AddCredential stores a new credential, assigning an id.
func (c *Config) AddCredential(cred types.APICredential) error {
	if err := validateCredential(cred); err != nil {
		return err
	}
	cred.ID = uuid.NewString()
	c.Credentials = append(c.Credentials, cred)
	return c.Save()
}

// UpdateCredential replaces the credential with the given id.
func (c *Config) UpdateCredential(id string, cred types.APICredential) error {
	if err := validateCredential(cred); err != nil {
		return err
	}
	idx := slices.IndexFunc(c.Credentials, func(x types.APICredential) bool {
		return x.ID == id
	})
	if idx == -1 {
		return fmt.Errorf("credential not found: %s", id)
	}
	cred.ID = id
	c.Credentials[idx] = cred
	return c.Save()
}

// RemoveCredential deletes a credential by id.
func (c *Config) RemoveCredential(id string) error {
	idx := slices.IndexFunc(c.Credentials, func(x types.APICredential) bool {
		return x.ID == id
	})
	if idx == -1 {
		return fmt.Errorf("credential not found: %s", id)
	}
	c.Credentials = slices.Delete(c.Credentials, idx, idx+1)
	return c.Save()
}

// GetSpeechConfig returns the transcription settings, nil if unset.
func (c *Config) GetSpeechConfig() *types.SpeechConfig {
	return c.SpeechConfig
}

// SetSpeechConfig stores the transcription settings.
func (c *Config) SetSpeechConfig(cfg types.SpeechConfig) error {
	c.SpeechConfig = &cfg
	return c.Save()
}

// GetAnswerProfile returns the answering settings, nil if unset.
func (c *Config) GetAnswerProfile() *AnswerProfile {
	return c.AnswerProfile
}

// SetAnswerProfile stores the answering settings.
func (c *Config) SetAnswerProfile(p AnswerProfile) error {
	if p.CredentialID == "" {
		return fmt.Errorf("credential id required")
	}
	if p.Model == "" {
		return fmt.Errorf("model required")
	}
	c.AnswerProfile = &p
	return c.Save()
}

// BatchInterval returns the configured batch interval as a duration.
func (c *Config) BatchInterval() time.Duration {
	return time.Duration(c.Batch.IntervalMs) * time.Millisecond
}

func validateCredential(cred types.APICredential) error {
	if cred.Name == "" {
		return fmt.Errorf("credential name required")
	}
	if cred.APIKey == "" {
		return fmt.Errorf("api key required")
	}
	if cred.Type == "openai-compatible" && cred.BaseURL == "" {
		return fmt.Errorf("base url required for openai-compatible")
	}
	return nil
}

func (c *Config) applyDefaults() {
	def := defaultConfig()
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = def.Audio.SampleRate
	}
	if c.Audio.SilenceThreshold == 0 {
		c.Audio.SilenceThreshold = def.Audio.SilenceThreshold
	}
	if c.Audio.MinDurationMs == 0 {
		c.Audio.MinDurationMs = def.Audio.MinDurationMs
	}
	if c.Audio.MaxDurationMs == 0 {
		c.Audio.MaxDurationMs = def.Audio.MaxDurationMs
	}
	if c.Audio.SilenceDurationMs == 0 {
		c.Audio.SilenceDurationMs = def.Audio.SilenceDurationMs
	}
	if c.Batch.IntervalMs == 0 {
		c.Batch.IntervalMs = def.Batch.IntervalMs
	}
	if c.Batch.MaxSize == 0 {
		c.Batch.MaxSize = def.Batch.MaxSize
	}
}

func configPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("get user config dir: %w", err)
	}
	return filepath.Join(dir, appName, configFileName), nil
}

// Default returns a config with all defaults and no persistence path.
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		Audio: AudioConfig{
			SampleRate:        24000,
			SilenceThreshold:  0.015,
			MinDurationMs:     800,
			MaxDurationMs:     15000,
			SilenceDurationMs: 600,
		},
		Batch: BatchConfig{
			IntervalMs: 2000,
			MaxSize:    5,
		},
	}
}
