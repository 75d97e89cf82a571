// Package config loads the scanner tuning configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/scanner.defaults.json"

// TuningConfig represents the tunable parameters of the scanning pipeline.
// All fields are optional pointers so a partial JSON file only overrides the
// values it names; the Get* accessors supply defaults for the rest. The same
// schema is accepted by the /api/config endpoint for runtime inspection.
type TuningConfig struct {
	// Fusion thresholds. Invariant: auto_accept > suggestion > display.
	ConfidenceAutoAccept *float64 `json:"confidence_auto_accept,omitempty"`
	ConfidenceSuggestion *float64 `json:"confidence_suggestion,omitempty"`
	ConfidenceDisplay    *float64 `json:"confidence_display,omitempty"`

	// Cooldown gate timers (duration strings like "2s", "300ms").
	CooldownSameItem      *string `json:"cooldown_same_item,omitempty"`
	CooldownDifferentItem *string `json:"cooldown_different_item,omitempty"`

	// Frame processing
	FrameWidth      *int    `json:"frame_width,omitempty"`
	FrameHeight     *int    `json:"frame_height,omitempty"`
	ProcessInterval *string `json:"process_interval,omitempty"`

	// Dispatch
	DispatchTimeout *string `json:"dispatch_timeout,omitempty"`

	// HUD
	MessageDuration *string `json:"message_duration,omitempty"`

	// Stats
	FPSWindow *int `json:"fps_window,omitempty"`

	// Backend endpoints. Env vars SCANPOS_API_URL / SCANPOS_SYNC_URL /
	// SCANPOS_INFER_URL take precedence; these are the file-level settings.
	APIURL   *string `json:"api_url,omitempty"`
	SyncURL  *string `json:"sync_url,omitempty"`
	ClassURL *string `json:"class_url,omitempty"`
	InferURL *string `json:"infer_url,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The file must have
// a .json extension and stay under the max file size. Fields omitted from the
// JSON retain their defaults, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath.
// It searches from the current directory up through common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	for name, v := range map[string]*float64{
		"confidence_auto_accept": c.ConfidenceAutoAccept,
		"confidence_suggestion":  c.ConfidenceSuggestion,
		"confidence_display":     c.ConfidenceDisplay,
	} {
		if v != nil && (*v < 0 || *v > 1) {
			return fmt.Errorf("%s must be between 0 and 1, got %f", name, *v)
		}
	}

	if c.GetConfidenceAutoAccept() <= c.GetConfidenceSuggestion() {
		return fmt.Errorf("confidence_auto_accept (%f) must exceed confidence_suggestion (%f)",
			c.GetConfidenceAutoAccept(), c.GetConfidenceSuggestion())
	}
	if c.GetConfidenceSuggestion() <= c.GetConfidenceDisplay() {
		return fmt.Errorf("confidence_suggestion (%f) must exceed confidence_display (%f)",
			c.GetConfidenceSuggestion(), c.GetConfidenceDisplay())
	}

	for name, v := range map[string]*string{
		"cooldown_same_item":      c.CooldownSameItem,
		"cooldown_different_item": c.CooldownDifferentItem,
		"process_interval":        c.ProcessInterval,
		"dispatch_timeout":        c.DispatchTimeout,
		"message_duration":        c.MessageDuration,
	} {
		if v != nil && *v != "" {
			if _, err := time.ParseDuration(*v); err != nil {
				return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
			}
		}
	}

	if c.FrameWidth != nil && *c.FrameWidth <= 0 {
		return fmt.Errorf("frame_width must be positive, got %d", *c.FrameWidth)
	}
	if c.FrameHeight != nil && *c.FrameHeight <= 0 {
		return fmt.Errorf("frame_height must be positive, got %d", *c.FrameHeight)
	}
	if c.FPSWindow != nil && *c.FPSWindow <= 0 {
		return fmt.Errorf("fps_window must be positive, got %d", *c.FPSWindow)
	}

	return nil
}

func durationOr(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return def
	}
	return d
}

// GetConfidenceAutoAccept returns the auto-accept threshold or the default.
func (c *TuningConfig) GetConfidenceAutoAccept() float64 {
	if c.ConfidenceAutoAccept == nil {
		return 0.80
	}
	return *c.ConfidenceAutoAccept
}

// GetConfidenceSuggestion returns the suggestion threshold or the default.
func (c *TuningConfig) GetConfidenceSuggestion() float64 {
	if c.ConfidenceSuggestion == nil {
		return 0.45
	}
	return *c.ConfidenceSuggestion
}

// GetConfidenceDisplay returns the display-floor threshold or the default.
func (c *TuningConfig) GetConfidenceDisplay() float64 {
	if c.ConfidenceDisplay == nil {
		return 0.35
	}
	return *c.ConfidenceDisplay
}

// GetCooldownSameItem returns the same-item cooldown or the default.
func (c *TuningConfig) GetCooldownSameItem() time.Duration {
	return durationOr(c.CooldownSameItem, 2*time.Second)
}

// GetCooldownDifferentItem returns the cross-item cooldown or the default.
func (c *TuningConfig) GetCooldownDifferentItem() time.Duration {
	return durationOr(c.CooldownDifferentItem, 300*time.Millisecond)
}

// GetFrameWidth returns the processing frame width or the default.
func (c *TuningConfig) GetFrameWidth() int {
	if c.FrameWidth == nil {
		return 640
	}
	return *c.FrameWidth
}

// GetFrameHeight returns the processing frame height or the default.
func (c *TuningConfig) GetFrameHeight() int {
	if c.FrameHeight == nil {
		return 480
	}
	return *c.FrameHeight
}

// GetProcessInterval returns the processing-loop tick or the default.
func (c *TuningConfig) GetProcessInterval() time.Duration {
	return durationOr(c.ProcessInterval, 33*time.Millisecond)
}

// GetDispatchTimeout returns the cart-call timeout or the default.
func (c *TuningConfig) GetDispatchTimeout() time.Duration {
	return durationOr(c.DispatchTimeout, 2*time.Second)
}

// GetMessageDuration returns the HUD flash duration or the default.
func (c *TuningConfig) GetMessageDuration() time.Duration {
	return durationOr(c.MessageDuration, 1500*time.Millisecond)
}

// GetFPSWindow returns the frame-interval window size or the default.
func (c *TuningConfig) GetFPSWindow() int {
	if c.FPSWindow == nil {
		return 30
	}
	return *c.FPSWindow
}

func envOr(key string, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// GetAPIURL returns the cart-mutation endpoint URL.
func (c *TuningConfig) GetAPIURL() string {
	def := "http://127.0.0.1:5000/api/scan"
	if c.APIURL != nil && *c.APIURL != "" {
		def = *c.APIURL
	}
	return envOr("SCANPOS_API_URL", def)
}

// GetSyncURL returns the catalog endpoint URL.
func (c *TuningConfig) GetSyncURL() string {
	def := "http://127.0.0.1:5000/api/product_mapping"
	if c.SyncURL != nil && *c.SyncURL != "" {
		def = *c.SyncURL
	}
	return envOr("SCANPOS_SYNC_URL", def)
}

// GetClassURL returns the class-label mapping endpoint URL, or "" when the
// backend has none; the syncer then keeps whatever labels it already holds.
func (c *TuningConfig) GetClassURL() string {
	def := ""
	if c.ClassURL != nil {
		def = *c.ClassURL
	}
	return envOr("SCANPOS_CLASS_URL", def)
}

// GetInferURL returns the inference sidecar URL, or "" when AI is not
// configured at all.
func (c *TuningConfig) GetInferURL() string {
	def := ""
	if c.InferURL != nil {
		def = *c.InferURL
	}
	return envOr("SCANPOS_INFER_URL", def)
}
