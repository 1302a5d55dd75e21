// Package config provides configuration loading, validation, and management
// for phasegate. It handles the JSON project config file, environment
// variable substitution, and the encrypted credentials file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"phasegate/pkg/phase"
)

// Project config constants.
const (
	ProjectConfigDir      = ".phasegate"
	ProjectConfigFilename = "config.json"
	SchemaVersion         = "1.0"
)

// Probe describes one infrastructure endpoint check.
type Probe struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Critical bool   `json:"critical"`
}

// InfraConfig lists the infrastructure probes and required credentials for
// the Infrastructure phase.
type InfraConfig struct {
	Probes              []Probe  `json:"probes"`
	RequiredCredentials []string `json:"required_credentials"`
}

// SmokeConfig configures the SmokeTest phase.
type SmokeConfig struct {
	// Backend forces a specific build backend ("go", "node", "make", "null").
	// Empty means auto-detect.
	Backend string `json:"backend,omitempty"`
	// TimeoutSeconds bounds each of build/lint/test. Zero means the default.
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
}

// DevelopmentConfig lists the agents expected to signal completion.
type DevelopmentConfig struct {
	ExpectedAgents []string `json:"expected_agents"`
}

// QAConfig configures the QAMerge phase.
type QAConfig struct {
	// Approvers restricts who may approve; empty allows anyone.
	Approvers []string `json:"approvers,omitempty"`
}

// BreakerConfig tunes the pipeline circuit breaker.
type BreakerConfig struct {
	FailureThreshold int `json:"failure_threshold"`
	SuccessThreshold int `json:"success_threshold"`
	TimeoutSeconds   int `json:"timeout_seconds"`
}

// NotifyConfig configures the fire-and-forget notification sink.
type NotifyConfig struct {
	WebhookURL string `json:"webhook_url,omitempty"`
}

// Config is the full phasegate project configuration.
type Config struct {
	SchemaVersion string             `json:"schema_version"`
	ProjectName   string             `json:"project_name"`
	// InactivePhases names phases to skip in this deployment, e.g.
	// ["prevalidation"] for projects without the head gate. Inactive
	// phases keep their storage format; dependencies skip over them.
	InactivePhases []string           `json:"inactive_phases,omitempty"`
	Infra          *InfraConfig       `json:"infrastructure,omitempty"`
	Smoke          *SmokeConfig       `json:"smoke_test,omitempty"`
	Development    *DevelopmentConfig `json:"development,omitempty"`
	QA             *QAConfig          `json:"qa,omitempty"`
	Breaker        *BreakerConfig     `json:"circuit_breaker,omitempty"`
	Notify         *NotifyConfig      `json:"notify,omitempty"`
}

// InactivePhaseList parses InactivePhases into phase values.
func (c *Config) InactivePhaseList() ([]phase.Phase, error) {
	var out []phase.Phase
	for _, name := range c.InactivePhases {
		p, err := phase.Parse(name)
		if err != nil {
			return nil, fmt.Errorf("inactive_phases: %w", err)
		}
		out = append(out, p)
	}
	return out, nil
}

//nolint:gochecknoglobals // Intentional singleton pattern for config access
var (
	mu         sync.RWMutex
	config     *Config
	projectDir string
)

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads <projectDir>/.phasegate/config.json into the global singleton,
// substituting ${ENV_VAR} placeholders from the environment. This should be
// called once at startup.
func Load(inputProjectDir string) error {
	mu.Lock()
	defer mu.Unlock()

	projectDir = inputProjectDir
	configPath := filepath.Join(projectDir, ProjectConfigDir, ProjectConfigFilename)

	loaded, err := loadFromFile(configPath)
	if err != nil {
		return err
	}
	config = loaded
	return nil
}

// loadFromFile parses and validates one config file.
func loadFromFile(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Replace environment variable placeholders.
	dataStr := envVarRegex.ReplaceAllStringFunc(string(data), func(match string) string {
		envVar := match[2 : len(match)-1] // Remove ${ and }
		if value := os.Getenv(envVar); value != "" {
			return value
		}
		return match // Return original if env var not found
	})

	var cfg Config
	if err := json.Unmarshal([]byte(dataStr), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadFromFile parses a config file without touching the singleton.
// Used by the pre-validation phase checks.
func LoadFromFile(configPath string) (*Config, error) {
	return loadFromFile(configPath)
}

func applyDefaults(cfg *Config) {
	if cfg.SchemaVersion == "" {
		cfg.SchemaVersion = SchemaVersion
	}
	if cfg.Breaker == nil {
		cfg.Breaker = &BreakerConfig{}
	}
	if cfg.Breaker.FailureThreshold <= 0 {
		cfg.Breaker.FailureThreshold = 3
	}
	if cfg.Breaker.SuccessThreshold <= 0 {
		cfg.Breaker.SuccessThreshold = 1
	}
	if cfg.Breaker.TimeoutSeconds <= 0 {
		cfg.Breaker.TimeoutSeconds = int((5 * time.Minute).Seconds())
	}
	if cfg.Smoke == nil {
		cfg.Smoke = &SmokeConfig{}
	}
	if cfg.Smoke.TimeoutSeconds <= 0 {
		cfg.Smoke.TimeoutSeconds = int((10 * time.Minute).Seconds())
	}
}

func validateConfig(cfg *Config) error {
	if cfg.ProjectName == "" {
		return fmt.Errorf("project_name is required")
	}
	if _, err := cfg.InactivePhaseList(); err != nil {
		return err
	}
	if cfg.Infra != nil {
		seen := make(map[string]bool, len(cfg.Infra.Probes))
		for i := range cfg.Infra.Probes {
			p := &cfg.Infra.Probes[i]
			if p.Name == "" {
				return fmt.Errorf("infrastructure probe %d has no name", i)
			}
			if p.URL == "" {
				return fmt.Errorf("infrastructure probe %q has no url", p.Name)
			}
			if seen[p.Name] {
				return fmt.Errorf("duplicate infrastructure probe name %q", p.Name)
			}
			seen[p.Name] = true
		}
	}
	return nil
}

// Get returns the current global config BY VALUE (copy, not reference).
// This prevents external mutation. Must call Load first.
func Get() (Config, error) {
	mu.RLock()
	defer mu.RUnlock()
	if config == nil {
		return Config{}, fmt.Errorf("config not initialized - call config.Load first")
	}
	return *config, nil
}

// GetProjectDir returns the project directory set by Load.
func GetProjectDir() string {
	mu.RLock()
	defer mu.RUnlock()
	if projectDir == "" {
		return "."
	}
	return projectDir
}

// SetConfigForTesting sets the global config for testing purposes.
// Pass nil to reset. This bypasses normal initialization and should only be used in tests.
func SetConfigForTesting(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()
	config = cfg
	if cfg == nil {
		projectDir = ""
	}
}

// ConfigPath returns the path of the project config file under root.
func ConfigPath(root string) string {
	return filepath.Join(root, ProjectConfigDir, ProjectConfigFilename)
}
