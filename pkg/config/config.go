/*
Package config manages TOML config for streetmatch services.
*/
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/bastiangx/streetmatch/internal/utils"
	"github.com/bastiangx/streetmatch/pkg/features"
	"github.com/bastiangx/streetmatch/pkg/geocode"
	"github.com/bastiangx/streetmatch/pkg/model"
	"github.com/bastiangx/streetmatch/pkg/normalize"
	"github.com/bastiangx/streetmatch/pkg/policy"
	"github.com/bastiangx/streetmatch/pkg/training"
)

// AppName names the config directory.
const AppName = "streetmatch"

// Config holds the entire config structure
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Model     ModelConfig     `toml:"model"`
	Policy    PolicyConfig    `toml:"policy"`
	Normalize NormalizeConfig `toml:"normalize"`
	Geocode   GeocodeConfig   `toml:"geocode"`
	Journal   JournalConfig   `toml:"journal"`
}

// ServerConfig has HTTP server options.
type ServerConfig struct {
	Host            string `toml:"host"`
	Port            int    `toml:"port"`
	ReadTimeoutSec  int    `toml:"read_timeout_sec"`
	WriteTimeoutSec int    `toml:"write_timeout_sec"`
}

// ModelConfig holds classifier and training options.
type ModelConfig struct {
	// Dir holds the persisted artifacts. Empty means <config dir>/model.
	Dir          string  `toml:"dir"`
	Strategy     string  `toml:"strategy"`
	Seed         int     `toml:"seed"`
	MaxIter      int     `toml:"max_iter"`
	Tol          float64 `toml:"tol"`
	C            float64 `toml:"c"`
	LearningRate float64 `toml:"learning_rate"`
	ScaleNumeric bool    `toml:"scale_numeric"`
	Trees        int     `toml:"n_trees"`
	MaxDepth     int     `toml:"max_depth"`
	MinLeaf      int     `toml:"min_leaf"`
	NGramMax     int     `toml:"ngram_max"`
	MinTokenLen  int     `toml:"min_token_len"`
	TestFraction float64 `toml:"test_fraction"`
	// SeedData is a TOML file of [[pair]] tables. Empty means built-in pairs.
	SeedData string `toml:"seed_data"`
}

// PolicyConfig selects the decision policy.
type PolicyConfig struct {
	Kind            string  `toml:"kind"`
	SimilarityFloor float64 `toml:"similarity_floor"`
	CosineThreshold float64 `toml:"cosine_threshold"`
}

// NormalizeConfig holds normalizer options.
type NormalizeConfig struct {
	// Tables is a TOML file of [numerals] and [synonyms]. Empty means built-in tables.
	Tables         string `toml:"tables"`
	ExpandSynonyms bool   `toml:"expand_synonyms"`
	FoldAccents    bool   `toml:"fold_accents"`
}

// GeocodeConfig holds geocoder options.
type GeocodeConfig struct {
	Enabled    bool    `toml:"enabled"`
	URL        string  `toml:"url"`
	UserAgent  string  `toml:"user_agent"`
	TimeoutSec int     `toml:"timeout_sec"`
	RatePerSec float64 `toml:"rate_per_sec"`
}

// JournalConfig holds feedback journal options.
type JournalConfig struct {
	Enabled bool `toml:"enabled"`
	// Path of the SQLite file. Empty means <model dir>/feedback.db.
	Path string `toml:"path"`
}

// GetConfigDir returns the config directory with fallback priority:
// 1. ~/.config/
// 2. ~/Library/Application Support/ (macOS)
// 3. Current executable dir
// 4. builtin defaults
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Errorf("Failed to get home directory: %v", err)
		execDir, execErr := utils.GetExecutableDir()
		if execErr != nil {
			return "", execErr
		}
		return execDir, nil
	}
	primaryPath := filepath.Join(homeDir, ".config", AppName)
	if result := utils.CheckDirStatus(primaryPath); result.Writable {
		return primaryPath, nil
	}
	// Not conventional, fallback from ~/.config if not writable
	macOSPath := filepath.Join(homeDir, "Library", "Application Support", AppName)
	if result := utils.CheckDirStatus(macOSPath); result.Writable {
		return macOSPath, nil
	}
	execDir, err := utils.GetExecutableDir()
	if err != nil {
		log.Errorf("Failed to get executable directory: %v", err)
		return "", err
	}
	return execDir, nil
}

// GetDefaultConfigPath returns the default path for config.toml
func GetDefaultConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.toml"), nil
}

// LoadConfigWithPriority loads config with priority:
// 1. Custom path from --config flag
// 2. Default path: [UserConfigDir]/streetmatch/config.toml
// 3. Builtin defaults
func LoadConfigWithPriority(customConfigPath string) (*Config, string, error) {
	if customConfigPath != "" {
		if _, statErr := os.Stat(customConfigPath); statErr == nil {
			config, err := LoadConfig(customConfigPath)
			if err != nil {
				log.Warnf("Failed to load custom config from %s: %v. Trying default path...", customConfigPath, err)
			} else {
				log.Debugf("Loaded config from custom path: %s", customConfigPath)
				return config, customConfigPath, nil
			}
		} else {
			log.Warnf("Custom config file not found at %s: %v. Trying default path...", customConfigPath, statErr)
		}
	}
	defaultPath, err := GetDefaultConfigPath()
	if err != nil {
		log.Warnf("Failed to determine default config path: %v. Using built-in defaults...", err)
		return DefaultConfig(), "", nil
	}

	config, err := InitConfig(defaultPath)
	if err != nil {
		log.Warnf("Failed to load/create config at default path %s: %v. Using builtin defaults...", defaultPath, err)
		return DefaultConfig(), "", nil
	}
	log.Debugf("Loaded config from default path: %s", defaultPath)
	return config, defaultPath, nil
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	m := model.DefaultOptions()
	return &Config{
		Server: ServerConfig{
			Host:            "localhost",
			Port:            5000,
			ReadTimeoutSec:  15,
			WriteTimeoutSec: 15,
		},
		Model: ModelConfig{
			Strategy:     model.KindLinear,
			Seed:         int(m.Seed),
			MaxIter:      m.MaxIter,
			Tol:          m.Tol,
			C:            m.C,
			LearningRate: m.LearningRate,
			ScaleNumeric: m.ScaleNumeric,
			Trees:        m.Trees,
			MaxDepth:     m.MaxDepth,
			MinLeaf:      m.MinLeaf,
			NGramMax:     1,
			MinTokenLen:  features.DefaultMinTokenLen,
			TestFraction: training.DefaultTestFraction,
		},
		Policy: PolicyConfig{
			Kind:            policy.KindLevenshtein,
			SimilarityFloor: policy.DefaultSimilarityFloor,
			CosineThreshold: policy.DefaultCosineThreshold,
		},
		Normalize: NormalizeConfig{
			ExpandSynonyms: false,
			FoldAccents:    false,
		},
		Geocode: GeocodeConfig{
			Enabled:    true,
			URL:        geocode.DefaultURL,
			UserAgent:  geocode.DefaultUserAgent,
			TimeoutSec: int(geocode.DefaultTimeout / time.Second),
			RatePerSec: geocode.DefaultRate,
		},
		Journal: JournalConfig{
			Enabled: true,
		},
	}
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	switch c.Model.Strategy {
	case model.KindLinear, model.KindForest:
	default:
		return fmt.Errorf("model.strategy: %w: %q", model.ErrUnknownKind, c.Model.Strategy)
	}
	switch c.Policy.Kind {
	case policy.KindLevenshtein, policy.KindCosine:
	default:
		return fmt.Errorf("policy.kind: %w: %q", policy.ErrUnknownKind, c.Policy.Kind)
	}
	if c.Policy.SimilarityFloor <= 0 || c.Policy.SimilarityFloor > 1 {
		return fmt.Errorf("policy.similarity_floor must be in (0, 1], got %v", c.Policy.SimilarityFloor)
	}
	if c.Policy.CosineThreshold <= 0 || c.Policy.CosineThreshold > 1 {
		return fmt.Errorf("policy.cosine_threshold must be in (0, 1], got %v", c.Policy.CosineThreshold)
	}
	if c.Model.TestFraction < 0 || c.Model.TestFraction >= 1 {
		return fmt.Errorf("model.test_fraction must be in [0, 1), got %v", c.Model.TestFraction)
	}
	if c.Model.Seed < 0 {
		return fmt.Errorf("model.seed must not be negative, got %d", c.Model.Seed)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}

// ModelOptions converts the [model] section for the classifiers.
func (c *Config) ModelOptions() model.Options {
	return model.Options{
		Seed:         uint64(c.Model.Seed),
		MaxIter:      c.Model.MaxIter,
		Tol:          c.Model.Tol,
		C:            c.Model.C,
		LearningRate: c.Model.LearningRate,
		ScaleNumeric: c.Model.ScaleNumeric,
		NumericCols:  features.NumericFeatures,
		Trees:        c.Model.Trees,
		MaxDepth:     c.Model.MaxDepth,
		MinLeaf:      c.Model.MinLeaf,
	}
}

// TrainingOptions converts the [model] section for a training run.
func (c *Config) TrainingOptions() training.Options {
	frac := c.Model.TestFraction
	if frac == 0 {
		frac = -1
	}
	return training.Options{
		Kind:  c.Model.Strategy,
		Model: c.ModelOptions(),
		Vocab: features.VocabOptions{
			NGramMax:    c.Model.NGramMax,
			MinTokenLen: c.Model.MinTokenLen,
		},
		TestFraction: frac,
	}
}

// PolicyConfig converts the [policy] section.
func (c *Config) PolicyConfig() policy.Config {
	return policy.Config{
		Kind:            c.Policy.Kind,
		SimilarityFloor: c.Policy.SimilarityFloor,
		CosineThreshold: c.Policy.CosineThreshold,
	}
}

// NormalizeOptions converts the [normalize] section.
func (c *Config) NormalizeOptions() normalize.Options {
	return normalize.Options{
		ExpandSynonyms: c.Normalize.ExpandSynonyms,
		FoldAccents:    c.Normalize.FoldAccents,
	}
}

// GeocodeConfig converts the [geocode] section.
func (c *Config) GeocodeConfig() geocode.Config {
	return geocode.Config{
		URL:        c.Geocode.URL,
		UserAgent:  c.Geocode.UserAgent,
		Timeout:    time.Duration(c.Geocode.TimeoutSec) * time.Second,
		RatePerSec: c.Geocode.RatePerSec,
	}
}

// ModelDir resolves the artifact directory against the config directory.
func (c *Config) ModelDir(configDir string) string {
	if c.Model.Dir != "" {
		return c.Model.Dir
	}
	return filepath.Join(configDir, "model")
}

// JournalPath resolves the journal file against the model directory.
func (c *Config) JournalPath(modelDir string) string {
	if c.Journal.Path != "" {
		return c.Journal.Path
	}
	return filepath.Join(modelDir, "feedback.db")
}

// InitConfig loads config from file or creates default if missing
func InitConfig(configPath string) (*Config, error) {
	configDir := filepath.Dir(configPath)

	if err := utils.EnsureDir(configDir); err != nil {
		log.Warnf("Failed to create config directory %s: %v. Using built-in defaults...", configDir, err)
		return DefaultConfig(), nil
	}

	if !utils.FileExists(configPath) {
		config := DefaultConfig()
		if err := SaveConfig(config, configPath); err != nil {
			log.Warnf("Failed to create default config file at %s: %v. Using built-in defaults...", configPath, err)
			return DefaultConfig(), nil
		}
		log.Debugf("Created default config file at: %s", configPath)
		return config, nil
	}

	config, err := LoadConfig(configPath)
	if err != nil {
		log.Warnf("Failed to load config from %s: %v. Using built-in defaults...", configPath, err)
		return DefaultConfig(), nil
	}
	return config, nil
}

// LoadConfig loads from a TOML file
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	if err := utils.LoadTOMLFile(configPath, config); err != nil {
		return tryPartialParse(configPath)
	}
	return config, nil
}

// tryPartialParse recovers the well-typed keys of a file that does not
// decode as a whole.
func tryPartialParse(configPath string) (*Config, error) {
	config := DefaultConfig()

	tempConfig, err := utils.ParseTOMLWithRecovery(configPath)
	if err != nil {
		log.Warnf("Could not parse any valid configuration from %s: %v. Using all defaults.", configPath, err)
		return config, nil
	}

	if section, ok := utils.ExtractSection(tempConfig, "server"); ok {
		extractServerConfig(section, &config.Server)
	}
	if section, ok := utils.ExtractSection(tempConfig, "model"); ok {
		extractModelConfig(section, &config.Model)
	}
	if section, ok := utils.ExtractSection(tempConfig, "policy"); ok {
		extractPolicyConfig(section, &config.Policy)
	}
	if section, ok := utils.ExtractSection(tempConfig, "normalize"); ok {
		extractNormalizeConfig(section, &config.Normalize)
	}
	if section, ok := utils.ExtractSection(tempConfig, "geocode"); ok {
		extractGeocodeConfig(section, &config.Geocode)
	}
	if section, ok := utils.ExtractSection(tempConfig, "journal"); ok {
		extractJournalConfig(section, &config.Journal)
	}
	return config, nil
}

func extractServerConfig(data map[string]any, server *ServerConfig) {
	if val, ok := utils.ExtractString(data, "host"); ok {
		server.Host = val
	}
	if val, ok := utils.ExtractInt64(data, "port"); ok {
		server.Port = val
	}
	if val, ok := utils.ExtractInt64(data, "read_timeout_sec"); ok {
		server.ReadTimeoutSec = val
	}
	if val, ok := utils.ExtractInt64(data, "write_timeout_sec"); ok {
		server.WriteTimeoutSec = val
	}
}

func extractModelConfig(data map[string]any, m *ModelConfig) {
	if val, ok := utils.ExtractString(data, "dir"); ok {
		m.Dir = val
	}
	if val, ok := utils.ExtractString(data, "strategy"); ok {
		m.Strategy = val
	}
	if val, ok := utils.ExtractInt64(data, "seed"); ok {
		m.Seed = val
	}
	if val, ok := utils.ExtractInt64(data, "max_iter"); ok {
		m.MaxIter = val
	}
	if val, ok := utils.ExtractFloat64(data, "tol"); ok {
		m.Tol = val
	}
	if val, ok := utils.ExtractFloat64(data, "c"); ok {
		m.C = val
	}
	if val, ok := utils.ExtractFloat64(data, "learning_rate"); ok {
		m.LearningRate = val
	}
	if val, ok := utils.ExtractBool(data, "scale_numeric"); ok {
		m.ScaleNumeric = val
	}
	if val, ok := utils.ExtractInt64(data, "n_trees"); ok {
		m.Trees = val
	}
	if val, ok := utils.ExtractInt64(data, "max_depth"); ok {
		m.MaxDepth = val
	}
	if val, ok := utils.ExtractInt64(data, "min_leaf"); ok {
		m.MinLeaf = val
	}
	if val, ok := utils.ExtractInt64(data, "ngram_max"); ok {
		m.NGramMax = val
	}
	if val, ok := utils.ExtractInt64(data, "min_token_len"); ok {
		m.MinTokenLen = val
	}
	if val, ok := utils.ExtractFloat64(data, "test_fraction"); ok {
		m.TestFraction = val
	}
	if val, ok := utils.ExtractString(data, "seed_data"); ok {
		m.SeedData = val
	}
}

func extractPolicyConfig(data map[string]any, p *PolicyConfig) {
	if val, ok := utils.ExtractString(data, "kind"); ok {
		p.Kind = val
	}
	if val, ok := utils.ExtractFloat64(data, "similarity_floor"); ok {
		p.SimilarityFloor = val
	}
	if val, ok := utils.ExtractFloat64(data, "cosine_threshold"); ok {
		p.CosineThreshold = val
	}
}

func extractNormalizeConfig(data map[string]any, n *NormalizeConfig) {
	if val, ok := utils.ExtractString(data, "tables"); ok {
		n.Tables = val
	}
	if val, ok := utils.ExtractBool(data, "expand_synonyms"); ok {
		n.ExpandSynonyms = val
	}
	if val, ok := utils.ExtractBool(data, "fold_accents"); ok {
		n.FoldAccents = val
	}
}

func extractGeocodeConfig(data map[string]any, g *GeocodeConfig) {
	if val, ok := utils.ExtractBool(data, "enabled"); ok {
		g.Enabled = val
	}
	if val, ok := utils.ExtractString(data, "url"); ok {
		g.URL = val
	}
	if val, ok := utils.ExtractString(data, "user_agent"); ok {
		g.UserAgent = val
	}
	if val, ok := utils.ExtractInt64(data, "timeout_sec"); ok {
		g.TimeoutSec = val
	}
	if val, ok := utils.ExtractFloat64(data, "rate_per_sec"); ok {
		g.RatePerSec = val
	}
}

func extractJournalConfig(data map[string]any, j *JournalConfig) {
	if val, ok := utils.ExtractBool(data, "enabled"); ok {
		j.Enabled = val
	}
	if val, ok := utils.ExtractString(data, "path"); ok {
		j.Path = val
	}
}

// RebuildConfigFile force creates a new config.toml at default
func RebuildConfigFile() error {
	defaultPath, err := GetDefaultConfigPath()
	if err != nil {
		return err
	}
	configDir := filepath.Dir(defaultPath)
	if err := utils.EnsureDir(configDir); err != nil {
		return err
	}
	config := DefaultConfig()
	return utils.SaveTOMLFile(config, defaultPath)
}

// GetActiveConfigPath returns the absolute path of loaded config file
func GetActiveConfigPath(configPath string) string {
	if configPath == "" {
		if defaultPath, err := GetDefaultConfigPath(); err == nil {
			return defaultPath
		}
		return "unknown"
	}
	return utils.GetAbsolutePath(configPath)
}

// SaveConfig saves into a TOML file
func SaveConfig(config *Config, configPath string) error {
	return utils.SaveTOMLFile(config, configPath)
}
