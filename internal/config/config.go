// Package config loads bookkeeper settings from YAML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values.
const (
	DefaultChunkSize           = 26
	DefaultConfidenceThreshold = 0.7
	DefaultAccountCode         = "6900"
	DefaultAccountName         = "Other Expenses"
	DefaultCashAccountCode     = "1000"
	DefaultCashAccountName     = "Cash"
	DefaultBalanceTolerance    = 0.01
	DefaultChunkTimeout        = 120 * time.Second
	DefaultOracleProvider      = "gemini"
	DefaultGeminiModel         = "gemini-2.5-flash"
	DefaultAnthropicModel      = "claude-sonnet-4-5-20250929"
)

// Journal policies for triage-flagged results.
const (
	PolicyInclusive = "inclusive"
	PolicyStrict    = "strict"
)

// Storage backends.
const (
	BackendFile     = "file"
	BackendBolt     = "bolt"
	BackendSQLite   = "sqlite"
	BackendBigQuery = "bigquery"
)

// Config is the full runtime configuration.
type Config struct {
	Categorize CategorizeConfig `yaml:"categorize"`
	Journal    JournalConfig    `yaml:"journal"`
	Oracle     OracleConfig     `yaml:"oracle"`
	Storage    StorageConfig    `yaml:"storage"`
	Artifacts  ArtifactsConfig  `yaml:"artifacts"`
	Notion     NotionConfig     `yaml:"notion"`
	Jobs       JobsConfig       `yaml:"jobs"`
	Log        LogConfig        `yaml:"log"`
}

// CategorizeConfig controls chunking and dispatch. ChunkSize is the target
// chunk length, not a hard cap: a trailing remainder shorter than a tenth of
// it joins the last full chunk, so one chunk may reach ChunkSize+max(1, ChunkSize/10)-1.
type CategorizeConfig struct {
	ChunkSize           int           `yaml:"chunkSize"`
	MaxConcurrency      int           `yaml:"maxConcurrency"` // 0 = one worker per chunk
	ChunkTimeout        time.Duration `yaml:"chunkTimeout"`
	ConfidenceThreshold float64       `yaml:"confidenceThreshold"`
	DefaultAccountCode  string        `yaml:"defaultAccountCode"`
}

type JournalConfig struct {
	CashAccountCode  string  `yaml:"cashAccountCode"`
	CashAccountName  string  `yaml:"cashAccountName"`
	BalanceTolerance float64 `yaml:"balanceTolerance"`
	Policy           string  `yaml:"policy"`
	AllowImbalance   bool    `yaml:"allowImbalance"`
	OutputDir        string  `yaml:"outputDir"`
}

type OracleConfig struct {
	Provider         string        `yaml:"provider"`
	Model            string        `yaml:"model"`
	APIKey           string        `yaml:"apiKey"`
	Retries          int           `yaml:"retries"`
	RetryBackoff     time.Duration `yaml:"retryBackoff"`
	RulesPath        string        `yaml:"rulesPath"`
	TrainingSessions []string      `yaml:"trainingSessions"`
}

type StorageConfig struct {
	Backend   string `yaml:"backend"`
	Dir       string `yaml:"dir"`
	Path      string `yaml:"path"`
	ProjectID string `yaml:"projectID"`
	Dataset   string `yaml:"dataset"`
}

type ArtifactsConfig struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
}

type NotionConfig struct {
	Token            string `yaml:"token"`
	ReviewDatabaseID string `yaml:"reviewDatabaseID"`
}

type JobsConfig struct {
	Workers    int `yaml:"workers"`
	Buffer     int `yaml:"buffer"`
	MaxRetries int `yaml:"maxRetries"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a Config populated with default values.
func Default() Config {
	return Config{
		Categorize: CategorizeConfig{
			ChunkSize:           DefaultChunkSize,
			ChunkTimeout:        DefaultChunkTimeout,
			ConfidenceThreshold: DefaultConfidenceThreshold,
			DefaultAccountCode:  DefaultAccountCode,
		},
		Journal: JournalConfig{
			CashAccountCode:  DefaultCashAccountCode,
			CashAccountName:  DefaultCashAccountName,
			BalanceTolerance: DefaultBalanceTolerance,
			Policy:           PolicyInclusive,
			OutputDir:        ".",
		},
		Oracle: OracleConfig{
			Provider:     DefaultOracleProvider,
			Retries:      2,
			RetryBackoff: time.Second,
		},
		Storage: StorageConfig{
			Backend: BackendFile,
			Dir:     "sessions",
			Path:    "sessions/bookkeeper.db",
			Dataset: "bookkeeping",
		},
		Jobs: JobsConfig{
			Workers:    4,
			Buffer:     100,
			MaxRetries: 3,
		},
		Log: LogConfig{Level: "info", Format: "console"},
	}
}

// Load reads the YAML file at path on top of the defaults, then applies
// environment overrides. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("Load: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("Load: parsing %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, fmt.Errorf("Load: %w", err)
	}
	if cfg.Oracle.Model == "" {
		cfg.Oracle.Model = defaultModel(cfg.Oracle.Provider)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func defaultModel(provider string) string {
	switch provider {
	case "anthropic":
		return DefaultAnthropicModel
	case "gemini":
		return DefaultGeminiModel
	}
	return ""
}

// applyEnv overrides fields from BOOKKEEPER_* variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	flt := func(key string, dst *float64) {
		if v, ok := lookup(key); ok && v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	num("BOOKKEEPER_CHUNK_SIZE", &c.Categorize.ChunkSize)
	num("BOOKKEEPER_MAX_CONCURRENCY", &c.Categorize.MaxConcurrency)
	dur("BOOKKEEPER_CHUNK_TIMEOUT", &c.Categorize.ChunkTimeout)
	flt("BOOKKEEPER_CONFIDENCE_THRESHOLD", &c.Categorize.ConfidenceThreshold)
	str("BOOKKEEPER_DEFAULT_ACCOUNT_CODE", &c.Categorize.DefaultAccountCode)
	str("BOOKKEEPER_CASH_ACCOUNT_CODE", &c.Journal.CashAccountCode)
	flt("BOOKKEEPER_BALANCE_TOLERANCE", &c.Journal.BalanceTolerance)
	str("BOOKKEEPER_JOURNAL_POLICY", &c.Journal.Policy)
	str("BOOKKEEPER_OUTPUT_DIR", &c.Journal.OutputDir)
	str("BOOKKEEPER_ORACLE_PROVIDER", &c.Oracle.Provider)
	str("BOOKKEEPER_ORACLE_MODEL", &c.Oracle.Model)
	str("BOOKKEEPER_STORAGE_BACKEND", &c.Storage.Backend)
	str("BOOKKEEPER_STORAGE_DIR", &c.Storage.Dir)
	str("BOOKKEEPER_STORAGE_PATH", &c.Storage.Path)
	str("BOOKKEEPER_GCP_PROJECT", &c.Storage.ProjectID)
	str("BOOKKEEPER_ARTIFACTS_BUCKET", &c.Artifacts.Bucket)
	str("NOTION_TOKEN", &c.Notion.Token)
	str("BOOKKEEPER_NOTION_REVIEW_DB", &c.Notion.ReviewDatabaseID)
	str("BOOKKEEPER_LOG_LEVEL", &c.Log.Level)

	if c.Oracle.APIKey == "" {
		for _, key := range apiKeyVars(c.Oracle.Provider) {
			if v, ok := lookup(key); ok && v != "" {
				c.Oracle.APIKey = v
				break
			}
		}
	}
	return errors.Join(errs...)
}

func apiKeyVars(provider string) []string {
	switch provider {
	case "anthropic":
		return []string{"BOOKKEEPER_ORACLE_API_KEY", "ANTHROPIC_API_KEY"}
	case "gemini":
		return []string{"BOOKKEEPER_ORACLE_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"}
	}
	return []string{"BOOKKEEPER_ORACLE_API_KEY"}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	var errs []error
	if c.Categorize.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("categorize.chunkSize must be positive, got %d", c.Categorize.ChunkSize))
	}
	if c.Categorize.MaxConcurrency < 0 {
		errs = append(errs, fmt.Errorf("categorize.maxConcurrency must not be negative"))
	}
	if c.Categorize.ChunkTimeout <= 0 {
		errs = append(errs, fmt.Errorf("categorize.chunkTimeout must be positive"))
	}
	if t := c.Categorize.ConfidenceThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("categorize.confidenceThreshold must be within [0,1], got %v", t))
	}
	if strings.TrimSpace(c.Categorize.DefaultAccountCode) == "" {
		errs = append(errs, fmt.Errorf("categorize.defaultAccountCode is required"))
	}
	if strings.TrimSpace(c.Journal.CashAccountCode) == "" {
		errs = append(errs, fmt.Errorf("journal.cashAccountCode is required"))
	}
	if c.Journal.BalanceTolerance < 0 {
		errs = append(errs, fmt.Errorf("journal.balanceTolerance must not be negative"))
	}
	switch c.Journal.Policy {
	case PolicyInclusive, PolicyStrict:
	default:
		errs = append(errs, fmt.Errorf("journal.policy must be %q or %q, got %q", PolicyInclusive, PolicyStrict, c.Journal.Policy))
	}
	switch c.Oracle.Provider {
	case "gemini", "anthropic", "rules", "bayes":
	default:
		errs = append(errs, fmt.Errorf("unknown oracle.provider %q", c.Oracle.Provider))
	}
	switch c.Storage.Backend {
	case BackendFile, BackendBolt, BackendSQLite:
	case BackendBigQuery:
		if c.Storage.ProjectID == "" {
			errs = append(errs, fmt.Errorf("storage.projectID is required for the bigquery backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.backend %q", c.Storage.Backend))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("Validate: %w", err)
	}
	return nil
}

// StrictJournal reports whether flagged results are excluded from journaling.
func (c Config) StrictJournal() bool {
	return c.Journal.Policy == PolicyStrict
}
