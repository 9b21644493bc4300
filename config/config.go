package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const demoAPIKey = "demo"

var (
	ErrMissingMarketAPIKey = errors.New("ALPHAVANTAGE_API_KEY is not set")
	// ErrDemoMarketAPIKey rejects the public key that only serves IBM samples.
	ErrDemoMarketAPIKey = errors.New(`the "demo" Alpha Vantage key only returns sample data; get a free key at https://www.alphavantage.co/support/#api-key`)
)

type Config struct {
	ProjectDir string `json:"project_dir" yaml:"project_dir"`
	ResultsDir string `json:"results_dir" yaml:"results_dir"`

	LLMProvider    string `json:"llm_provider" yaml:"llm_provider"`
	QuickThinkLLM  string `json:"quick_think_llm" yaml:"quick_think_llm"`
	BackendURL     string `json:"backend_url" yaml:"backend_url"`
	MaxTokens      int    `json:"max_tokens" yaml:"max_tokens"`
	DeepSeekAPIKey string `json:"-" yaml:"deepseek_api_key"`
	OpenAIAPIKey   string `json:"-" yaml:"openai_api_key"`

	// Market data
	AlphaVantageAPIKey  string        `json:"-" yaml:"alphavantage_api_key"`
	AlphaVantageBaseURL string        `json:"alphavantage_base_url" yaml:"alphavantage_base_url"`
	CallInterval        time.Duration `json:"call_interval" yaml:"call_interval"`
	CompanyPacing       time.Duration `json:"company_pacing" yaml:"company_pacing"`
	CacheTTL            time.Duration `json:"cache_ttl" yaml:"cache_ttl"`
	HTTPTimeout         time.Duration `json:"http_timeout" yaml:"http_timeout"`

	// Pipeline
	RecomputeStrategyInputs bool `json:"recompute_strategy_inputs" yaml:"recompute_strategy_inputs"`
	CompanyConcurrency      int  `json:"company_concurrency" yaml:"company_concurrency"`

	Debug          bool   `json:"debug" yaml:"debug"`
	TracingEnabled bool   `json:"tracing_enabled" yaml:"tracing_enabled"`
	ServerAddr     string `json:"server_addr" yaml:"server_addr"`

	// Eino Debug configuration
	EinoDebugEnabled bool `json:"eino_debug_enabled" yaml:"eino_debug_enabled"`
	EinoDebugPort    int  `json:"eino_debug_port" yaml:"eino_debug_port"`
}

// Defaults returns the built-in configuration without consulting the
// environment.
func Defaults() *Config {
	currentDir, _ := os.Getwd()

	return &Config{
		ProjectDir: currentDir,
		ResultsDir: filepath.Join(currentDir, "results"),

		LLMProvider:   "deepseek",
		QuickThinkLLM: "deepseek-chat",
		BackendURL:    "",
		MaxTokens:     8192,

		AlphaVantageBaseURL: "https://www.alphavantage.co",
		CallInterval:        12 * time.Second,
		CompanyPacing:       time.Second,
		CacheTTL:            600 * time.Second,
		HTTPTimeout:         30 * time.Second,

		RecomputeStrategyInputs: false,
		CompanyConcurrency:      1,

		ServerAddr: ":8080",

		// Eino Debug defaults
		EinoDebugEnabled: false,
		EinoDebugPort:    52538,
	}
}

// DefaultConfig returns the defaults overridden by .env and the process
// environment.
func DefaultConfig() *Config {
	cfg := Defaults()

	// Load environment variables from .env file
	_ = godotenv.Load()

	// Override with environment variables if they exist
	cfg.loadFromEnv()

	return cfg
}

// Load applies, in order: defaults, the YAML file at path (if any), .env and
// the environment.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	_ = godotenv.Load()
	cfg.loadFromEnv()
	return cfg, nil
}

func (c *Config) loadFromEnv() {
	if val := os.Getenv("PROJECT_DIR"); val != "" {
		c.ProjectDir = val
	}
	if val := os.Getenv("RESULTS_DIR"); val != "" {
		c.ResultsDir = val
	}

	if val := os.Getenv("LLM_PROVIDER"); val != "" {
		c.LLMProvider = val
	}
	if val := os.Getenv("QUICK_THINK_LLM"); val != "" {
		c.QuickThinkLLM = val
	}
	if val := os.Getenv("BACKEND_URL"); val != "" {
		c.BackendURL = val
	}
	if val := os.Getenv("LLM_MAX_TOKENS"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.MaxTokens = v
		}
	}
	if val := os.Getenv("DEEPSEEK_API_KEY"); val != "" {
		c.DeepSeekAPIKey = val
	}
	if val := os.Getenv("OPENAI_API_KEY"); val != "" {
		c.OpenAIAPIKey = val
	}

	if val := os.Getenv("ALPHAVANTAGE_API_KEY"); val != "" {
		c.AlphaVantageAPIKey = val
	}
	if val := os.Getenv("ALPHAVANTAGE_BASE_URL"); val != "" {
		c.AlphaVantageBaseURL = val
	}
	setDuration("CALL_INTERVAL", &c.CallInterval)
	setDuration("COMPANY_PACING", &c.CompanyPacing)
	setDuration("CACHE_TTL", &c.CacheTTL)
	setDuration("HTTP_TIMEOUT", &c.HTTPTimeout)

	if val := os.Getenv("RECOMPUTE_STRATEGY_INPUTS"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.RecomputeStrategyInputs = enabled
		}
	}
	if val := os.Getenv("COMPANY_CONCURRENCY"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.CompanyConcurrency = v
		}
	}

	if val := os.Getenv("CORTEXREPORT_DEBUG"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.Debug = enabled
		}
	}
	if val := os.Getenv("TRACING_ENABLED"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.TracingEnabled = enabled
		}
	}
	if val := os.Getenv("SERVER_ADDR"); val != "" {
		c.ServerAddr = val
	}

	if val := os.Getenv("EINO_DEBUG_ENABLED"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.EinoDebugEnabled = enabled
		}
	}
	if val := os.Getenv("EINO_DEBUG_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			c.EinoDebugPort = port
		}
	}
}

// setDuration accepts Go durations ("12s") or plain seconds ("12").
func setDuration(key string, dst *time.Duration) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return
	}
	if d, err := time.ParseDuration(val); err == nil {
		*dst = d
		return
	}
	if secs, err := strconv.ParseFloat(val, 64); err == nil {
		*dst = time.Duration(secs * float64(time.Second))
	}
}

// Validate checks settings that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LLMProvider) {
	case "deepseek", "openai":
	default:
		return fmt.Errorf("unsupported llm provider %q", c.LLMProvider)
	}
	if c.CallInterval < 0 || c.CompanyPacing < 0 {
		return errors.New("call interval and company pacing must not be negative")
	}
	if c.CacheTTL < 0 {
		return errors.New("cache ttl must not be negative")
	}
	if c.CompanyConcurrency < 1 {
		return fmt.Errorf("company concurrency must be at least 1, got %d", c.CompanyConcurrency)
	}
	return nil
}

// ValidateMarketKey checks the Alpha Vantage key before any upstream call.
func (c *Config) ValidateMarketKey() error {
	key := strings.TrimSpace(c.AlphaVantageAPIKey)
	switch {
	case key == "":
		return ErrMissingMarketAPIKey
	case strings.EqualFold(key, demoAPIKey):
		return ErrDemoMarketAPIKey
	}
	return nil
}

// LLMAPIKey returns the key for the configured provider.
func (c *Config) LLMAPIKey() string {
	if strings.EqualFold(c.LLMProvider, "openai") {
		return c.OpenAIAPIKey
	}
	return c.DeepSeekAPIKey
}

func (c *Config) EnsureDirectories() error {
	dirs := []string{c.ProjectDir, c.ResultsDir}
	for _, dir := range dirs {
		path := strings.TrimSpace(dir)
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", path, err)
		}
	}
	return nil
}
