package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces environment overrides, e.g.
// VOICE_BRIDGE_HOMEASSISTANT_TOKEN.
const EnvPrefix = "VOICE_BRIDGE"

type Config struct {
	Server        ServerConfig        `yaml:"server" envconfig:"SERVER"`
	HomeAssistant HomeAssistantConfig `yaml:"homeassistant" envconfig:"HOMEASSISTANT"`
	PlanCache     PlanCacheConfig     `yaml:"plan_cache" envconfig:"PLAN_CACHE"`
	LLM           LLMConfig           `yaml:"llm" envconfig:"LLM"`
	FastPath      FastPathConfig      `yaml:"fast_path" envconfig:"FAST_PATH"`
	Audio         AudioConfig         `yaml:"audio" envconfig:"AUDIO"`
	OpenAI        OpenAIConfig        `yaml:"openai" envconfig:"OPENAI"`
	Pushover      PushoverConfig      `yaml:"pushover" envconfig:"PUSHOVER"`
	Log           LogConfig           `yaml:"log" envconfig:"LOG"`
}

type ServerConfig struct {
	HTTPAddr  string `yaml:"http_addr" envconfig:"HTTP_ADDR"`
	AuthToken string `yaml:"auth_token" envconfig:"AUTH_TOKEN"`
	RateLimit int    `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

type HomeAssistantConfig struct {
	BaseURL        string        `yaml:"base_url" envconfig:"BASE_URL"`
	Token          string        `yaml:"token" envconfig:"TOKEN"`
	RequestTimeout time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT"`
	InventoryTTL   time.Duration `yaml:"inventory_ttl" envconfig:"INVENTORY_TTL"`
	SyncInterval   time.Duration `yaml:"sync_interval" envconfig:"SYNC_INTERVAL"`
	Warmup         *bool         `yaml:"warmup" envconfig:"WARMUP"`
}

type PlanCacheConfig struct {
	MaxSize  int           `yaml:"max_size" envconfig:"MAX_SIZE"`
	TTL      time.Duration `yaml:"ttl" envconfig:"TTL"`
	RedisURL string        `yaml:"redis_url" envconfig:"REDIS_URL"`
}

type LLMConfig struct {
	Provider  string          `yaml:"provider" envconfig:"PROVIDER"`
	Catalog   string          `yaml:"catalog" envconfig:"CATALOG"`
	MaxRounds int             `yaml:"max_rounds" envconfig:"MAX_ROUNDS"`
	Anthropic AnthropicConfig `yaml:"anthropic" envconfig:"ANTHROPIC"`
	Gemini    GeminiConfig    `yaml:"gemini" envconfig:"GEMINI"`
}

type AnthropicConfig struct {
	APIKey  string `yaml:"api_key" envconfig:"API_KEY"`
	Model   string `yaml:"model" envconfig:"MODEL"`
	BaseURL string `yaml:"base_url" envconfig:"BASE_URL"`
}

type GeminiConfig struct {
	APIKey  string `yaml:"api_key" envconfig:"API_KEY"`
	Model   string `yaml:"model" envconfig:"MODEL"`
	BaseURL string `yaml:"base_url" envconfig:"BASE_URL"`
}

// FastPathConfig tunes entity resolution. Leaving Rules unset keeps the
// built-in rules; an explicit empty list disables them.
type FastPathConfig struct {
	DefaultMinScore int             `yaml:"default_min_score" envconfig:"DEFAULT_MIN_SCORE"`
	Rules           []ThresholdRule `yaml:"rules" ignored:"true"`
}

// ThresholdRule lowers or raises the resolver threshold when an expr
// condition over Target and Categories holds.
type ThresholdRule struct {
	When     string `yaml:"when"`
	MinScore int    `yaml:"min_score"`
}

type AudioConfig struct {
	Source     string `yaml:"source" envconfig:"SOURCE"`
	FileDir    string `yaml:"file_dir" envconfig:"FILE_DIR"`
	SampleRate int    `yaml:"sample_rate" envconfig:"SAMPLE_RATE"`
}

type OpenAIConfig struct {
	APIKey   string `yaml:"api_key" envconfig:"API_KEY"`
	Language string `yaml:"language" envconfig:"LANGUAGE"`
}

type PushoverConfig struct {
	Token   string `yaml:"token" envconfig:"TOKEN"`
	UserKey string `yaml:"user_key" envconfig:"USER_KEY"`
	Device  string `yaml:"device" envconfig:"DEVICE"`
	Enabled bool   `yaml:"enabled" envconfig:"ENABLED"`
}

type LogConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL"`
	Format string `yaml:"format" envconfig:"FORMAT"`
}

// Load reads .env (if present), then the YAML file at path with ${VAR}
// expansion, then VOICE_BRIDGE_* overrides, then fills defaults. An empty
// path or a missing file leaves configuration to the environment.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading config file: %w", err)
		default:
			expanded := os.ExpandEnv(string(data))
			if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
				return nil, fmt.Errorf("parsing config: %w", err)
			}
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = ":8080"
	}
	if c.Server.RateLimit == 0 {
		c.Server.RateLimit = 30
	}
	if c.HomeAssistant.RequestTimeout == 0 {
		c.HomeAssistant.RequestTimeout = 5 * time.Second
	}
	if c.HomeAssistant.InventoryTTL == 0 {
		c.HomeAssistant.InventoryTTL = 30 * time.Second
	}
	if c.HomeAssistant.Warmup == nil {
		warmup := true
		c.HomeAssistant.Warmup = &warmup
	}
	if c.PlanCache.MaxSize == 0 {
		c.PlanCache.MaxSize = 500
	}
	if c.PlanCache.TTL == 0 {
		c.PlanCache.TTL = 24 * time.Hour
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "anthropic"
	}
	if c.LLM.Catalog == "" {
		if c.LLM.Provider == "gemini" {
			c.LLM.Catalog = "discover"
		} else {
			c.LLM.Catalog = "direct"
		}
	}
	if c.LLM.MaxRounds == 0 {
		c.LLM.MaxRounds = 8
	}
	if c.LLM.Anthropic.Model == "" {
		c.LLM.Anthropic.Model = "claude-sonnet-4-20250514"
	}
	if c.LLM.Gemini.Model == "" {
		c.LLM.Gemini.Model = "gemini-2.0-flash"
	}
	if c.FastPath.DefaultMinScore == 0 {
		c.FastPath.DefaultMinScore = 4
	}
	if c.Audio.Source == "" {
		c.Audio.Source = "http"
	}
	if c.Audio.FileDir == "" {
		c.Audio.FileDir = "./commands"
	}
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = 16000
	}
	if c.OpenAI.Language == "" {
		c.OpenAI.Language = "en"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func (c *Config) validate() error {
	if c.HomeAssistant.BaseURL == "" {
		return fmt.Errorf("homeassistant.base_url is required")
	}
	switch c.LLM.Provider {
	case "anthropic", "gemini", "none":
	default:
		return fmt.Errorf("llm.provider must be anthropic, gemini or none, got %q", c.LLM.Provider)
	}
	switch c.Audio.Source {
	case "http", "file", "microphone":
	default:
		return fmt.Errorf("audio.source must be http, file or microphone, got %q", c.Audio.Source)
	}
	return nil
}

// WarmupEnabled reports whether the inventory is prefetched at startup.
func (c *Config) WarmupEnabled() bool {
	return c.HomeAssistant.Warmup == nil || *c.HomeAssistant.Warmup
}
