package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the runtime configuration for the simulation engine. Values are
// resolved defaults < config file (twinlab.yaml) < TWINLAB_* environment.
type Config struct {
	LLM    LLMConfig    `mapstructure:"llm"`
	Run    RunConfig    `mapstructure:"run"`
	Paths  PathsConfig  `mapstructure:"paths"`
	Server ServerConfig `mapstructure:"server"`
}

// LLMConfig holds model provider settings.
type LLMConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	// Temperature, when positive, overrides the per-protocol sampling
	// defaults (surveys 0.7, interviews 0.8).
	Temperature    float64       `mapstructure:"temperature"`
	MaxTokens      int           `mapstructure:"max_tokens"`
	TimeoutSeconds int           `mapstructure:"timeout_seconds"`
	PaceInterval   time.Duration `mapstructure:"pace_interval"`
	MaxRetries     int           `mapstructure:"max_retries"`
	ContextLimit   int           `mapstructure:"context_limit"`
}

// RunConfig holds batch execution policy.
type RunConfig struct {
	// ReaskInvalid allows one bounded re-ask when a scale answer is out of
	// range; the re-ask result supersedes the invalid record.
	ReaskInvalid  bool `mapstructure:"reask_invalid"`
	MinOpenLength int  `mapstructure:"min_open_length"`
	MaxOpenLength int  `mapstructure:"max_open_length"`
}

// PathsConfig holds filesystem locations.
type PathsConfig struct {
	CorpusPath    string `mapstructure:"corpus_path"`
	CheckpointDir string `mapstructure:"checkpoint_dir"`
	ResultsDir    string `mapstructure:"results_dir"`
}

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	EnableCORS bool   `mapstructure:"enable_cors"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	// empty default so the env binding for the key is registered
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gpt-4o-mini")
	// zero keeps each protocol's own sampling default
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.max_tokens", 512)
	v.SetDefault("llm.timeout_seconds", 120)
	v.SetDefault("llm.pace_interval", 500*time.Millisecond)
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.context_limit", 8192)

	v.SetDefault("run.reask_invalid", false)
	v.SetDefault("run.min_open_length", 0)
	v.SetDefault("run.max_open_length", 0)

	v.SetDefault("paths.corpus_path", "personas.json")
	v.SetDefault("paths.checkpoint_dir", defaultStateDir("checkpoints"))
	v.SetDefault("paths.results_dir", "results")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.enable_cors", true)
}

func defaultStateDir(sub string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".twinlab", sub)
	}
	return filepath.Join(home, ".twinlab", sub)
}

// Load reads configuration from defaults, an optional twinlab.yaml in the
// working directory or ~/.twinlab, and TWINLAB_* environment variables
// (e.g. TWINLAB_LLM_API_KEY).
func Load() (Config, error) {
	return LoadFrom("")
}

// LoadFrom behaves like Load but reads the given config file when path is
// non-empty. A missing explicit file is an error; a missing default file is not.
func LoadFrom(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("TWINLAB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("twinlab")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".twinlab"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	normalize(&cfg)
	return cfg, nil
}

func normalize(cfg *Config) {
	cfg.LLM.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.LLM.BaseURL), "/")
	if cfg.LLM.Temperature < 0 {
		cfg.LLM.Temperature = 0
	}
	if cfg.LLM.MaxRetries < 0 {
		cfg.LLM.MaxRetries = 0
	}
	if cfg.LLM.PaceInterval < 0 {
		cfg.LLM.PaceInterval = 0
	}
	if cfg.LLM.ContextLimit <= 0 {
		cfg.LLM.ContextLimit = 8192
	}
}
