package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// MaxPollInterval is the slowest navigator status cadence accepted.
const MaxPollInterval = 250 * time.Millisecond

type StoreConfig struct {
	Path             string        `mapstructure:"path"`
	Format           string        `mapstructure:"format"`
	Watch            bool          `mapstructure:"watch"`
	AutosaveInterval time.Duration `mapstructure:"autosave_interval"`
}

type SupervisorConfig struct {
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	StatusTimeout     time.Duration `mapstructure:"status_timeout"`
	CommandTimeout    time.Duration `mapstructure:"command_timeout"`
	MaxStatusFailures int           `mapstructure:"max_status_failures"`
}

type NavigatorConfig struct {
	Speed      float64       `mapstructure:"speed"`
	PendingFor time.Duration `mapstructure:"pending_for"`
	FailRate   float64       `mapstructure:"fail_rate"`
	Seed       int64         `mapstructure:"seed"`
}

type HTTPConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

type ConsoleConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	History string `mapstructure:"history"`
}

type LLMConfig struct {
	// Backend is none, gemini or ollama.
	Backend    string        `mapstructure:"backend"`
	Model      string        `mapstructure:"model"`
	OllamaHost string        `mapstructure:"ollama_host"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type LogConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

// Config holds all runtime configuration for the annotator.
// Values are populated from .annotator.yaml, ANNOTATOR_* env vars, and CLI flags.
type Config struct {
	Store      StoreConfig      `mapstructure:"store"`
	Supervisor SupervisorConfig `mapstructure:"supervisor"`
	Navigator  NavigatorConfig  `mapstructure:"navigator"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Console    ConsoleConfig    `mapstructure:"console"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Log        LogConfig        `mapstructure:"log"`
}

// Init points viper at cfgFile, or at .annotator.yaml in the working or home
// directory, and enables ANNOTATOR_* overrides such as ANNOTATOR_HTTP_ADDR.
func Init(cfgFile string) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName(".annotator")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
	}

	bindEnv()

	if err := viper.ReadInConfig(); err != nil {
		// No config file is fine; defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("reading config: %w", err)
	}
	return nil
}

func bindEnv() {
	viper.SetEnvPrefix("ANNOTATOR")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

func setDefaults() {
	viper.SetDefault("store.path", "poses.yaml")
	viper.SetDefault("store.format", "")
	viper.SetDefault("store.watch", true)
	viper.SetDefault("store.autosave_interval", 30*time.Second)

	viper.SetDefault("supervisor.poll_interval", 100*time.Millisecond)
	viper.SetDefault("supervisor.status_timeout", 500*time.Millisecond)
	viper.SetDefault("supervisor.command_timeout", 2*time.Second)
	viper.SetDefault("supervisor.max_status_failures", 20)

	viper.SetDefault("navigator.speed", 0.5)
	viper.SetDefault("navigator.pending_for", 200*time.Millisecond)
	viper.SetDefault("navigator.fail_rate", 0.0)
	viper.SetDefault("navigator.seed", 0)

	viper.SetDefault("http.enabled", true)
	viper.SetDefault("http.addr", "127.0.0.1:8088")

	viper.SetDefault("console.enabled", true)
	viper.SetDefault("console.history", ".annotator_history")

	viper.SetDefault("llm.backend", "none")
	viper.SetDefault("llm.model", "gemini-2.5-flash")
	viper.SetDefault("llm.ollama_host", "http://localhost:11434")
	viper.SetDefault("llm.timeout", 20*time.Second)

	viper.SetDefault("log.file", "annotator.log")
	viper.SetDefault("log.level", "info")
}

// Load reads configuration from viper, applying built-in defaults for any
// values not set by config file, environment, or flags.
func Load() (Config, error) {
	setDefaults()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the runtime cannot honour.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Store.Path) == "" {
		errs = append(errs, errors.New("store.path must be set"))
	}
	switch c.Store.Format {
	case "", "yaml", "toml", "badger":
	default:
		errs = append(errs, fmt.Errorf("store.format %q is not one of yaml, toml, badger", c.Store.Format))
	}
	if c.Store.AutosaveInterval < 0 {
		errs = append(errs, errors.New("store.autosave_interval must not be negative"))
	}
	if c.Supervisor.PollInterval <= 0 || c.Supervisor.PollInterval > MaxPollInterval {
		errs = append(errs, fmt.Errorf("supervisor.poll_interval %s must be in (0, %s]",
			c.Supervisor.PollInterval, MaxPollInterval))
	}
	if c.Supervisor.MaxStatusFailures < 1 {
		errs = append(errs, errors.New("supervisor.max_status_failures must be at least 1"))
	}
	if c.Navigator.Speed <= 0 {
		errs = append(errs, errors.New("navigator.speed must be positive"))
	}
	if c.Navigator.FailRate < 0 || c.Navigator.FailRate > 1 {
		errs = append(errs, errors.New("navigator.fail_rate must be within [0, 1]"))
	}
	switch c.LLM.Backend {
	case "", "none", "gemini", "ollama":
	default:
		errs = append(errs, fmt.Errorf("llm.backend %q is not one of none, gemini, ollama", c.LLM.Backend))
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	return errors.Join(errs...)
}
