package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Global configuration structure.
type Global struct {
	ProjectsDir    string   `mapstructure:"projects_dir" yaml:"projects_dir"`
	OutputDir      string   `mapstructure:"output_dir" yaml:"output_dir"`
	DefaultFormats []string `mapstructure:"default_formats" yaml:"default_formats"`

	// Statistics and presentation
	Alpha          float64 `mapstructure:"alpha" yaml:"alpha"`
	Decimals       int     `mapstructure:"decimals" yaml:"decimals"`
	FigureWidthIn  float64 `mapstructure:"figure_width_in" yaml:"figure_width_in"`
	FigureHeightIn float64 `mapstructure:"figure_height_in" yaml:"figure_height_in"`
	FigureDPI      int     `mapstructure:"figure_dpi" yaml:"figure_dpi"`
	PageSize       string  `mapstructure:"page_size" yaml:"page_size"`
	RenderWorkers  int     `mapstructure:"render_workers" yaml:"render_workers"`

	// Narrative drafting
	NarrateProvider string  `mapstructure:"narrate_provider" yaml:"narrate_provider"`
	NarrateModel    string  `mapstructure:"narrate_model" yaml:"narrate_model"`
	APIKey          string  `mapstructure:"api_key" yaml:"api_key"`
	MaxPromptTokens int     `mapstructure:"max_prompt_tokens" yaml:"max_prompt_tokens"`
	MaxTokens       int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature     float64 `mapstructure:"temperature" yaml:"temperature"`

	// HTTP/Retry configuration
	HTTPTimeoutSec   int `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`
	RetryMaxAttempts int `mapstructure:"retry_max_attempts" yaml:"retry_max_attempts"`
	RetryBaseDelayMs int `mapstructure:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`
	RetryMaxDelayMs  int `mapstructure:"retry_max_delay_ms" yaml:"retry_max_delay_ms"`

	// Local runtimes (Ollama)
	OllamaHost string `mapstructure:"ollama_host" yaml:"ollama_host"`
}

func init() {
	// HOME can change between invocations within one process (tests).
	homedir.DisableCache = true
}

// Formats understood by the report renderers.
var KnownFormats = []string{"docx", "pdf", "md", "html"}

// Dir returns ~/.statloom.
func Dir() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".statloom"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.statloom/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	var path string
	if cfgFile != "" {
		p, err := homedir.Expand(cfgFile)
		if err != nil {
			return fmt.Errorf("expand config path: %w", err)
		}
		path = p
	} else {
		dir, err := Dir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: flags (cfgFile) > env > config file > defaults.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix("STATLOOM")
	v.AutomaticEnv()

	v.SetDefault("output_dir", ".")
	v.SetDefault("default_formats", []string{"docx", "md"})
	v.SetDefault("alpha", 0.05)
	v.SetDefault("decimals", 3)
	v.SetDefault("figure_width_in", 6.5)
	v.SetDefault("figure_height_in", 4.0)
	v.SetDefault("figure_dpi", 150)
	v.SetDefault("page_size", "A4")
	v.SetDefault("render_workers", 4)
	v.SetDefault("narrate_provider", "openrouter")
	v.SetDefault("narrate_model", "openai/gpt-4o-mini")
	v.SetDefault("max_prompt_tokens", 12000)
	v.SetDefault("max_tokens", 1200)
	v.SetDefault("temperature", 0.3)
	v.SetDefault("http_timeout_sec", 60)
	v.SetDefault("retry_max_attempts", 3)
	v.SetDefault("retry_base_delay_ms", 500)
	v.SetDefault("retry_max_delay_ms", 4000)
	v.SetDefault("ollama_host", "http://127.0.0.1:11434")

	if cfgFile != "" {
		p, err := homedir.Expand(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("expand config path: %w", err)
		}
		v.SetConfigFile(p)
	} else {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		_ = os.MkdirAll(dir, 0o755)
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	// optional read
	_ = v.ReadInConfig()

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if c.ProjectsDir == "" {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		c.ProjectsDir = filepath.Join(dir, "projects")
	}
	for _, p := range []*string{&c.ProjectsDir, &c.OutputDir} {
		exp, err := homedir.Expand(*p)
		if err != nil {
			return nil, fmt.Errorf("expand %q: %w", *p, err)
		}
		*p = exp
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks ranges of numeric settings and known formats.
func (c *Global) Validate() error {
	if c.Alpha <= 0 || c.Alpha >= 1 {
		return fmt.Errorf("alpha must be in (0,1), got %g", c.Alpha)
	}
	if c.Decimals < 0 || c.Decimals > 10 {
		return fmt.Errorf("decimals must be in [0,10], got %d", c.Decimals)
	}
	for _, f := range c.DefaultFormats {
		if !IsKnownFormat(f) {
			return fmt.Errorf("unknown format %q (use %s)", f, strings.Join(KnownFormats, ", "))
		}
	}
	return nil
}

// IsKnownFormat reports whether f names a report renderer.
func IsKnownFormat(f string) bool {
	f = strings.ToLower(strings.TrimSpace(f))
	for _, k := range KnownFormats {
		if f == k {
			return true
		}
	}
	return false
}
